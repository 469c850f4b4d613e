// Package handlers contains the HTTP handler implementations for the
// Floodline management API: trigger lifecycle and phase inspection.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"floodline/internal/core"
	"floodline/internal/types"
)

// TriggerService is the trigger lifecycle contract the handler depends on.
// Mirrors the concrete triggers.Service methods used here.
type TriggerService interface {
	Create(ctx context.Context, stmt types.TriggerStatement, notes string) (*types.Trigger, error)
	Get(ctx context.Context, repeatKey string) (*types.Trigger, error)
	Remove(ctx context.Context, repeatKey string) error
	Activate(ctx context.Context, repeatKey string, notes string, docs types.DocumentList) (*types.Trigger, error)
	List(ctx context.Context, params types.PageParams) ([]*types.Trigger, types.PageInfo, error)
}

// CreateTriggerRequest is the request body for POST /v1/triggers.
type CreateTriggerRequest struct {
	Statement types.TriggerStatement `json:"trigger_statement" validate:"required"`
	Notes     string                 `json:"notes,omitempty" validate:"max=2000"`
}

// ActivateTriggerRequest is the request body for POST /v1/triggers/activate.
type ActivateTriggerRequest struct {
	RepeatKey string                  `json:"repeat_key" validate:"required"`
	Notes     string                  `json:"notes,omitempty" validate:"max=2000"`
	Documents []types.TriggerDocument `json:"trigger_documents,omitempty" validate:"dive"`
}

// TriggerHandler manages trigger creation, listing, removal, and manual
// activation.
type TriggerHandler struct {
	service   TriggerService
	validator *core.Validator
	logger    *slog.Logger
}

// NewTriggerHandler creates a TriggerHandler with the provided dependencies.
func NewTriggerHandler(service TriggerService, v *core.Validator, l *slog.Logger) *TriggerHandler {
	if l == nil {
		l = slog.Default()
	}
	return &TriggerHandler{
		service:   service,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts trigger routes on the provided chi.Router.
func (h *TriggerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/triggers", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Post("/activate", h.Activate)
		r.Get("/{repeatKey}", h.Get)
		r.Delete("/{repeatKey}", h.Delete)
	})
}

// Create handles POST /v1/triggers: validates the statement, schedules the
// recurring job for automated sources, and persists the trigger.
func (h *TriggerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	t, err := h.service.Create(r.Context(), req.Statement, req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: t})
}

// List handles GET /v1/triggers with page/per_page query parameters.
func (h *TriggerHandler) List(w http.ResponseWriter, r *http.Request) {
	params := pageParamsFromQuery(r)

	items, info, err := h.service.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if items == nil {
		items = []*types.Trigger{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items, Meta: &info})
}

// Activate handles POST /v1/triggers/activate: fires a MANUAL trigger from a
// field report with optional evidence documents.
func (h *TriggerHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateTriggerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	t, err := h.service.Activate(r.Context(), req.RepeatKey, req.Notes, types.DocumentList(req.Documents))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: t})
}

// Get handles GET /v1/triggers/{repeatKey}.
func (h *TriggerHandler) Get(w http.ResponseWriter, r *http.Request) {
	repeatKey := chi.URLParam(r, "repeatKey")
	if repeatKey == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"repeat key is required", nil))
		return
	}

	t, err := h.service.Get(r.Context(), repeatKey)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: t})
}

// Delete handles DELETE /v1/triggers/{repeatKey}: cancels the recurring job
// and soft-deletes the trigger.
func (h *TriggerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repeatKey := chi.URLParam(r, "repeatKey")
	if repeatKey == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"repeat key is required", nil))
		return
	}

	if err := h.service.Remove(r.Context(), repeatKey); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pageParamsFromQuery parses page/per_page query parameters. Malformed or
// missing values fall back to defaults via Normalize.
func pageParamsFromQuery(r *http.Request) types.PageParams {
	var params types.PageParams
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		params.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil {
		params.PerPage = v
	}
	return params.Normalize()
}
