package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"floodline/internal/core"
	"floodline/internal/types"
)

// PhaseStore is the phase read access the handler depends on. Mirrors the
// concrete db.PhaseRepository methods used here.
type PhaseStore interface {
	GetByID(ctx context.Context, uuid string) (*types.Phase, error)
	List(ctx context.Context) ([]*types.Phase, error)
}

// PhaseHandler exposes read-only phase state: the accumulated mandatory and
// optional trigger counters per response-plan stage.
type PhaseHandler struct {
	phases PhaseStore
	logger *slog.Logger
}

// NewPhaseHandler creates a PhaseHandler.
func NewPhaseHandler(phases PhaseStore, l *slog.Logger) *PhaseHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PhaseHandler{phases: phases, logger: l}
}

// RegisterRoutes mounts phase routes on the provided chi.Router.
func (h *PhaseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/phases", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{uuid}", h.Get)
	})
}

// List handles GET /v1/phases: all phases in plan order.
func (h *PhaseHandler) List(w http.ResponseWriter, r *http.Request) {
	phases, err := h.phases.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if phases == nil {
		phases = []*types.Phase{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: phases})
}

// Get handles GET /v1/phases/{uuid}.
func (h *PhaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	phase, err := h.phases.GetByID(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: phase})
}
