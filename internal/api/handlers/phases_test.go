package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodline/internal/observability"
	"floodline/internal/types"
)

type mockPhaseStore struct {
	phases map[string]*types.Phase
	order  []*types.Phase
	err    error
}

func (m *mockPhaseStore) GetByID(_ context.Context, uuid string) (*types.Phase, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.phases[uuid]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPhase, "phase not found", nil)
	}
	return p, nil
}

func (m *mockPhaseStore) List(context.Context) ([]*types.Phase, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func newPhaseRouter(t *testing.T, store PhaseStore) chi.Router {
	t.Helper()
	h := NewPhaseHandler(store, observability.NewLogger("test", "error"))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestListPhases_PlanOrder(t *testing.T) {
	store := &mockPhaseStore{order: []*types.Phase{
		{UUID: "p-1", Name: types.PhasePreparedness},
		{UUID: "p-2", Name: types.PhaseReadiness, ReceivedMandatoryTriggers: 2},
		{UUID: "p-3", Name: types.PhaseActivation},
	}}
	router := newPhaseRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/phases", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []types.Phase `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, types.PhasePreparedness, resp.Data[0].Name)
	assert.Equal(t, 2, resp.Data[1].ReceivedMandatoryTriggers)
}

func TestListPhases_EmptyIsAnArray(t *testing.T) {
	router := newPhaseRouter(t, &mockPhaseStore{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/phases", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestGetPhase(t *testing.T) {
	store := &mockPhaseStore{phases: map[string]*types.Phase{
		"p-2": {UUID: "p-2", Name: types.PhaseReadiness, ReceivedOptionalTriggers: 1},
	}}
	router := newPhaseRouter(t, store)

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/phases/p-2", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data types.Phase `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, types.PhaseReadiness, resp.Data.Name)
		assert.Equal(t, 1, resp.Data.ReceivedOptionalTriggers)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/phases/ghost", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
