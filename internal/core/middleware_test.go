package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodline/internal/config"
	"floodline/internal/observability"
	"floodline/internal/types"
)

const testAdminKey = "super-secret-admin-key"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Security: config.SecurityConfig{AdminAPIKey: testAdminKey},
	}
	s, err := NewServer(cfg, observability.NewLogger("test", "error"))
	require.NoError(t, err)
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	RequestIDMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
	assert.Len(t, seen, 32)
}

func TestRequestIDMiddleware_ReusesIncomingHeader(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "upstream-trace-1")
	w := httptest.NewRecorder()
	RequestIDMiddleware(inner).ServeHTTP(w, r)

	assert.Equal(t, "upstream-trace-1", seen)
	assert.Equal(t, "upstream-trace-1", w.Header().Get("X-Request-Id"))
}

func TestAdminAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	protected := s.AdminAuthMiddleware(okHandler())

	assertRejected := func(t *testing.T, r *http.Request, code types.ErrorCode) {
		t.Helper()
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, string(code), resp.Error.Code)
	}

	t.Run("missing header", func(t *testing.T) {
		assertRejected(t, httptest.NewRequest(http.MethodGet, "/v1/triggers", nil), types.ErrCodeAuthTokenMissing)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/triggers", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assertRejected(t, r, types.ErrCodeAuthTokenInvalid)
	})

	t.Run("wrong key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/triggers", nil)
		r.Header.Set("Authorization", "Bearer not-the-key")
		assertRejected(t, r, types.ErrCodeAuthTokenInvalid)
	})

	t.Run("valid key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/triggers", nil)
		r.Header.Set("Authorization", "Bearer "+testAdminKey)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRecoverer_Writes500OnPanic(t *testing.T) {
	s := newTestServer(t)
	panicky := s.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	panicky.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/triggers", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestMountRoutes_HealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	s.MountRoutes()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
