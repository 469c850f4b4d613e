package core

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the total time spent probing subsystems.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem health check (database, queue).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes concurrently under a short
// deadline. 200 when every probe passes, 503 otherwise. Public endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.HealthProbes))
		wg      sync.WaitGroup
	)
	for _, probe := range s.HealthProbes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := p.Check(ctx)
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true
	for _, probe := range s.HealthProbes {
		name := probe.Name()
		err, finished := results[name]
		switch {
		case !finished:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Components: components}
	if healthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
