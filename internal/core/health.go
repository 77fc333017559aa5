package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Probes slower than this drag the whole check to 503.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one critical dependency. A probe must respect the
// context deadline; the health handler does not wait past it.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type probeFunc struct {
	name  string
	check func(ctx context.Context) error
}

func (p probeFunc) Name() string                    { return p.name }
func (p probeFunc) Check(ctx context.Context) error { return p.check(ctx) }

// ProbeFunc wraps a plain function as a named HealthProbe.
func ProbeFunc(name string, check func(ctx context.Context) error) HealthProbe {
	return probeFunc{name: name, check: check}
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe in parallel under a two second
// budget and reports per-component status. Any failing, panicking or
// timed-out probe turns the overall answer into 503. Mounted publicly at
// GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var mu sync.Mutex
	outcomes := make(map[string]error, len(probes))

	var wg sync.WaitGroup
	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := runProbe(ctx, p)
			mu.Lock()
			outcomes[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// On timeout, report with whatever finished; stragglers show up as
	// timed out below.
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	finished := make(map[string]error, len(outcomes))
	for name, err := range outcomes {
		finished[name] = err
	}
	mu.Unlock()

	healthy := true
	components := make(map[string]componentStatus, len(probes))
	for _, probe := range probes {
		name := probe.Name()
		err, ok := finished[name]
		switch {
		case !ok:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	if !healthy {
		JSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Components: components})
		return
	}
	JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Components: components})
}

// runProbe shields the handler from a panicking probe.
func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
