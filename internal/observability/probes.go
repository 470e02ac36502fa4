package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// liveness reports that the process is serving.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every checker in parallel under the configured timeout and
// answers 200 only when all of them pass.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	results := make([]error, len(s.checkers))
	var wg sync.WaitGroup
	for i, c := range s.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	status := make(map[string]string, len(s.checkers))
	ready := true
	for i, c := range s.checkers {
		if err := results[i]; err != nil {
			// WARN: the orchestrator retries the probe.
			s.logger.Warn("health probe failed",
				slog.String("component", c.Name()),
				slog.Any("error", err),
			)
			status[c.Name()] = fmt.Sprintf("down: %v", err)
			ready = false
			continue
		}
		status[c.Name()] = "up"
	}

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":  ready,
		"status": status,
	})
}
