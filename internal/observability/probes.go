package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
)

// ReadinessReport is the body of the readiness probe.
type ReadinessReport struct {
	Ready  bool              `json:"ready"`
	Status map[string]string `json:"status"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness answers 200 only when every checker passes within the configured timeout.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	report := s.check(ctx)

	if report.Ready {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report)
}

func (s *Server) check(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Ready: true, Status: make(map[string]string, len(s.checkers))}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// Warn only: the orchestrator retries the probe.
				s.logger.Warn("health probe failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				report.Status[c.Name()] = fmt.Sprintf("down: %v", err)
				report.Ready = false
				return
			}
			report.Status[c.Name()] = "up"
		}(checker)
	}

	wg.Wait()
	return report
}
