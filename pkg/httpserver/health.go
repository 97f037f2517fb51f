package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/talewise/storyteller/pkg/logger"
)

// DefaultCheckTimeout bounds one readiness probe.
const DefaultCheckTimeout = 3 * time.Second

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

type liveness struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readiness struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler answers {"status":"ok","timestamp":...}. now may be nil.
func LivenessHandler(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, liveness{Status: "ok", Timestamp: now().UTC()})
	}
}

// ReadinessHandler runs checks concurrently and answers 200 when all pass,
// 503 otherwise. Failure details are logged, not returned.
func ReadinessHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, c := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), DefaultCheckTimeout)
				defer cancel()
				status := "ok"
				if err := c.Fn(ctx); err != nil {
					status = "error"
					log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				}
				mu.Lock()
				results[c.Name] = status
				mu.Unlock()
			}()
		}
		wg.Wait()

		body := readiness{Status: "ready", Timestamp: time.Now().UTC(), Checks: results}
		code := http.StatusOK
		for _, s := range results {
			if s != "ok" {
				body.Status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
