// Package health serves /api/health and /api/health/ready.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talewise/storyteller/pkg/httpserver"
)

type Module struct {
	log    *slog.Logger
	checks []httpserver.Check
}

// New takes the readiness probes of the configured backends.
func New(log *slog.Logger, checks ...httpserver.Check) *Module {
	return &Module{log: log, checks: checks}
}

func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Get("/", httpserver.LivenessHandler(nil))
	r.Get("/ready", httpserver.ReadinessHandler(m.log, m.checks...))
	return r
}
