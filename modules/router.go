// Package modules assembles the feature route modules into the /api tree.
package modules

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects the modules to mount. Nil modules are skipped.
type RouterOptions struct {
	Auth         Mountable
	Stories      Mountable
	Checkout     Mountable
	Subscription Mountable
	Contact      Mountable
	Health       Mountable
	// Webhook also answers on /api/billing/webhook, the provider-neutral path.
	Webhook http.Handler
	// Metrics is mounted outside /api.
	Metrics http.Handler
}

// Router builds the route tree:
//
//	/api/health        liveness and readiness
//	/api/auth          register, login, tokens, Google sign-in
//	/api/stories       generation, retrieval, audio allowance
//	/api/stripe        checkout session, success page, webhook
//	/api/billing       webhook alias
//	/api/subscription  cancellation
//	/api/contact       contact form
//	/metrics           Prometheus
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		mount(api, "/health", opts.Health)
		mount(api, "/auth", opts.Auth)
		mount(api, "/stories", opts.Stories)
		mount(api, "/stripe", opts.Checkout)
		mount(api, "/subscription", opts.Subscription)
		mount(api, "/contact", opts.Contact)
		if opts.Webhook != nil {
			api.Method(http.MethodPost, "/billing/webhook", opts.Webhook)
		}
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

func mount(r chi.Router, pattern string, m Mountable) {
	if m != nil {
		r.Mount(pattern, m.Handle())
	}
}
