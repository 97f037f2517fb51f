// Package httpserver runs the API's http.Server until its context ends, then
// shuts it down within a deadline.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router)
//
// Run binds the listener itself, so Addr reports the real address when the
// configured one uses port 0. Signal handling belongs to the caller
// (signal.NotifyContext in cmd/storyteller).
//
// LivenessHandler and ReadinessHandler serve the JSON health endpoints. A
// readiness Check is a named probe such as a database ping; each runs with
// its own timeout and a failing one turns the response into 503.
package httpserver
