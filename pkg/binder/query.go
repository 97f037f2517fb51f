package binder

import "net/http"

// Query binds URL query parameters into the `query:"name"` fields of v.
// Untagged fields are matched by their lowercased name.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindValues(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
