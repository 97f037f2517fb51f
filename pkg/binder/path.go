package binder

import "net/http"

// Path binds router path parameters into the `path:"name"` fields of v.
// extractor is usually chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return ErrBinderNotApplicable
		}
		return bindFunc(v, "path", ErrFailedToParsePath, func(name string) []string {
			if s := extractor(r, name); s != "" {
				return []string{s}
			}
			return nil
		})
	}
}
