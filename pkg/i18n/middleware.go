package i18n

import "net/http"

const QueryParam = "lang"

// Middleware resolves the request language from the "lang" query
// parameter, then Accept-Language, and stores it with SetLocale.
func Middleware(t *Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var lang string
			if q := r.URL.Query().Get(QueryParam); q != "" {
				lang = t.Match(q)
			} else {
				lang = t.MatchAcceptLanguage(r.Header.Get("Accept-Language"))
			}
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(SetLocale(r.Context(), lang)))
		})
	}
}
