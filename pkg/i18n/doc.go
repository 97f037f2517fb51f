// Package i18n translates user-facing messages from a YAML catalogue.
//
// The default catalogue is embedded from locales/*.yaml; each file holds one
// top-level map per language code with nested keys addressed in dot
// notation. Placeholders use the %{name} form and are filled from key/value
// argument pairs:
//
//	tr := i18n.MustDefault()
//	tr.T("es", "story.errors.monthly_limit", "limit", "30")
//
// Language tags are matched with golang.org/x/text/language, so "es-MX" or an
// Accept-Language header resolves to the closest supported catalogue.
// Middleware stores the resolved language on the request context.
package i18n
