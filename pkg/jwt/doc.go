// Package jwt issues and verifies HS256 access tokens on top of
// github.com/golang-jwt/jwt/v5, and provides chi-compatible middleware that
// puts verified claims on the request context.
//
//	tokens, err := jwt.New(jwt.Config{Secret: "...", ExpiresIn: 24 * time.Hour})
//	token, expires, err := tokens.Issue(user.ID.String(), user.Email)
//
//	r.With(jwt.Middleware(tokens)).Get("/me", handler)
//	claims, ok := jwt.ClaimsFromContext(r.Context())
package jwt
