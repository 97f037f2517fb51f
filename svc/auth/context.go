package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/talewise/storyteller/pkg/jwt"
	"github.com/talewise/storyteller/svc/user"
)

type userContextKey struct{}

func SetUserToContext(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// GetUserFromContext returns nil outside RequireUser.
func GetUserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userContextKey{}).(*user.User)
	return u
}

// RequireUser verifies the bearer token and loads its account. Tokens for
// accounts that no longer exist get 401 "User not found".
func RequireUser(tokens *jwt.Service, users user.Store) func(http.Handler) http.Handler {
	verify := jwt.Middleware(tokens)
	return func(next http.Handler) http.Handler {
		load := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := jwt.ClaimsFromContext(r.Context())
			if !ok {
				unauthorized(w, "Authentication required")
				return
			}
			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}
			u, err := users.FindByID(r.Context(), id)
			if errors.Is(err, user.ErrNotFound) {
				unauthorized(w, "User not found")
				return
			}
			if err != nil {
				unauthorized(w, "Authentication failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(SetUserToContext(r.Context(), u)))
		})
		return verify(load)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
