package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/jwt"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()
	s, err := jwt.New(jwt.Config{Secret: secret, ExpiresIn: time.Hour})
	require.NoError(t, err)

	var subject string
	h := jwt.Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := jwt.ClaimsFromContext(r.Context()); ok {
			subject = c.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	token, _, err := s.Issue("user-7", "")
	require.NoError(t, err)

	t.Run("valid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-7", subject)
	})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", `{"message":"Authentication required"}`},
		{"wrong scheme", "Basic " + token, `{"message":"Authentication required"}`},
		{"bad token", "Bearer abc.def.ghi", `{"message":"Invalid token"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestBearerTokenExtractor(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  tok ")
	got, err := jwt.BearerTokenExtractor(req)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}
