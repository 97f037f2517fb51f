package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/svc/auth"
)

func TestRequireUser(t *testing.T) {
	t.Parallel()
	svc, users, tokens := newService(t)
	sess, err := svc.Register(context.Background(), "kid@example.com", "pw")
	require.NoError(t, err)

	var email string
	h := auth.RequireUser(tokens, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := auth.GetUserFromContext(r.Context()); u != nil {
			email = u.Email
		}
		w.WriteHeader(http.StatusOK)
	}))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call(sess.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kid@example.com", email)

	rec = call("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Authentication required"}`, rec.Body.String())

	ghost, _, err := tokens.Issue(uuid.NewString(), "ghost@example.com")
	require.NoError(t, err)
	rec = call(ghost)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"User not found"}`, rec.Body.String())

	assert.Nil(t, auth.GetUserFromContext(context.Background()))
}
