package jwt_test

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/jwt"
)

const secret = "test-secret-with-enough-entropy-123"

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := jwt.New(jwt.Config{})
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()
	s, err := jwt.New(jwt.Config{Secret: secret, ExpiresIn: time.Hour, Issuer: "storyteller"})
	require.NoError(t, err)

	token, exp, err := s.Issue("user-1", "kid@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "kid@example.com", claims.Email)
	assert.Equal(t, "storyteller", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, _, err = s.Issue("", "x")
	assert.ErrorIs(t, err, jwt.ErrMissingSubject)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	past, err := jwt.New(jwt.Config{Secret: secret, ExpiresIn: time.Hour}, jwt.WithClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)
	s, err := jwt.New(jwt.Config{Secret: secret, ExpiresIn: time.Hour})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		token, _, err := past.Issue("user-1", "")
		require.NoError(t, err)
		_, err = s.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := jwt.New(jwt.Config{Secret: "another-secret"})
		require.NoError(t, err)
		token, _, err := other.Issue("user-1", "")
		require.NoError(t, err)
		_, err = s.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		strict, err := jwt.New(jwt.Config{Secret: secret, Issuer: "storyteller"})
		require.NoError(t, err)
		token, _, err := s.Issue("user-1", "")
		require.NoError(t, err)
		_, err = strict.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := gojwt.NewWithClaims(gojwt.SigningMethodNone, gojwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		token, err := unsigned.SignedString(gojwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("garbage and empty", func(t *testing.T) {
		_, err := s.Parse("not.a.token")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
		_, err = s.Parse("")
		assert.ErrorIs(t, err, jwt.ErrMissingToken)
	})
}
