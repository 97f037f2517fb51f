package auth

import "context"

const OAuthProviderGoogle = "google"

// ProviderAdapter hides the protocol details of one OAuth provider.
type ProviderAdapter interface {
	ProviderID() string
	AuthURL(state string) (string, error)
	// ResolveProfile exchanges code for a token and fetches the profile.
	// A failed exchange returns ErrInvalidCode; a profile without an email
	// returns ErrNoPrimaryEmail.
	ResolveProfile(ctx context.Context, code string) (ProviderProfile, error)
}

type ProviderProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}
