package auth

import (
	"time"

	"github.com/talewise/storyteller/svc/user"
)

// Session is a freshly issued access token and the account it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// UserView is the public shape of an account.
type UserView struct {
	ID                 string      `json:"id"`
	Email              string      `json:"email"`
	StoriesGenerated   int         `json:"storiesGenerated"`
	SubscriptionStatus user.Status `json:"subscriptionStatus"`
	IsPremium          bool        `json:"isPremium"`
}

func NewUserView(u *user.User, now time.Time) UserView {
	return UserView{
		ID:                 u.ID.String(),
		Email:              u.Email,
		StoriesGenerated:   u.StoriesGeneratedLifetime,
		SubscriptionStatus: u.SubscriptionStatus,
		IsPremium:          u.Premium(now),
	}
}
