package authgate

import (
	"time"

	"github.com/avoss-dev/authgate/account"
)

// User is the caller-facing projection of an account. It never carries
// the password hash.
type User struct {
	ID        string
	Email     string
	Role      account.Role
	Active    bool
	CreatedAt time.Time
}

func projectUser(u *account.User) *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// AuthTokens is the bearer pair handed out by login and refresh.
type AuthTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresAt time.Time
}

// Identity is the verified snapshot ValidateAccess extracts from an
// access token, without touching the store.
type Identity struct {
	UserID string
	Email  string
	Role   account.Role
}
