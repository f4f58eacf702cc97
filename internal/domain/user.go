package domain

import (
	"strings"
	"time"
)

// Role of a user. Re-derived from the admin allow-list on every grant,
// never cached outside the user row.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an authenticated account known to the agent.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      Role
	FetchDays int // forward-looking window preference, 1..365
	CreatedAt time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Window returns the user's fetch-window preference, defaulting to 7 days.
func (u *User) Window() int {
	if u.FetchDays >= 1 && u.FetchDays <= 365 {
		return u.FetchDays
	}
	return DefaultFetchDays
}

// DefaultFetchDays is used when a user has no stored window preference.
const DefaultFetchDays = 7

// DeriveRole maps an email to a role using the admin allow-list.
// Comparison is case-insensitive; the list is expected pre-normalized
// but stray whitespace is tolerated.
func DeriveRole(email string, adminList []string) Role {
	e := strings.ToLower(strings.TrimSpace(email))
	for _, a := range adminList {
		if e == strings.ToLower(strings.TrimSpace(a)) {
			return RoleAdmin
		}
	}
	return RoleUser
}

// Credential is a user's decrypted OAuth token pair. RefreshToken may be
// empty when the provider granted none; AccessToken is always set when a
// record exists.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is past its expiry at the given instant.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
