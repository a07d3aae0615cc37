// Package identity implements the user domain: accounts, credential
// handling, the order-validity predicate and the IdentityService handlers.
package identity

import (
	"strings"
	"time"
)

const (
	maxFailedLogins = 5
	lockoutWindow   = 15 * time.Minute
	minPasswordLen  = 8
)

// User is the persisted account record.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Phone               string
	Roles               []string
	IsActive            bool
	IsEmailVerified     bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsValidForOrder is the predicate the order service consults before
// confirming an order.
func (u *User) IsValidForOrder() bool {
	return u.IsActive && u.IsEmailVerified && u.FailedLoginAttempts < maxFailedLogins
}

// IsLocked reports whether a lockout is in force at the given instant.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// validEmail applies the same minimal shape check on both create and update.
func validEmail(email string) bool {
	return strings.Contains(email, "@")
}

func validPassword(password string) bool {
	return len(password) >= minPasswordLen
}
