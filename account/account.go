// Package account defines the durable user identity record and the store
// contract the credential layer is built on. The record owns the password
// hash; everything above this package works with projections that exclude
// it.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role is the closed set of authorization roles.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "USER"
	// RoleAdmin marks administrative accounts.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

var (
	// ErrDuplicateEmail is returned by Insert when the normalized email is
	// already taken. The storage layer enforces uniqueness; this error is
	// the mapped uniqueness violation.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound is returned by lookups and updates that match no user.
	ErrNotFound = errors.New("user not found")
)

// User is the full identity record, including verification material.
// Deactivation is the Active flag; records are never deleted.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is the credential store contract. Lookups are by normalized
// email; callers must normalize before calling (see [NormalizeEmail]).
type Store interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, u *User) error
	UpdateRole(ctx context.Context, id string, role Role) error
	SetActive(ctx context.Context, id string, active bool) error
}

// NormalizeEmail canonicalizes an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
