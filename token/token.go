// Package token implements the refresh-token lifecycle: issuance,
// validation, atomic rotation, and revocation, with family-wide reuse
// detection.
//
// Every refresh token issued from one login belongs to one family. A
// rotation revokes the presented record and inserts its replacement in
// the same family as a single transaction, so within a family at most one
// record is ever active. Presenting a rotated-out token again is treated
// as theft: the whole family is revoked before the caller sees the error.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// RevokeReason records why a token stopped being valid. It distinguishes
// normal rotation and intentional logout from the reuse security
// response, so a revoked token can later be reported correctly.
type RevokeReason string

const (
	// ReasonRotated marks the old record of a successful rotation.
	ReasonRotated RevokeReason = "rotated"
	// ReasonLogout marks records revoked by explicit logout.
	ReasonLogout RevokeReason = "logout"
	// ReasonReuse marks records revoked by the family-wide reuse response.
	ReasonReuse RevokeReason = "reuse"
)

var (
	// ErrMalformed is returned when the bearer fails signature or shape
	// checks, before any store lookup.
	ErrMalformed = errors.New("malformed refresh token")
	// ErrNotFound is returned when a well-formed bearer matches no record.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired is returned for a record past its expiry.
	ErrExpired = errors.New("refresh token expired")
	// ErrRevoked is returned for a record revoked by logout or by a prior
	// family-wide revocation.
	ErrRevoked = errors.New("refresh token revoked")
	// ErrReuseDetected is returned when a rotated-out token is presented
	// again. By the time a caller sees this error the token's entire
	// family has already been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrOwnerInactive is returned when the owning account is deactivated.
	ErrOwnerInactive = errors.New("token owner inactive")
)

// Record is the durable trace of one issued refresh token. The bearer
// value itself is never stored; TokenHash is the sha256 of the bearer.
type Record struct {
	ID            string
	UserID        string
	FamilyID      string
	TokenHash     string
	ExpiresAt     time.Time
	Revoked       bool
	RevokedAt     *time.Time
	RevokedReason RevokeReason
	CreatedAt     time.Time
}

// Hash computes the storage key for a bearer value.
func Hash(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(sum[:])
}
