package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is the store-level miss. The engine maps it onto
	// ErrNotFound for callers.
	ErrRecordNotFound = errors.New("token record not found")
	// ErrAlreadyRevoked is returned by Rotate when the presented record
	// was revoked between lookup and the conditional update. Concurrent
	// rotations of the same token race on this: exactly one wins, every
	// loser gets ErrAlreadyRevoked.
	ErrAlreadyRevoked = errors.New("token record already revoked")
)

// Store persists token records. Implementations must make Rotate atomic:
// the conditional revoke of the old record and the insert of its
// replacement either both happen or neither does.
type Store interface {
	// Insert persists a freshly issued record.
	Insert(ctx context.Context, rec *Record) error

	// FindByHash loads the record for a bearer hash, or ErrRecordNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)

	// Rotate revokes the record identified by oldHash with ReasonRotated
	// and inserts replacement, atomically. The revoke is conditional on
	// the record still being active; a lost race returns ErrAlreadyRevoked
	// and inserts nothing. A missing record returns ErrRecordNotFound.
	Rotate(ctx context.Context, oldHash string, replacement *Record) error

	// RevokeByHash revokes a single active record. Revoking an already
	// revoked or missing record is not an error; ok reports whether a row
	// actually changed.
	RevokeByHash(ctx context.Context, tokenHash string, reason RevokeReason) (ok bool, err error)

	// RevokeFamily revokes every active record in a family and returns
	// how many were revoked.
	RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) (int64, error)

	// RevokeAllForUser revokes every active record across all of a user's
	// families and returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason) (int64, error)

	// DeleteExpired removes records whose expiry is older than the cutoff,
	// at most limit per call, and returns how many were deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
