package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoss-dev/authgate/account"
	authjwt "github.com/avoss-dev/authgate/jwt"
)

// AccountSource is the slice of account lookup the engine needs to check
// token ownership. *postgres.Users and account.MemoryStore both satisfy it.
type AccountSource interface {
	GetByID(ctx context.Context, id string) (*account.User, error)
}

// Engine drives the token lifecycle against a Store.
type Engine struct {
	store    Store
	accounts AccountSource
	signer   *authjwt.Manager

	// retention is how long expired records are kept before Sweep removes
	// them. Keeping them a while preserves the reuse-detection trail for
	// tokens presented shortly after expiry.
	retention time.Duration

	now func() time.Time
}

// NewEngine wires a lifecycle engine. retention may be zero, in which
// case Sweep deletes records as soon as they expire.
func NewEngine(store Store, accounts AccountSource, signer *authjwt.Manager, retention time.Duration) *Engine {
	return &Engine{
		store:     store,
		accounts:  accounts,
		signer:    signer,
		retention: retention,
		now:       time.Now,
	}
}

// Validation is the result of a successful Validate call.
type Validation struct {
	Record *Record
	Owner  *account.User
	Claims *authjwt.RefreshClaims
}

// Issue signs a new refresh bearer for a user and persists its record.
// An empty familyID starts a new family, which is what a fresh login
// does; rotation passes the existing family through.
func (e *Engine) Issue(ctx context.Context, user *account.User, familyID string) (string, *Record, error) {
	bearer, rec, err := e.mint(user.ID, familyID)
	if err != nil {
		return "", nil, err
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("persist refresh token: %w", err)
	}
	return bearer, rec, nil
}

// mint signs a bearer and builds its unsaved record.
func (e *Engine) mint(userID, familyID string) (string, *Record, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}
	tokenID := uuid.NewString()
	bearer, expiresAt, err := e.signer.CreateRefresh(userID, tokenID, familyID)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	rec := &Record{
		ID:        tokenID,
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: Hash(bearer),
		ExpiresAt: expiresAt,
		CreatedAt: e.now().UTC(),
	}
	return bearer, rec, nil
}

// Validate runs the presented bearer through the full decision table:
// signature, record existence, revocation state, expiry, owner state.
// Checks are ordered so that the most severe condition wins; in
// particular a revoked record is reported before an expired one, and a
// rotated-out record triggers the family-wide reuse response before the
// caller sees any error.
func (e *Engine) Validate(ctx context.Context, bearer string) (*Validation, error) {
	claims, err := e.signer.ParseRefresh(bearer)
	if err != nil {
		if errors.Is(err, authjwt.ErrTokenExpired) {
			// The signature was valid, so the record may still exist and
			// carry revocation state worth reporting ahead of expiry.
			return nil, e.classifyExpired(ctx, bearer)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rec, err := e.store.FindByHash(ctx, Hash(bearer))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rec.Revoked {
		return nil, e.classifyRevoked(ctx, rec)
	}
	if !rec.ExpiresAt.After(e.now()) {
		return nil, ErrExpired
	}

	owner, err := e.accounts.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrOwnerInactive
		}
		return nil, fmt.Errorf("lookup token owner: %w", err)
	}
	if !owner.Active {
		return nil, ErrOwnerInactive
	}

	return &Validation{Record: rec, Owner: owner, Claims: claims}, nil
}

// classifyExpired decides what an expired bearer should report. Revoked
// state outranks expiry, and a rotated-out record still trips the reuse
// response even after its expiry passed.
func (e *Engine) classifyExpired(ctx context.Context, bearer string) error {
	rec, err := e.store.FindByHash(ctx, Hash(bearer))
	if err != nil {
		return ErrExpired
	}
	if rec.Revoked {
		return e.classifyRevoked(ctx, rec)
	}
	return ErrExpired
}

// classifyRevoked turns a revoked record into the caller-facing error.
// A record revoked by rotation should never be presented again; seeing
// one means the bearer leaked, so the whole family is shut down before
// the error surfaces.
func (e *Engine) classifyRevoked(ctx context.Context, rec *Record) error {
	if rec.RevokedReason != ReasonRotated {
		return ErrRevoked
	}
	if _, err := e.store.RevokeFamily(ctx, rec.FamilyID, ReasonReuse); err != nil {
		return fmt.Errorf("revoke token family after reuse: %w", err)
	}
	return ErrReuseDetected
}

// Rotate validates the presented bearer and, if it is live, atomically
// replaces it with a fresh bearer in the same family. When two rotations
// race on the same bearer exactly one wins; the loser is handled as
// reuse, because at that point two parties demonstrably hold the same
// token.
func (e *Engine) Rotate(ctx context.Context, bearer string) (string, *Validation, error) {
	v, err := e.Validate(ctx, bearer)
	if err != nil {
		return "", nil, err
	}

	newBearer, replacement, err := e.mint(v.Record.UserID, v.Record.FamilyID)
	if err != nil {
		return "", nil, err
	}

	if err := e.store.Rotate(ctx, v.Record.TokenHash, replacement); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRevoked):
			if _, ferr := e.store.RevokeFamily(ctx, v.Record.FamilyID, ReasonReuse); ferr != nil {
				return "", nil, fmt.Errorf("revoke token family after rotation race: %w", ferr)
			}
			return "", nil, ErrReuseDetected
		case errors.Is(err, ErrRecordNotFound):
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return newBearer, &Validation{Record: replacement, Owner: v.Owner, Claims: v.Claims}, nil
}

// RevokeSingle revokes the record behind a bearer, typically on logout.
// It does not require the bearer to be live; revoking an already revoked
// or unknown token reports ok=false without error, so logout stays
// idempotent.
func (e *Engine) RevokeSingle(ctx context.Context, bearer string, reason RevokeReason) (bool, error) {
	if _, err := e.signer.ParseRefresh(bearer); err != nil && !errors.Is(err, authjwt.ErrTokenExpired) {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ok, err := e.store.RevokeByHash(ctx, Hash(bearer), reason)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return ok, nil
}

// RevokeFamily shuts down one family.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) (int64, error) {
	return e.store.RevokeFamily(ctx, familyID, reason)
}

// RevokeAllForUser shuts down every family a user has, across devices.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason) (int64, error) {
	return e.store.RevokeAllForUser(ctx, userID, reason)
}

// Sweep deletes records that expired longer than the retention window
// ago, at most limit per call. Callers run it periodically; sweeping is
// retention housekeeping only, expiry itself is enforced lazily on
// presentation.
func (e *Engine) Sweep(ctx context.Context, limit int) (int64, error) {
	cutoff := e.now().Add(-e.retention)
	return e.store.DeleteExpired(ctx, cutoff, limit)
}
