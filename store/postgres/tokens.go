package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avoss-dev/authgate/token"
)

// Tokens implements token.Store on PostgreSQL.
type Tokens struct {
	db DB
}

// NewTokens wraps a pool or transaction-capable connection.
func NewTokens(db DB) *Tokens {
	return &Tokens{db: db}
}

const tokenColumns = `id, user_id, family_id, token_hash, expires_at, revoked, revoked_at, revoked_reason, created_at`

func scanToken(row pgx.Row) (*token.Record, error) {
	var (
		rec    token.Record
		reason *string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.FamilyID, &rec.TokenHash,
		&rec.ExpiresAt, &rec.Revoked, &rec.RevokedAt, &reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan token record: %w", err)
	}
	if reason != nil {
		rec.RevokedReason = token.RevokeReason(*reason)
	}
	return &rec, nil
}

const insertTokenSQL = `INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, created_at)
    VALUES ($1, $2, $3, $4, $5, $6)`

func (s *Tokens) Insert(ctx context.Context, rec *token.Record) error {
	_, err := s.db.Exec(ctx, insertTokenSQL,
		rec.ID, rec.UserID, rec.FamilyID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

func (s *Tokens) FindByHash(ctx context.Context, tokenHash string) (*token.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	)
	return scanToken(row)
}

// Rotate revokes the old record and inserts its replacement in one
// transaction. The UPDATE is conditional on the record still being
// active; zero affected rows means the race was lost or the record is
// gone, and nothing is inserted.
func (s *Tokens) Rotate(ctx context.Context, oldHash string, replacement *token.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = now(), revoked_reason = $2
		  WHERE token_hash = $1 AND NOT revoked`,
		oldHash, string(token.ReasonRotated),
	)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var revoked bool
		err := tx.QueryRow(ctx,
			`SELECT revoked FROM refresh_tokens WHERE token_hash = $1`, oldHash,
		).Scan(&revoked)
		if errors.Is(err, pgx.ErrNoRows) {
			return token.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("inspect rotated token: %w", err)
		}
		return token.ErrAlreadyRevoked
	}

	if _, err := tx.Exec(ctx, insertTokenSQL,
		replacement.ID, replacement.UserID, replacement.FamilyID,
		replacement.TokenHash, replacement.ExpiresAt, replacement.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert replacement token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func (s *Tokens) RevokeByHash(ctx context.Context, tokenHash string, reason token.RevokeReason) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = now(), revoked_reason = $2
		  WHERE token_hash = $1 AND NOT revoked`,
		tokenHash, string(reason),
	)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Tokens) RevokeFamily(ctx context.Context, familyID string, reason token.RevokeReason) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = now(), revoked_reason = $2
		  WHERE family_id = $1 AND NOT revoked`,
		familyID, string(reason),
	)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Tokens) RevokeAllForUser(ctx context.Context, userID string, reason token.RevokeReason) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = now(), revoked_reason = $2
		  WHERE user_id = $1 AND NOT revoked`,
		userID, string(reason),
	)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes a bounded batch of long-expired records. The CTE
// keeps the delete cheap enough to run from a periodic sweep without
// starving other writers.
func (s *Tokens) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`WITH doomed AS (
		    SELECT id FROM refresh_tokens WHERE expires_at < $1 LIMIT $2
		 )
		 DELETE FROM refresh_tokens WHERE id IN (SELECT id FROM doomed)`,
		cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
