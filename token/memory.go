package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node
// development. It honors the same atomicity contract as the durable
// store: Rotate is a single critical section, so concurrent rotations of
// one bearer produce exactly one winner.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*Record)}
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.byHash[rec.TokenHash] = &cp
	return nil
}

func (s *MemoryStore) FindByHash(_ context.Context, tokenHash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Rotate(_ context.Context, oldHash string, replacement *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byHash[oldHash]
	if !ok {
		return ErrRecordNotFound
	}
	if old.Revoked {
		return ErrAlreadyRevoked
	}
	now := time.Now().UTC()
	old.Revoked = true
	old.RevokedAt = &now
	old.RevokedReason = ReasonRotated
	cp := *replacement
	s.byHash[replacement.TokenHash] = &cp
	return nil
}

func (s *MemoryStore) RevokeByHash(_ context.Context, tokenHash string, reason RevokeReason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok || rec.Revoked {
		return false, nil
	}
	now := time.Now().UTC()
	rec.Revoked = true
	rec.RevokedAt = &now
	rec.RevokedReason = reason
	return true, nil
}

func (s *MemoryStore) RevokeFamily(_ context.Context, familyID string, reason RevokeReason) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, rec := range s.byHash {
		if rec.FamilyID == familyID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &now
			rec.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, reason RevokeReason) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, rec := range s.byHash {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &now
			rec.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, rec := range s.byHash {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}
