package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avoss-dev/authgate/account"
	authjwt "github.com/avoss-dev/authgate/jwt"
)

func newTestSigner(t *testing.T, refreshTTL time.Duration) *authjwt.Manager {
	t.Helper()
	m, err := authjwt.NewManager(authjwt.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    refreshTTL,
		SigningMethod: authjwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	return m
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *account.MemoryStore, *account.User) {
	t.Helper()
	tokens := NewMemoryStore()
	accounts := account.NewMemoryStore()
	user := &account.User{
		ID:     uuid.NewString(),
		Email:  "alice@example.com",
		Role:   account.RoleUser,
		Active: true,
	}
	if err := accounts.Insert(context.Background(), user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	eng := NewEngine(tokens, accounts, newTestSigner(t, 7*24*time.Hour), 0)
	return eng, tokens, accounts, user
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	bearer, rec, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec.FamilyID == "" {
		t.Fatal("issue with empty family must start a new family")
	}
	if rec.TokenHash != Hash(bearer) {
		t.Fatal("record hash does not match bearer")
	}

	v, err := eng.Validate(ctx, bearer)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Owner.ID != user.ID {
		t.Fatalf("owner = %s, want %s", v.Owner.ID, user.ID)
	}
	if v.Claims.TID != rec.ID || v.Claims.FID != rec.FamilyID {
		t.Fatal("claims do not match record")
	}
}

func TestValidateMalformed(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	if _, err := eng.Validate(context.Background(), "not.a.token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	// Signed but never persisted.
	bearer, _, err := eng.mint(user.ID, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := eng.Validate(ctx, bearer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValidateExpired(t *testing.T) {
	ctx := context.Background()
	tokens := NewMemoryStore()
	accounts := account.NewMemoryStore()
	user := &account.User{ID: uuid.NewString(), Email: "bob@example.com", Role: account.RoleUser, Active: true}
	if err := accounts.Insert(ctx, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	eng := NewEngine(tokens, accounts, newTestSigner(t, time.Millisecond), 0)

	bearer, _, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := eng.Validate(ctx, bearer); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestValidateOwnerInactive(t *testing.T) {
	ctx := context.Background()
	eng, _, accounts, user := newTestEngine(t)

	bearer, _, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := accounts.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := eng.Validate(ctx, bearer); !errors.Is(err, ErrOwnerInactive) {
		t.Fatalf("err = %v, want ErrOwnerInactive", err)
	}
}

func TestRotateReplacesWithinFamily(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	bearer, rec, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	newBearer, v, err := eng.Rotate(ctx, bearer)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if v.Record.FamilyID != rec.FamilyID {
		t.Fatal("rotation must stay within the family")
	}
	if newBearer == bearer {
		t.Fatal("rotation must mint a fresh bearer")
	}
	if _, err := eng.Validate(ctx, newBearer); err != nil {
		t.Fatalf("validate rotated bearer: %v", err)
	}
}

func TestReuseRevokesFamily(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	oldBearer, _, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	newBearer, _, err := eng.Rotate(ctx, oldBearer)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Presenting the rotated-out bearer is reuse and must shut the
	// family down before the error is returned.
	if _, err := eng.Validate(ctx, oldBearer); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("err = %v, want ErrReuseDetected", err)
	}
	if _, err := eng.Validate(ctx, newBearer); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked for sibling after reuse", err)
	}
}

func TestLogoutRevokedIsNotReuse(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	bearer, _, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ok, err := eng.RevokeSingle(ctx, bearer, ReasonLogout)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}
	if _, err := eng.Validate(ctx, bearer); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}

	// Revoking again is a no-op, not an error.
	ok, err = eng.RevokeSingle(ctx, bearer, ReasonLogout)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if ok {
		t.Fatal("second revoke must report no change")
	}
}

func TestRevokeAllForUserAcrossFamilies(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	var bearers []string
	for i := 0; i < 3; i++ {
		b, _, err := eng.Issue(ctx, user, "")
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		bearers = append(bearers, b)
	}
	n, err := eng.RevokeAllForUser(ctx, user.ID, ReasonLogout)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d records, want 3", n)
	}
	for i, b := range bearers {
		if _, err := eng.Validate(ctx, b); !errors.Is(err, ErrRevoked) {
			t.Fatalf("bearer %d: err = %v, want ErrRevoked", i, err)
		}
	}
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	ctx := context.Background()
	eng, _, _, user := newTestEngine(t)

	bearer, _, err := eng.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 16
	results := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = eng.Rotate(ctx, bearer)
		}(i)
	}
	wg.Wait()

	var wins, reuses int
	for i, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrReuseDetected), errors.Is(err, ErrRevoked):
			reuses++
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if reuses != workers-1 {
		t.Fatalf("losers = %d, want %d", reuses, workers-1)
	}
}

func TestSweepDeletesExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	accounts := account.NewMemoryStore()
	eng := NewEngine(store, accounts, newTestSigner(t, time.Hour), 0)

	expired := &Record{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		FamilyID:  uuid.NewString(),
		TokenHash: Hash("old"),
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	live := &Record{
		ID:        uuid.NewString(),
		UserID:    expired.UserID,
		FamilyID:  uuid.NewString(),
		TokenHash: Hash("new"),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	for _, rec := range []*Record{expired, live} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := eng.Sweep(ctx, 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d records, want 1", n)
	}
	if _, err := store.FindByHash(ctx, live.TokenHash); err != nil {
		t.Fatalf("live record must survive sweep: %v", err)
	}
}
