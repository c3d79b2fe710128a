package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshRotates(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	_, pair, err := h.engine.Register(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	next, err := h.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must mint a new bearer")
	}
	if next.AccessToken == "" {
		t.Fatal("refresh must mint a new access token")
	}

	// The replacement keeps working; chains can be arbitrarily long.
	if _, err := h.engine.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	_, pair, err := h.engine.Register(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	next, err := h.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("replayed bearer err = %v, want ErrTokenReuse", err)
	}
	// The whole family is dead, including the legitimately rotated head.
	if _, err := h.engine.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("sibling bearer err = %v, want ErrTokenRevoked", err)
	}
}

func TestRefreshInvalidToken(t *testing.T) {
	h := newTestEngine(t, nil, nil)

	_, err := h.engine.Refresh(context.Background(), "garbage")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutRevokesOnlyThatToken(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	registerTestUser(t, h, "alice@example.com")
	_, first, err := h.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, second, err := h.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := h.engine.Logout(ctx, first.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Logout is not reuse: the token is revoked, not replayed.
	if _, err := h.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked", err)
	}
	// Other sessions are untouched.
	if _, err := h.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("other session refresh: %v", err)
	}
	// Logging out twice is fine.
	if err := h.engine.Logout(ctx, first.RefreshToken); err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
}

func TestLogoutAllRevokesEveryFamily(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	u := registerTestUser(t, h, "alice@example.com")

	var sessions []*AuthTokens
	for i := 0; i < 3; i++ {
		_, pair, err := h.engine.Login(ctx, "alice@example.com", testPassword)
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		sessions = append(sessions, pair)
	}

	if err := h.engine.LogoutAll(ctx, u.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	for i, pair := range sessions {
		_, err := h.engine.Refresh(ctx, pair.RefreshToken)
		if !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("session %d err = %v, want ErrTokenRevoked", i, err)
		}
		if errors.Is(err, ErrTokenReuse) {
			t.Fatalf("session %d: logout-all must not read as reuse", i)
		}
	}
}

func TestLogoutAllByAccessToken(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	_, pair, err := h.engine.Register(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// A refresh bearer is not proof of an authenticated session.
	if err := h.engine.LogoutAllByAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh bearer err = %v, want ErrTokenInvalid", err)
	}

	if err := h.engine.LogoutAllByAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked after logout-all", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	h := newTestEngine(t, nil, nil)
	ctx := context.Background()

	_, pair, err := h.engine.Register(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := h.engine.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrTokenReuse) || errors.Is(err, ErrTokenRevoked) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}
