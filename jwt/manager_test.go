package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret"),
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := testManager(t)

	signed, err := m.CreateAccess("u1", "alice@example.com", "ADMIN")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(signed)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" || claims.Email != "alice@example.com" || claims.Role != "ADMIN" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenType != TypeAccess {
		t.Fatalf("expected typ=access, got %q", claims.TokenType)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	m := testManager(t)

	signed, expiresAt, err := m.CreateRefresh("u1", "tok-1", "fam-1")
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}
	if until := time.Until(expiresAt); until < 6*24*time.Hour {
		t.Fatalf("expected ~7d expiry, got %v", until)
	}

	claims, err := m.ParseRefresh(signed)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if claims.UID != "u1" || claims.TID != "tok-1" || claims.FID != "fam-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTypeConfusionRejected(t *testing.T) {
	m := testManager(t)

	access, err := m.CreateAccess("u1", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	refresh, _, err := m.CreateRefresh("u1", "tok-1", "fam-1")
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := testManager(t)

	signed, _, err := m.CreateRefresh("u1", "tok-1", "fam-1")
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := m.ParseRefresh(tampered); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestExpiredRefreshDistinctFromMalformed(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Millisecond,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, _, err := m.CreateRefresh("u1", "tok-1", "fam-1")
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	_, err = m.ParseRefresh(signed)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if errors.Is(err, ErrTokenMalformed) {
		t.Fatal("expired token must not be reported as malformed")
	}
}

func TestWrongKeyRejected(t *testing.T) {
	m := testManager(t)

	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("a-different-secret"),
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := other.CreateAccess("u1", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	if _, err := m.ParseAccess(signed); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := m.CreateAccess("u1", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	claims, err := m.ParseAccess(signed)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
