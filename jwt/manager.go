package jwt

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// TypeAccess is the "typ" claim value of access tokens.
	TypeAccess = "access"
	// TypeRefresh is the "typ" claim value of refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrTokenMalformed is returned when a token cannot be parsed, fails
	// signature verification, or carries the wrong type tag.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenExpired is returned when a structurally valid token is past
	// its expiry claim.
	ErrTokenExpired = errors.New("token expired")
)

// Config holds signing material and lifetimes for the token manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Manager creates and verifies access and refresh bearers. A Manager is
// immutable after construction and safe for concurrent use.
type Manager struct {
	config     Config
	signKey    any
	verifyKey  any
	signMethod jwt.SigningMethod
}

// AccessClaims is the payload of an access token: a signed snapshot of the
// authenticated identity, valid without a store round trip.
type AccessClaims struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. TID is the persisted
// record id, FID the family the record belongs to. The claims identify a
// record; they never decide validity on their own.
type RefreshClaims struct {
	UID       string `json:"uid"`
	TID       string `json:"tid"`
	FID       string `json:"fid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and prepares signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.signMethod = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.signMethod = jwt.SigningMethodEdDSA
		m.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		} else {
			m.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateAccess signs an access token for the given identity snapshot.
func (m *Manager) CreateAccess(userID, email, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:       userID,
		Email:     email,
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(m.signMethod, claims).SignedString(m.signKey)
}

// CreateRefresh signs a refresh token referencing a stored record. The
// returned expiry is the one the caller must persist alongside the record
// hash, so the store and the token agree on lifetime.
func (m *Manager) CreateRefresh(userID, tokenID, familyID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.RefreshTTL)
	claims := RefreshClaims{
		UID:       userID,
		TID:       tokenID,
		FID:       familyID,
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(m.signMethod, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ParseAccess verifies an access token's signature, expiry, and type tag.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token's signature and type tag. Expiry
// is reported as [ErrTokenExpired], distinct from malformed input, so the
// caller can surface the two cases differently.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signMethod.Alg()}),
		jwt.WithLeeway(m.config.Leeway),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return ErrTokenMalformed
	}

	return nil
}

func parseEdPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	key, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ed25519")
	}
	return priv, nil
}

func parseEdPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	key, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	return pub, nil
}
