package authgate

import (
	"errors"
	"time"

	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/password"
	"github.com/avoss-dev/authgate/throttle"
)

// Config is the engine's full configuration. Zero values are filled from
// defaultConfig by the builder; Validate runs before the engine is
// handed out.
type Config struct {
	JWT      jwt.Config
	Password password.Config
	Policy   password.Policy
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Token    TokenConfig
}

// ThrottleConfig shapes both throttling layers: the fixed windows per
// endpoint and the delay that grows with consecutive credential
// failures.
type ThrottleConfig struct {
	Enabled bool

	LoginLimit     int
	LoginWindow    time.Duration
	RegisterLimit  int
	RegisterWindow time.Duration
	RefreshLimit   int
	RefreshWindow  time.Duration

	DelaySchedule []time.Duration
	FailureTTL    time.Duration
	KeyPrefix     string
}

// TokenConfig shapes refresh-token housekeeping.
type TokenConfig struct {
	// Retention is how long expired records stay in the store before a
	// sweep removes them.
	Retention time.Duration
	// SweepBatch caps how many records one sweep call deletes.
	SweepBatch int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the builder starts from.
// Callers adjust what differs and pass the result to WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: jwt.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "authgate",
		},
		Password: password.Config{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: password.Policy{
			MinLength:     10,
			RequireUpper:  true,
			RequireLower:  true,
			RequireDigit:  true,
			RequireSymbol: true,
		},
		Throttle: ThrottleConfig{
			Enabled:        true,
			LoginLimit:     10,
			LoginWindow:    time.Minute,
			RegisterLimit:  5,
			RegisterWindow: 15 * time.Minute,
			RefreshLimit:   60,
			RefreshWindow:  time.Minute,
			DelaySchedule: []time.Duration{
				0, 0, 0,
				30 * time.Second,
				time.Minute,
				2 * time.Minute,
				5 * time.Minute,
			},
			FailureTTL: 24 * time.Hour,
			KeyPrefix:  "authgate",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Token: TokenConfig{
			Retention:  30 * 24 * time.Hour,
			SweepBatch: 1000,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Throttle.DelaySchedule = append([]time.Duration(nil), cfg.Throttle.DelaySchedule...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Policy.MinLength < 1 {
		return errors.New("Policy MinLength must be >= 1")
	}

	if c.Throttle.Enabled {
		if c.Throttle.LoginLimit <= 0 || c.Throttle.LoginWindow <= 0 {
			return errors.New("Throttle login limit and window must be > 0")
		}
		if c.Throttle.RegisterLimit <= 0 || c.Throttle.RegisterWindow <= 0 {
			return errors.New("Throttle register limit and window must be > 0")
		}
		if c.Throttle.RefreshLimit <= 0 || c.Throttle.RefreshWindow <= 0 {
			return errors.New("Throttle refresh limit and window must be > 0")
		}
		for i, d := range c.Throttle.DelaySchedule {
			if d < 0 {
				return errors.New("Throttle DelaySchedule entries must be >= 0")
			}
			if i > 0 && d < c.Throttle.DelaySchedule[i-1] {
				return errors.New("Throttle DelaySchedule must be non-decreasing")
			}
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	if c.Token.Retention < 0 {
		return errors.New("Token Retention must be >= 0")
	}
	if c.Token.SweepBatch <= 0 {
		return errors.New("Token SweepBatch must be > 0")
	}

	return nil
}

// throttleLimits maps the config onto the guard's endpoint table.
func (c *Config) throttleLimits() map[string]throttle.Limit {
	return map[string]throttle.Limit{
		endpointLogin:    {Max: c.Throttle.LoginLimit, Window: c.Throttle.LoginWindow},
		endpointRegister: {Max: c.Throttle.RegisterLimit, Window: c.Throttle.RegisterWindow},
		endpointRefresh:  {Max: c.Throttle.RefreshLimit, Window: c.Throttle.RefreshWindow},
	}
}
