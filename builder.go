package authgate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avoss-dev/authgate/account"
	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/password"
	"github.com/avoss-dev/authgate/store/postgres"
	"github.com/avoss-dev/authgate/throttle"
	"github.com/avoss-dev/authgate/token"
)

// Builder assembles an Engine. Wiring order does not matter; Build
// validates the result once.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	accounts account.Store
	tokens   token.Store
	log      *zap.Logger
	sink     AuditSink

	built bool
}

// New starts a builder with defaults. At minimum the signing material,
// a store, and (when throttling is enabled) a Redis client must be
// provided before Build.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis provides the client backing the throttle guard.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres wires both durable stores onto one pgx pool.
func (b *Builder) WithPostgres(db postgres.DB) *Builder {
	b.accounts = postgres.NewUsers(db)
	b.tokens = postgres.NewTokens(db)
	return b
}

// WithStores wires custom store implementations, such as the in-memory
// ones for tests.
func (b *Builder) WithStores(accounts account.Store, tokens token.Store) *Builder {
	b.accounts = accounts
	b.tokens = tokens
	return b
}

// WithLogger sets the engine logger. Defaults to zap.NewNop().
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithAuditSink sets where audit events go. Auditing also needs
// Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and assembles the engine. A builder
// can only be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.accounts == nil || b.tokens == nil {
		return nil, errors.New("stores are required: use WithPostgres or WithStores")
	}
	if cfg.Throttle.Enabled && b.redis == nil {
		return nil, errors.New("throttling requires a redis client")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	jwtManager, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	// The decoy hash keeps unknown-email logins as slow as wrong-password
	// ones. Its input is random per engine so it never matches anything.
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("decoy hash: %w", err)
	}

	var guard *throttle.Guard
	if cfg.Throttle.Enabled {
		guard = throttle.NewGuard(b.redis, log, throttle.Config{
			Limits:        cfg.throttleLimits(),
			DelaySchedule: cfg.Throttle.DelaySchedule,
			FailureTTL:    cfg.Throttle.FailureTTL,
			KeyPrefix:     cfg.Throttle.KeyPrefix,
		})
	}

	e := &Engine{
		config:     cfg,
		accounts:   b.accounts,
		jwtManager: jwtManager,
		hasher:     hasher,
		guard:      guard,
		audit:      newAuditDispatcher(cfg.Audit, b.sink),
		metrics:    NewMetrics(cfg.Metrics),
		log:        log,
		dummyHash:  dummyHash,
	}
	e.tokens = token.NewEngine(b.tokens, b.accounts, jwtManager, cfg.Token.Retention)

	b.built = true
	return e, nil
}
