package authgate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/avoss-dev/authgate/account"
	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/password"
	"github.com/avoss-dev/authgate/throttle"
	"github.com/avoss-dev/authgate/token"
)

const (
	endpointLogin    = "login"
	endpointRegister = "register"
	endpointRefresh  = "refresh"
)

// Engine is the session facade: registration, login, refresh, logout,
// and account administration, with throttling and auditing applied at
// every entry point. Build one with the Builder; an Engine is safe for
// concurrent use.
type Engine struct {
	config     Config
	accounts   account.Store
	tokens     *token.Engine
	hasher     *password.Hasher
	jwtManager *jwt.Manager
	guard      *throttle.Guard
	audit      *auditDispatcher
	metrics    *Metrics
	log        *zap.Logger

	// dummyHash is verified against when the email is unknown, so the
	// unknown-email and wrong-password paths cost the same.
	dummyHash string

	closed atomic.Bool
}

// Close flushes the audit dispatcher. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) checkOpen() error {
	if e == nil || e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// throttleKey buckets per-IP state. Unknown IPs share one bucket rather
// than escaping throttling entirely.
func throttleKey(ctx context.Context) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return "unknown"
}

// allow runs the fixed-window check for an endpoint. A store outage is
// audited and lets the request through.
func (e *Engine) allow(ctx context.Context, endpoint string, extraKey string) error {
	if e.guard == nil {
		return nil
	}
	key := throttleKey(ctx)
	if extraKey != "" {
		key += ":" + extraKey
	}
	ok, retryAfter, err := e.guard.Allow(ctx, endpoint, key)
	if err != nil {
		e.emitFailOpen(ctx, endpoint, err)
		return nil
	}
	if !ok {
		e.emitThrottled(ctx, endpoint, retryAfter)
		return &ThrottledError{RetryAfter: retryAfter}
	}
	return nil
}

// checkDelay enforces the progressive brute-force delay for the caller's
// IP. Like allow, a store outage fails open with an audit trail.
func (e *Engine) checkDelay(ctx context.Context) error {
	if e.guard == nil {
		return nil
	}
	wait, err := e.guard.CheckDelay(ctx, throttleKey(ctx))
	if err != nil {
		e.emitFailOpen(ctx, "delay", err)
		return nil
	}
	if wait > 0 {
		e.emitThrottled(ctx, "delay", wait)
		return &ThrottledError{RetryAfter: wait}
	}
	return nil
}

func (e *Engine) recordFailure(ctx context.Context) {
	if e.guard == nil {
		return
	}
	if err := e.guard.RecordFailure(ctx, throttleKey(ctx)); err != nil {
		e.emitFailOpen(ctx, "delay", err)
	}
}

func (e *Engine) resetFailures(ctx context.Context) {
	if e.guard == nil {
		return
	}
	if err := e.guard.ResetFailures(ctx, throttleKey(ctx)); err != nil {
		e.emitFailOpen(ctx, "delay", err)
	}
}

// issueTokens signs the access token and persists a refresh record. An
// empty familyID starts a new family.
func (e *Engine) issueTokens(ctx context.Context, user *account.User, familyID string) (*AuthTokens, *token.Record, error) {
	access, err := e.jwtManager.CreateAccess(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, rec, err := e.tokens.Issue(ctx, user, familyID)
	if err != nil {
		return nil, nil, err
	}
	return &AuthTokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  e.config.JWT.AccessTTL,
		RefreshExpiresAt: rec.ExpiresAt,
	}, rec, nil
}

// mapTokenErr translates token-engine errors onto the public catalog.
func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrNotFound):
		return ErrTokenInvalid
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, token.ErrReuseDetected):
		return ErrTokenReuse
	case errors.Is(err, token.ErrOwnerInactive):
		return ErrAccountDisabled
	default:
		return err
	}
}

// Sweep deletes one batch of long-expired token records and reports how
// many were removed. Run it periodically, or use StartSweeper.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	n, err := e.tokens.Sweep(ctx, e.config.Token.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	if n > 0 {
		e.metrics.Add(MetricSweepDeleted, uint64(n))
		e.emitAudit(ctx, auditEventSweep, true, "", "", nil, func() map[string]string {
			return map[string]string{"deleted": fmt.Sprintf("%d", n)}
		})
	}
	return n, nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
// Errors are logged and the loop keeps going.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.Sweep(ctx); err != nil && !errors.Is(err, ErrEngineClosed) {
					e.log.Warn("token sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
