// Package throttle rate-limits authentication attempts with Redis-backed
// counters: a fixed-window limiter per endpoint and client, and a
// progressive delay that grows with consecutive credential failures.
//
// The guard fails open. When Redis is unreachable, requests are allowed
// rather than locking every caller out; the outage is logged and
// surfaced to callers so they can record it.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrStoreUnavailable wraps Redis failures. Callers receiving it have
// already been allowed through; the error exists for auditing.
var ErrStoreUnavailable = errors.New("throttle store unavailable")

// Limit is a fixed-window cap: at most Max hits per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Config wires the guard.
type Config struct {
	// Limits maps an endpoint name to its fixed-window cap. Endpoints
	// without an entry are not window-limited.
	Limits map[string]Limit

	// DelaySchedule is indexed by consecutive failure count. After the
	// nth failure the next attempt must wait DelaySchedule[n] (the last
	// entry for counts past the end). Leading zeros give callers free
	// retries before delays start.
	DelaySchedule []time.Duration

	// FailureTTL bounds how long a failure streak is remembered without
	// new failures.
	FailureTTL time.Duration

	// KeyPrefix namespaces the guard's Redis keys.
	KeyPrefix string
}

// Guard applies throttling policy against Redis.
type Guard struct {
	rdb       redis.UniversalClient
	log       *zap.Logger
	cfg       Config
	failOpens atomic.Int64
}

// NewGuard builds a guard. The logger may not be nil; pass zap.NewNop()
// to silence it.
func NewGuard(rdb redis.UniversalClient, log *zap.Logger, cfg Config) *Guard {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "throttle"
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = 24 * time.Hour
	}
	return &Guard{rdb: rdb, log: log, cfg: cfg}
}

// FailOpenCount reports how many decisions were allowed because the
// store was unreachable.
func (g *Guard) FailOpenCount() int64 { return g.failOpens.Load() }

// Allow checks the fixed-window cap for an endpoint and client key. It
// returns false with a retry-after only when the window is exhausted.
// On store failure it returns true together with ErrStoreUnavailable.
func (g *Guard) Allow(ctx context.Context, endpoint, key string) (bool, time.Duration, error) {
	limit, ok := g.cfg.Limits[endpoint]
	if !ok {
		return true, 0, nil
	}

	rkey := fmt.Sprintf("%s:win:%s:%s", g.cfg.KeyPrefix, endpoint, key)
	pipe := g.rdb.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, limit.Window)
	pttl := pipe.PTTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, g.failOpen("allow", err)
	}

	if incr.Val() <= int64(limit.Max) {
		return true, 0, nil
	}
	retryAfter := pttl.Val()
	if retryAfter < 0 {
		retryAfter = limit.Window
	}
	return false, retryAfter, nil
}

// CheckDelay reports how long a client must still wait before its next
// credential attempt. Zero means the attempt may proceed. On store
// failure it returns zero together with ErrStoreUnavailable.
func (g *Guard) CheckDelay(ctx context.Context, key string) (time.Duration, error) {
	wait, err := g.rdb.PTTL(ctx, g.blockKey(key)).Result()
	if err != nil {
		return 0, g.failOpen("check delay", err)
	}
	if wait <= 0 {
		return 0, nil
	}
	return wait, nil
}

// RecordFailure bumps the consecutive failure count for a client and
// arms the corresponding delay from the schedule.
func (g *Guard) RecordFailure(ctx context.Context, key string) error {
	ckey := g.countKey(key)
	pipe := g.rdb.TxPipeline()
	incr := pipe.Incr(ctx, ckey)
	pipe.Expire(ctx, ckey, g.cfg.FailureTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return g.failOpen("record failure", err)
	}

	delay := g.delayFor(incr.Val())
	if delay <= 0 {
		return nil
	}
	if err := g.rdb.Set(ctx, g.blockKey(key), 1, delay).Err(); err != nil {
		return g.failOpen("record failure", err)
	}
	return nil
}

// ResetFailures clears a client's failure streak, typically after a
// successful login.
func (g *Guard) ResetFailures(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, g.countKey(key), g.blockKey(key)).Err(); err != nil {
		return g.failOpen("reset failures", err)
	}
	return nil
}

func (g *Guard) delayFor(failures int64) time.Duration {
	sched := g.cfg.DelaySchedule
	if len(sched) == 0 || failures < 0 {
		return 0
	}
	if failures >= int64(len(sched)) {
		return sched[len(sched)-1]
	}
	return sched[failures]
}

func (g *Guard) countKey(key string) string {
	return fmt.Sprintf("%s:bf:count:%s", g.cfg.KeyPrefix, key)
}

func (g *Guard) blockKey(key string) string {
	return fmt.Sprintf("%s:bf:block:%s", g.cfg.KeyPrefix, key)
}

func (g *Guard) failOpen(op string, err error) error {
	g.failOpens.Add(1)
	g.log.Warn("throttle store unavailable, failing open",
		zap.String("op", op),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
