package authgate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avoss-dev/authgate/account"
	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/password"
	"github.com/avoss-dev/authgate/token"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	// Cheapest parameters Validate accepts, to keep the suite fast.
	cfg.Password = password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Policy = password.Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
	return cfg
}

type testHarness struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	accounts *account.MemoryStore
	tokens   *token.MemoryStore
}

func newTestEngine(t *testing.T, mutate func(*Config), sink AuditSink) *testHarness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	accounts := account.NewMemoryStore()
	tokens := token.NewMemoryStore()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStores(accounts, tokens).
		WithMetricsEnabled(true)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{engine: engine, redis: mr, accounts: accounts, tokens: tokens}
}

const testPassword = "Sup3r-Secret!"

func registerTestUser(t *testing.T, h *testHarness, email string) *User {
	t.Helper()
	u, _, err := h.engine.Register(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

// waitForEvent polls until the sink has seen an event of the given type.
func (s *captureSink) waitForEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, ev := range s.snapshot() {
			if ev.EventType == eventType {
				return ev
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
