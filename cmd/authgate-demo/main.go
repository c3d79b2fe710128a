// Command authgate-demo wires the engine against real PostgreSQL and
// Redis instances and walks one register/login/refresh/logout cycle.
//
// Configuration comes from the environment (a .env file is honored):
//
//	DATABASE_URL   postgres connection string (required)
//	REDIS_ADDR     redis address, default localhost:6379
//	JWT_SECRET     hs256 signing secret (required)
//	SENTRY_DSN     optional, enables the Sentry audit sink
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avoss-dev/authgate"
	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authgate-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	var sink authgate.AuditSink = authgate.NewJSONWriterSink(os.Stdout)
	if sentryDSN := os.Getenv("SENTRY_DSN"); sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: sentryDSN}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		sink = authgate.NewSentrySink(nil)
	}

	engine, err := authgate.New().
		WithConfig(demoConfig(secret)).
		WithRedis(rdb).
		WithPostgres(pool).
		WithLogger(log).
		WithAuditSink(sink).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.StartSweeper(ctx, time.Hour)

	email := fmt.Sprintf("demo+%d@example.com", time.Now().UnixNano())
	const demoPassword = "Demo-Passw0rd!"
	callCtx := authgate.WithClientIP(ctx, "127.0.0.1")

	user, pair, err := engine.Register(callCtx, email, demoPassword)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	log.Info("registered", zap.String("user", user.ID), zap.String("email", user.Email))

	id, err := engine.ValidateAccess(callCtx, pair.AccessToken)
	if err != nil {
		return fmt.Errorf("validate access: %w", err)
	}
	log.Info("access token valid", zap.String("role", string(id.Role)))

	next, err := engine.Refresh(callCtx, pair.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	log.Info("rotated refresh token")

	// Replaying the old bearer must trip reuse detection.
	if _, err := engine.Refresh(callCtx, pair.RefreshToken); err != nil {
		log.Info("replay rejected", zap.Error(err))
	}

	if err := engine.Logout(callCtx, next.RefreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	log.Info("logged out")

	snap := engine.MetricsSnapshot()
	log.Info("metrics",
		zap.Uint64("refresh_success", snap.Counters[authgate.MetricRefreshSuccess]),
		zap.Uint64("reuse_detected", snap.Counters[authgate.MetricRefreshReuseDetected]),
	)
	return nil
}

func demoConfig(secret string) authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte(secret)
	cfg.Audit.Enabled = true
	return cfg
}
