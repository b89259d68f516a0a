// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Campus HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis when configured.
//  5. Run database migrations (idempotent).
//  6. Build token, password and revocation services.
//  7. Wire HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/campus/internal/api"
	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/platform/config"
	"github.com/taibuivan/campus/internal/platform/constants"
	"github.com/taibuivan/campus/internal/platform/middleware"
	"github.com/taibuivan/campus/internal/platform/migration"
	pgstore "github.com/taibuivan/campus/internal/platform/postgres"
	redisstore "github.com/taibuivan/campus/internal/platform/redis"
	"github.com/taibuivan/campus/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("[Campus] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("revocation_backend", cfg.RevocationBackend),
		slog.Bool("rsa_signing", cfg.UsesRSA()),
	)

	// Root context for the process; cancelled on shutdown to stop background workers.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Startup deadline so misconfiguration is caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, cfg.StoreTimeout, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Services ──────────────────────────────────────────────
	tokens, err := newTokenService(cfg)
	must(log, err, "initialize token service")

	hasher, err := sec.NewPasswordHasher(cfg.BcryptCost)
	must(log, err, "initialize password hasher")

	var revocationStore auth.RevocationStore
	switch cfg.RevocationBackend {
	case config.RevocationBackendMemory:
		memoryStore := auth.NewMemoryRevocationStore(nil)
		stopJanitor := memoryStore.StartJanitor(rootCtx, time.Minute)
		defer stopJanitor()
		revocationStore = memoryStore
		log.Warn("revocation_store_in_memory", slog.String("note", "revocations are not shared between instances"))
	default:
		revocationStore = auth.NewRedisRevocationStore(rdb)
	}
	blacklist := auth.NewBlacklist(auth.BoundRevocationStore(revocationStore, cfg.StoreTimeout), tokens, tokens.SessionTTL())

	events := auth.MultiPublisher{auth.LogPublisher{}}
	if rdb != nil && cfg.EventsChannel != "" {
		events = append(events, auth.NewRedisPublisher(rdb, cfg.EventsChannel))
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	health := api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
		Timeout:       cfg.StoreTimeout,
	}
	if rdb != nil {
		health.CheckRevocationStore = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	liveness, readiness := api.NewHealthHandlers(health, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	principals := auth.NewPostgresPrincipalRepository(pool)
	options := []auth.Option{
		auth.WithStoreTimeout(cfg.StoreTimeout),
		auth.WithMfaIssuer(cfg.MfaIssuer),
	}
	mfaService := auth.NewMfaService(principals, hasher, tokens, events, options...)
	authService := auth.NewService(principals, hasher, tokens, blacklist, mfaService, events, options...)

	loginLimiter := middleware.RateLimit(rootCtx, middleware.PerMinute(constants.LoginRateLimitPerMinute), constants.LoginRateLimitPerMinute)
	authHandler := auth.NewHandler(authService, mfaService, cfg.IsProduction(), loginLimiter)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	}

	server := api.NewServer(rootCtx, cfg, log, tokens, blacklist, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", "campus"))
}

// newTokenService prefers RS256 when both key paths are configured.
func newTokenService(cfg *config.Config) (*sec.TokenService, error) {
	if cfg.UsesRSA() {
		return sec.NewRSATokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath)
	}
	return sec.NewHMACTokenService([]byte(cfg.JWTSecret))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
