// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

// Command api is the entry point for the Veridian experience API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire delivery connectors, event dispatcher, and the interaction engine.
//  7. Start HTTP server with graceful shutdown.
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

	"github.com/veridianlabs/veridian/internal/api"
	"github.com/veridianlabs/veridian/internal/connector"
	"github.com/veridianlabs/veridian/internal/dispatch"
	"github.com/veridianlabs/veridian/internal/experience"
	"github.com/veridianlabs/veridian/internal/passcode"
	"github.com/veridianlabs/veridian/internal/platform/config"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	"github.com/veridianlabs/veridian/internal/platform/migration"
	pgstore "github.com/veridianlabs/veridian/internal/platform/postgres"
	redisstore "github.com/veridianlabs/veridian/internal/platform/redis"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/internal/users"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Veridian] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Services ──────────────────────────────────────────────
	grantService, err := sec.NewGrantService(cfg.GrantPrivKeyPath, cfg.GrantPubKeyPath, constants.GrantIssuer)
	must(log, err, "initialize grant service")

	webauthnVerifier, err := sec.NewWebAuthnVerifier(cfg.WebAuthnRPID, cfg.WebAuthnRPName, cfg.WebAuthnRPOrigin)
	must(log, err, "initialize webauthn verifier")

	totpGenerator := &sec.TOTPGenerator{Issuer: cfg.WebAuthnRPName}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckSessionStore: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Delivery Connectors & Event Dispatch ───────────────────────────
	var emailSender passcode.Sender
	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" {
		emailSender = connector.NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	} else {
		log.Warn("mailgun not configured, email codes logged instead")
		emailSender = connector.NewLogSender("email", log)
	}
	smsSender := connector.NewLogSender("sms", log)

	var dispatcher dispatch.Dispatcher = dispatch.Noop{}
	if cfg.AMQPURL != "" {
		amqpDispatcher, err := dispatch.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPQueue)
		must(log, err, "connect to amqp broker")
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
	} else {
		log.Warn("amqp not configured, interaction events discarded")
	}
	asyncDispatcher := dispatch.NewAsync(dispatcher, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	userRepository := users.NewPostgresRepository(pool)

	passcodeStore := passcode.NewRedisStore(rdb)
	passcodeService := passcode.NewService(passcodeStore, emailSender, smsSender, log)

	sessionStore := experience.NewRedisSessionStore(rdb)
	verifier := experience.NewVerifier(userRepository, passcodeService, totpGenerator, webauthnVerifier)
	policy := experience.MfaPolicy{
		Required:   cfg.MFARequired,
		MinFactors: cfg.MFAMinFactors,
		AllowSkip:  cfg.MFAAllowSkip,
	}
	experienceService := experience.NewService(
		sessionStore, userRepository, verifier, grantService, asyncDispatcher, policy, log,
	)
	experienceHandler := experience.NewHandler(experienceService, cfg.IsProduction())

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Experience: experienceHandler,
	}

	server := api.NewServer(context.Background(), cfg, log, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
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
