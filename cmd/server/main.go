package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudprime/internal/server/api"
	"cloudprime/internal/server/auth"
	"cloudprime/internal/server/config"
	"cloudprime/internal/server/database"
	"cloudprime/internal/server/mail"
	"cloudprime/internal/server/service"
	"cloudprime/internal/server/storage"
	"cloudprime/internal/server/upstream"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging
	slog.SetDefault(newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"upload_limit_per_month", cfg.UploadLimitPerMonth,
		"upstream_url", cfg.UpstreamURL,
		"mail_enabled", cfg.MailEnabled(),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize staging storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("staging storage initialized", "path", cfg.StoragePath)

	// Repositories
	users := database.NewUserRepository(db)
	keys := database.NewAPIKeyRepository(db)
	uploads := database.NewUploadRepository(db)
	contacts := database.NewContactRepository(db)
	logs := database.NewAdminLogRepository(db)
	stats := database.NewStatsRepository(db)

	// Mail transport
	var sender mail.Sender = mail.NewLogSender()
	if cfg.MailEnabled() {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPEmail, cfg.SMTPPassword, cfg.FromName, cfg.FromEmail)
	} else {
		slog.Warn("SMTP_HOST not set, emails will be logged instead of sent")
	}
	mailer := mail.NewMailer(sender, cfg.FrontendURL)

	// Services
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)
	image := upstream.New(cfg.UpstreamURL, cfg.UpstreamFieldName, cfg.UpstreamTimeout)
	uploadSvc := service.NewUploadService(users, uploads, store, image, service.UploadLimits{
		PerMonth:    cfg.UploadLimitPerMonth,
		MaxFileSize: cfg.MaxFileSize,
		Expiry:      cfg.UploadExpiry,
	})
	services := api.Services{
		Identity: service.NewIdentityService(users, keys, tokens, mailer),
		Keys:     service.NewAPIKeyService(keys, users, uploads, cfg.MaxAPIKeys, cfg.APIKeyLifetime, cfg.UploadLimitPerMonth),
		Uploads:  uploadSvc,
		Admin:    service.NewAdminService(users, keys, uploads, contacts, logs, stats, uploadSvc),
		Contact:  service.NewContactService(contacts),
	}

	// Auth rate limit counters live in Redis when configured
	var counter api.WindowCounter = api.NewMemoryCounter()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, auth limits fail open until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		counter = api.NewRedisCounter(rdb)
		slog.Info("auth rate limits backed by redis", "addr", cfg.RedisAddr)
	}

	// Start staging janitor
	cleanup := storage.NewCleanupService(store, cfg.CleanupInterval, cfg.StagingMaxAge)
	cleanup.Start(ctx)

	// Setup HTTP router
	handler := api.NewHandler(services, db, api.CookieOptions{
		Lifetime: cfg.JWTCookieExpire,
		Secure:   cfg.Production,
	})
	e := api.SetupRouter(ctx, handler, cfg, counter)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the janitor and limiter sweeps
	stop()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
