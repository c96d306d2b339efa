package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/msmtupload/internal/config"
	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/logging"
	"github.com/JonMunkholm/msmtupload/internal/odata"
	"github.com/JonMunkholm/msmtupload/internal/storage"
	"github.com/JonMunkholm/msmtupload/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	opts := core.Options{
		InterRowDelay:     cfg.Submit.InterRowDelay,
		SubmitTimeout:     cfg.Submit.Timeout,
		MaxFileSize:       cfg.Submit.MaxFileSize,
		BatchTTL:          cfg.Submit.BatchTTL,
		WithLatestReading: cfg.Remote.LookupLatest,
		SettingsVersion:   cfg.Preferences.Version,
		SettingsRetry: core.RetryPolicy{
			MaxAttempts: cfg.Preferences.ApplyAttempts,
			Delay:       cfg.Preferences.ApplyDelay,
			Multiplier:  1,
		},
	}

	client := odata.New(cfg.Remote.BaseURL,
		odata.WithBearerToken(cfg.Remote.BearerToken),
		odata.WithTimeout(cfg.Remote.Timeout),
		odata.WithPaths(cfg.Remote.CreatePath, cfg.Remote.LookupPath),
		odata.WithLogger(slog.Default()),
	)
	opts.Submitter = client
	if cfg.Remote.LookupEnabled {
		opts.Lookup = client
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	// The outcome archive is optional; without it history stays empty.
	if cfg.Database.URL != "" {
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		archive := storage.NewPostgresArchive(pool)
		if err := archive.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare upload log table", "error", err)
			os.Exit(1)
		}
		opts.Archive = archive

		go core.StartArchivePruner(jobCtx, archive, core.RetentionConfig{
			Retention:     cfg.Database.ArchiveRetention,
			CheckInterval: cfg.Database.PruneInterval,
		}, slog.Default())
	}

	if cfg.Preferences.DBPath != "" {
		db, err := storage.OpenSQLite(cfg.Preferences.DBPath)
		if err != nil {
			slog.Error("failed to open preferences database", "path", cfg.Preferences.DBPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		opts.Preferences = storage.NewSQLitePreferences(db)
		slog.Info("preferences stored on disk", "path", cfg.Preferences.DBPath)
	} else {
		opts.Preferences = storage.NewMemoryPreferences()
		slog.Warn("PREFS_DB_PATH not set, column settings reset on restart")
	}

	service, err := core.NewService(opts)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if gate := service.Gate(); gate.Busy {
			slog.Info("cancelling running submission", "submission_id", gate.SubmissionID)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("submission did not stop in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

func openPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(dbCfg.MaxConns)
	poolConfig.MinConns = int32(dbCfg.MinConns)
	poolConfig.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbCfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(dbCfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
