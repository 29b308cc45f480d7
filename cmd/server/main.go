package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"casebridge/internal/config"
	"casebridge/internal/core"
	"casebridge/internal/logging"
	"casebridge/internal/remote"
	"casebridge/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"case_api", cfg.Remote.BaseURL,
		"batch_pace", cfg.Batch.Pace,
		"batch_max_concurrent", cfg.Batch.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Timeout: cfg.Remote.Timeout,
	})

	service := core.NewService(client, core.ServiceConfig{
		Pace:          cfg.Batch.Pace,
		PageSize:      cfg.Fetch.PageSize,
		MaxConcurrent: cfg.Batch.MaxConcurrent,
		MaxWait:       cfg.Batch.MaxWaitTime,
		Rules:         core.DefaultRules(),
		Overrides: core.Overrides{
			CompanyID:  cfg.Overrides.CompanyID,
			ReferralID: cfg.Overrides.ReferralID,
			Tags:       cfg.Overrides.Tags,
			Counsel:    cfg.Overrides.Counsel,
			FeeSplit:   cfg.Overrides.FeeSplit,
			TotalFee:   cfg.Overrides.TotalFee,
		},
		Identity: core.DefaultIdentityFields(),
	})

	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Keep a warm snapshot of the remote collection for duplicate checks
	if cfg.Fetch.SnapshotInterval > 0 {
		go service.StartSnapshotRefresher(jobCtx, core.RefresherConfig{
			Interval: cfg.Fetch.SnapshotInterval,
		})
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active batches to finish (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for batches to complete", "active", status.Active)
			if err := service.WaitForBatches(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
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
