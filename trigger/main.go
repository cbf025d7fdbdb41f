package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/config"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/recurring"
)

// trigger enqueues the recurring jobs. Running more than one replica is safe:
// each firing carries a per-day unique key.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return
	}
	defer dbClient.Close()

	q := queue.New(queue.NewPGStore(dbClient.Pool()), queue.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
		Lease:       cfg.Queue.LeaseDuration,
	}, logger)

	t, err := recurring.New(q, cfg.Location(), logger,
		recurring.Schedule{Type: job.TypeDispatchDue, Spec: cfg.Schedule.DispatchDue},
		recurring.Schedule{Type: job.TypeDailyBoundary, Spec: cfg.Schedule.DailyBoundary},
	)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		return
	}

	if err := t.Run(ctx); err != nil {
		logger.Error("trigger failed", "error", err)
	}
	logger.Info("trigger stopped")
}
