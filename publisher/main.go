package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/config"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/mq"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
)

// publisher relays the job outbox to RabbitMQ wake-up queues.
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

	mqClient, err := mq.New(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return
	}
	defer mqClient.Close()

	// Ensure topology exists; safe if already declared
	if err := mqClient.SetupTopology(); err != nil {
		logger.Error("failed to setup rabbitmq topology", "error", err)
		return
	}

	observability.StartMetricsServer(cfg.Server.MetricsAddr, logger)

	relay := queue.NewRelay(queue.NewPGStore(dbClient.Pool()), mqClient, cfg.Worker.OutboxBatch, logger)
	logger.Info("outbox relay started", "tick", cfg.Worker.OutboxTick, "batch", cfg.Worker.OutboxBatch)
	relay.Run(ctx, cfg.Worker.OutboxTick)
	logger.Info("outbox relay stopped")
}
