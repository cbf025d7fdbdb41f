package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/aggregate"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/config"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/dedup"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/mq"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/rpc"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/scheduling"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

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
		os.Exit(1)
	}
	defer dbClient.Close()

	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	mqClient, err := mq.New(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqClient.Close()

	if err := mqClient.SetupTopology(); err != nil {
		logger.Error("failed to setup rabbitmq topology", "error", err)
		os.Exit(1)
	}

	q := queue.New(queue.NewPGStore(dbClient.Pool()), queue.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
		Lease:       cfg.Queue.LeaseDuration,
	}, logger, queue.WithDeadLetter(mqClient))

	scheduler := scheduling.NewService(dedup.NewRedisStore(rdb, cfg.Dedup.Window), q, logger)

	engine := aggregate.NewEngine(aggregate.NewPGStore(dbClient.Pool()), aggregate.Config{
		Policy: wellness.Policy{
			OutreachScoreThreshold: cfg.Wellness.OutreachScoreThreshold,
			ConsistencyDays:        cfg.Wellness.ConsistencyDays,
			SteadyWindow:           cfg.Wellness.SteadyWindow,
			GrowthWindow:           cfg.Wellness.GrowthWindow,
		},
		Location:           cfg.Location(),
		MaxConflictRetries: cfg.Wellness.MaxConflictRetries,
	}, logger)

	observability.StartMetricsServer(cfg.Server.MetricsAddr, logger)

	server := rpc.NewServer(scheduler, q, engine, map[string]rpc.HealthCheck{
		"postgres": dbClient.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, logger)

	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("api server stopped")
}
