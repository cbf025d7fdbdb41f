package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/aggregate"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/config"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/dedup"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/dispatch"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/mq"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/scheduling"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("all workers stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerID := cfg.Worker.ID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	dbClient, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer dbClient.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	mqClient, err := mq.New(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	defer mqClient.Close()
	if err := mqClient.SetupTopology(); err != nil {
		return fmt.Errorf("setting up rabbitmq topology: %w", err)
	}

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	q := queue.New(queue.NewPGStore(dbClient.Pool()), queue.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
		Lease:       cfg.Queue.LeaseDuration,
	}, logger, queue.WithDeadLetter(mqClient))

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

	// Outreach goes through the same dedup as externally scheduled notifications.
	scheduler := scheduling.NewService(dedup.NewRedisStore(rdb, cfg.Dedup.Window), q, logger)

	handlers := worker.NewHandlers(
		dispatch.New(sender, logger),
		engine,
		database.NewLockRepository(dbClient.Pool()),
		scheduler,
		worker.HandlersConfig{
			WorkerID:               workerID,
			BoundaryLockTTL:        cfg.Worker.BoundaryLease,
			OutreachDefaultMessage: cfg.Wellness.OutreachDefaultMessage,
		},
		logger,
	)

	runtime := worker.New(q, mqClient, worker.Config{
		WorkerID:     workerID,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
	}, logger)
	handlers.RegisterAll(runtime)

	observability.StartMetricsServer(cfg.Server.MetricsAddr, logger)

	logger.Info("workers started, waiting for jobs", "worker_id", workerID, "concurrency", cfg.Worker.Concurrency)
	return runtime.Run(ctx)
}

func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Sender, error) {
	if cfg.Email.Provider != "ses" {
		logger.Warn("EMAIL_PROVIDER is not ses, notifications are only logged")
		return dispatch.LogSender{Logger: logger}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return dispatch.NewSESSender(awsCfg, dispatch.SESConfig{
		FromAddress:   cfg.Email.FromAddress,
		FromName:      cfg.Email.FromName,
		ConfigSetName: cfg.Email.ConfigSet,
	}, logger), nil
}
