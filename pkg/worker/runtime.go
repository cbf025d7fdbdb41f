// Package worker runs the job handlers. Each job type gets a pool of
// goroutines that claim due jobs from the queue; a broker delivery or the
// poll ticker wakes an idle pool. The jobs table stays the source of truth,
// so a lost wake-up only delays a job until the next tick.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
)

type Queue interface {
	ClaimNext(ctx context.Context, workerID string, jobType job.Type) (*job.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error, retryable bool) (job.State, error)
	ReleaseExpired(ctx context.Context) (int, error)
}

// Wakeups delivers hints that a job of a type may be claimable.
type Wakeups interface {
	ConsumeReady(jobType job.Type, prefetch int) (<-chan amqp.Delivery, error)
}

type Handler interface {
	Handle(ctx context.Context, j *job.Job) error
}

type HandlerFunc func(ctx context.Context, j *job.Job) error

func (f HandlerFunc) Handle(ctx context.Context, j *job.Job) error {
	return f(ctx, j)
}

type Config struct {
	WorkerID     string
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

type Runtime struct {
	q        Queue
	wake     Wakeups
	cfg      Config
	handlers map[job.Type]Handler
	logger   *slog.Logger
}

// New creates a runtime. wake may be nil, in which case pools only poll.
func New(q Queue, wake Wakeups, cfg Config, logger *slog.Logger) *Runtime {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runtime{
		q:        q,
		wake:     wake,
		cfg:      cfg,
		handlers: make(map[job.Type]Handler),
		logger:   logger.With("worker_id", cfg.WorkerID),
	}
}

func (r *Runtime) Register(t job.Type, h Handler) {
	r.handlers[t] = h
}

// Run serves every registered job type until ctx is cancelled. Jobs already
// being processed run to completion before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	if len(r.handlers) == 0 {
		return errors.New("no job handlers registered")
	}
	g, ctx := errgroup.WithContext(ctx)

	for t, h := range r.handlers {
		t, h := t, h
		signal := make(chan struct{}, r.cfg.Concurrency)

		if r.wake != nil {
			deliveries, err := r.wake.ConsumeReady(t, r.cfg.Concurrency)
			if err != nil {
				return fmt.Errorf("consuming wake-ups for %s: %w", t, err)
			}
			g.Go(func() error {
				r.forward(ctx, deliveries, signal)
				return nil
			})
		}

		for i := 0; i < r.cfg.Concurrency; i++ {
			g.Go(func() error {
				r.loop(ctx, t, h, signal)
				return nil
			})
		}
		r.logger.Info("worker pool started", "type", t, "concurrency", r.cfg.Concurrency)
	}

	g.Go(func() error {
		r.sweep(ctx)
		return nil
	})

	err := g.Wait()
	r.logger.Info("all worker pools stopped")
	return err
}

// forward acknowledges each wake-up and nudges one idle goroutine. Extra
// nudges are dropped; a busy pool drains the queue anyway.
func (r *Runtime) forward(ctx context.Context, deliveries <-chan amqp.Delivery, signal chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				r.logger.Warn("wake-up channel closed, falling back to polling")
				return
			}
			_ = d.Ack(false)
			select {
			case signal <- struct{}{}:
			default:
			}
		}
	}
}

func (r *Runtime) loop(ctx context.Context, t job.Type, h Handler, signal <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for ctx.Err() == nil && r.RunOnce(ctx, t, h) {
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-signal:
		}
	}
}

func (r *Runtime) sweep(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.q.ReleaseExpired(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to release expired leases", "error", err)
			}
		}
	}
}

// RunOnce claims and processes one job of type t. It reports whether a job
// was found.
func (r *Runtime) RunOnce(ctx context.Context, t job.Type, h Handler) bool {
	j, err := r.q.ClaimNext(ctx, r.cfg.WorkerID, t)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("failed to claim job", "type", t, "error", err)
		}
		return false
	}
	if j == nil {
		return false
	}

	// Shutdown does not interrupt a claimed job.
	jobCtx := context.WithoutCancel(ctx)
	r.process(jobCtx, j, h)
	return true
}

func (r *Runtime) process(ctx context.Context, j *job.Job, h Handler) {
	l := r.logger.With("job_id", j.ID, "type", j.Type, "attempt", j.Attempt)
	l.Info("job claimed, starting processing")

	runCtx := ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	handleErr := h.Handle(runCtx, j)
	observability.JobDuration.WithLabelValues(string(j.Type)).Observe(time.Since(start).Seconds())

	if handleErr == nil {
		if err := r.q.Complete(ctx, j.ID); err != nil {
			logOutcomeError(l, "failed to mark job succeeded", err)
			return
		}
		observability.JobsProcessed.WithLabelValues(string(j.Type), "succeeded").Inc()
		l.Info("job completed successfully")
		return
	}

	retryable := apperr.Retryable(handleErr)
	l.Warn("job processing failed", "error", handleErr, "kind", apperr.KindOf(handleErr), "retryable", retryable)
	state, err := r.q.Fail(ctx, j.ID, handleErr, retryable)
	if err != nil {
		logOutcomeError(l, "failed to record job failure", err)
		return
	}
	status := "retried"
	if state == job.StateAbandoned {
		status = "abandoned"
	}
	observability.JobsProcessed.WithLabelValues(string(j.Type), status).Inc()
}

// logOutcomeError logs a failed state transition. A lost lease means the
// sweep already re-queued the job, which is expected after a slow attempt.
func logOutcomeError(l *slog.Logger, msg string, err error) {
	if errors.Is(err, queue.ErrLeaseLost) {
		l.Warn(msg+": lease lost", "error", err)
		return
	}
	l.Error(msg, "error", err)
}
