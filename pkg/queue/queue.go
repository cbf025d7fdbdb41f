// Package queue is the durable, time-aware job queue. Jobs live in
// PostgreSQL; a worker claims the earliest due job of a type, holds it under
// a lease and reports the outcome through Complete or Fail, which drive the
// retry state machine:
//
//	PENDING --claim--> RUNNING --Complete--> SUCCEEDED
//	                   RUNNING --Fail(retryable, attempt < max)--> PENDING (backoff)
//	                   RUNNING --Fail(otherwise)--> ABANDONED
//	                   RUNNING --lease expired--> PENDING | ABANDONED
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
)

var (
	// ErrDuplicate is returned by Enqueue when a job with the same unique key exists.
	ErrDuplicate = errors.New("job with the same unique key already exists")
	// ErrLeaseLost is returned when a job is no longer RUNNING under the
	// caller's claim, usually because its lease expired and it was re-queued.
	ErrLeaseLost = errors.New("job is no longer held by this claim")
)

// Store is the persistence contract of the queue. Every method that moves a
// job into a claimable PENDING state must also record an outbox row in the
// same transaction.
type Store interface {
	Insert(ctx context.Context, j *job.Job) error
	Claim(ctx context.Context, jobType job.Type, workerID string, now time.Time, lease time.Duration) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	MarkSucceeded(ctx context.Context, id string, now time.Time) error
	Reschedule(ctx context.Context, id string, attempt int, notBefore time.Time, lastErr string, now time.Time) error
	Abandon(ctx context.Context, id string, attempt int, lastErr string, now time.Time) (*job.Job, error)
	ReleaseExpired(ctx context.Context, now time.Time) ([]*job.Job, error)
}

// DeadLetterPublisher receives abandoned jobs for operator review.
type DeadLetterPublisher interface {
	PublishAbandoned(ctx context.Context, j *job.Job) error
}

// Policy is the retry and lease policy applied to every job.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Lease       time.Duration
}

// Backoff returns min(base * 2^attempt, cap).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 0; i < attempt; i++ {
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
		d *= 2
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

type Queue struct {
	store  Store
	policy Policy
	dlq    DeadLetterPublisher
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithDeadLetter publishes abandoned jobs to p.
func WithDeadLetter(p DeadLetterPublisher) Option {
	return func(q *Queue) { q.dlq = p }
}

func New(store Store, policy Policy, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores a new PENDING job. ID, MaxAttempts and NotBefore are filled
// in when unset; a NotBefore in the past means "as soon as possible".
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) error {
	if !knownType(j.Type) {
		return apperr.Validation(fmt.Sprintf("unknown job type %q", j.Type))
	}
	if len(j.Payload) == 0 {
		return apperr.Validation("job payload is required")
	}

	now := q.now().UTC()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = q.policy.MaxAttempts
	}
	if j.NotBefore.IsZero() {
		j.NotBefore = now
	}
	j.State = job.StatePending
	j.Attempt = 0
	j.CreatedAt = now
	j.UpdatedAt = now

	if err := q.store.Insert(ctx, j); err != nil {
		return err
	}
	observability.JobsEnqueued.WithLabelValues(string(j.Type)).Inc()
	q.logger.Debug("job enqueued", "job_id", j.ID, "type", j.Type, "not_before", j.NotBefore)
	return nil
}

// ClaimNext returns the earliest due job of jobType, now RUNNING under a
// lease held by workerID, or nil when nothing is due.
func (q *Queue) ClaimNext(ctx context.Context, workerID string, jobType job.Type) (*job.Job, error) {
	return q.store.Claim(ctx, jobType, workerID, q.now().UTC(), q.policy.Lease)
}

func (q *Queue) Get(ctx context.Context, id string) (*job.Job, error) {
	return q.store.Get(ctx, id)
}

// Complete marks a RUNNING job SUCCEEDED.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.store.MarkSucceeded(ctx, id, q.now().UTC())
}

// Fail records a failed attempt and returns the job's resulting state.
func (q *Queue) Fail(ctx context.Context, id string, cause error, retryable bool) (job.State, error) {
	j, err := q.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if j.State != job.StateRunning {
		return j.State, ErrLeaseLost
	}

	lastErr := "unknown error"
	if cause != nil {
		lastErr = cause.Error()
	}
	now := q.now().UTC()

	if retryable && j.Attempt < j.MaxAttempts {
		delay := q.policy.Backoff(j.Attempt)
		if err := q.store.Reschedule(ctx, id, j.Attempt, now.Add(delay), lastErr, now); err != nil {
			return "", err
		}
		q.logger.Warn("job failed, retrying",
			"job_id", id, "type", j.Type, "attempt", j.Attempt, "delay", delay, "error", lastErr)
		return job.StatePending, nil
	}

	abandoned, err := q.store.Abandon(ctx, id, j.Attempt, lastErr, now)
	if err != nil {
		return "", err
	}
	q.abandoned(ctx, abandoned)
	return job.StateAbandoned, nil
}

// ReleaseExpired returns RUNNING jobs whose lease has passed to PENDING, or
// abandons them when no attempts remain. It returns how many jobs moved.
func (q *Queue) ReleaseExpired(ctx context.Context) (int, error) {
	moved, err := q.store.ReleaseExpired(ctx, q.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, j := range moved {
		if j.State == job.StateAbandoned {
			q.abandoned(ctx, j)
			continue
		}
		observability.LeasesReleased.Inc()
		q.logger.Warn("job lease expired, returned to queue", "job_id", j.ID, "type", j.Type, "attempt", j.Attempt)
	}
	return len(moved), nil
}

// abandoned makes a terminal failure operator-visible.
func (q *Queue) abandoned(ctx context.Context, j *job.Job) {
	observability.JobsAbandoned.WithLabelValues(string(j.Type)).Inc()
	q.logger.Error("job abandoned",
		"job_id", j.ID,
		"type", j.Type,
		"recipient", j.Recipient,
		"attempt", j.Attempt,
		"max_attempts", j.MaxAttempts,
		"last_error", j.LastError,
	)
	if q.dlq == nil {
		return
	}
	if err := q.dlq.PublishAbandoned(ctx, j); err != nil {
		q.logger.Error("failed to publish abandoned job to dead-letter queue", "job_id", j.ID, "error", err)
	}
}

func knownType(t job.Type) bool {
	for _, known := range job.Types {
		if t == known {
			return true
		}
	}
	return false
}
