// Package scheduling accepts notification requests, enforces the per-recipient
// dedup window and enqueues the delivery job.
package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/dedup"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
)

type DedupStore interface {
	Reserve(ctx context.Context, recipient string) (dedup.Reservation, bool, error)
	Release(ctx context.Context, r dedup.Reservation) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// Request asks for one notification to Recipient no earlier than NotBefore.
// A zero or past NotBefore means as soon as possible.
type Request struct {
	Recipient string `validate:"required"`
	Email     string `validate:"required,email"`
	Name      string
	Message   string `validate:"required"`
	NotBefore time.Time
}

// Reasons a request was not accepted.
const (
	ReasonInvalid   = "invalid_request"
	ReasonDuplicate = "recipient_recently_notified"
)

type Result struct {
	Accepted bool
	JobID    string
	Reason   string
}

type Service struct {
	dedup    DedupStore
	queue    Enqueuer
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(d DedupStore, q Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		dedup:    d,
		queue:    q,
		validate: validator.New(),
		logger:   logger,
	}
}

// Schedule reserves the recipient's dedup entry and then enqueues the
// notification. Invalid input and a live dedup entry are reported through
// Result; the error is only set when a dependency failed, in which case no
// reservation is left behind.
func (s *Service) Schedule(ctx context.Context, req Request) (Result, error) {
	l := s.logger.With("recipient", req.Recipient)

	if err := s.validate.Struct(req); err != nil {
		l.Info("schedule request rejected", "reason", ReasonInvalid, "error", err)
		return Result{Reason: ReasonInvalid}, nil
	}

	reservation, ok, err := s.dedup.Reserve(ctx, req.Recipient)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		observability.NotificationsDeduplicated.Inc()
		l.Info("schedule request deduplicated")
		return Result{Reason: ReasonDuplicate}, nil
	}

	payload, err := job.Encode(job.NotificationPayload{
		EmpID:        req.Recipient,
		Email:        req.Email,
		EmployeeName: req.Name,
		Message:      req.Message,
	})
	if err != nil {
		s.compensate(ctx, l, reservation)
		return Result{}, err
	}

	j := &job.Job{
		Type:      job.TypeNotification,
		Recipient: req.Recipient,
		Payload:   payload,
		NotBefore: req.NotBefore.UTC(),
	}
	if err := s.queue.Enqueue(ctx, j); err != nil {
		s.compensate(ctx, l, reservation)
		return Result{}, err
	}

	l.Info("notification scheduled", "job_id", j.ID, "not_before", j.NotBefore)
	return Result{Accepted: true, JobID: j.ID}, nil
}

// compensate drops the reservation after a failed enqueue so the recipient
// is not blocked for a notification that will never be sent.
func (s *Service) compensate(ctx context.Context, l *slog.Logger, r dedup.Reservation) {
	if err := s.dedup.Release(context.WithoutCancel(ctx), r); err != nil {
		l.Error("failed to release dedup reservation after enqueue failure", "key", r.Key, "error", err)
	}
}

