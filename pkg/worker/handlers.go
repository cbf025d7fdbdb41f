package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/aggregate"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/scheduling"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, p job.NotificationPayload) error
}

type Aggregator interface {
	RequireEmployee(ctx context.Context, empID string) error
	ApplyChatEvent(ctx context.Context, ev wellness.ChatEvent) error
	RecordOutreach(ctx context.Context, empID, message, eventID string) error
	RunDailyBoundary(ctx context.Context, date string) (aggregate.BoundaryReport, error)
	OutreachCandidates(ctx context.Context) ([]aggregate.Record, error)
}

type Locker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, workerID string) error
}

type Scheduler interface {
	Schedule(ctx context.Context, req scheduling.Request) (scheduling.Result, error)
}

type HandlersConfig struct {
	WorkerID string
	// BoundaryLockTTL bounds how long a crashed daily boundary run keeps
	// others out.
	BoundaryLockTTL        time.Duration
	OutreachDefaultMessage string
}

// Handlers implements one handler per job type.
type Handlers struct {
	dispatcher Dispatcher
	agg        Aggregator
	locks      Locker
	scheduler  Scheduler
	cfg        HandlersConfig
	logger     *slog.Logger
}

func NewHandlers(d Dispatcher, agg Aggregator, locks Locker, s Scheduler, cfg HandlersConfig, logger *slog.Logger) *Handlers {
	return &Handlers{
		dispatcher: d,
		agg:        agg,
		locks:      locks,
		scheduler:  s,
		cfg:        cfg,
		logger:     logger,
	}
}

// RegisterAll binds every handler to its job type on r.
func (h *Handlers) RegisterAll(r *Runtime) {
	r.Register(job.TypeNotification, HandlerFunc(h.Notification))
	r.Register(job.TypeChatEvent, HandlerFunc(h.ChatEvent))
	r.Register(job.TypeDailyBoundary, HandlerFunc(h.DailyBoundary))
	r.Register(job.TypeDispatchDue, HandlerFunc(h.DispatchDue))
}

func decode(j *job.Job, v any) error {
	if err := j.Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "malformed job payload", err)
	}
	return nil
}

// Notification sends the email and then records it in the employee's chat
// history. The job's outcome is the send's outcome; a recipient who is not a
// registered employee is never sent to.
func (h *Handlers) Notification(ctx context.Context, j *job.Job) error {
	var p job.NotificationPayload
	if err := decode(j, &p); err != nil {
		return err
	}
	if err := h.agg.RequireEmployee(ctx, p.EmpID); err != nil {
		return err
	}
	if err := h.dispatcher.Dispatch(ctx, j.ID, p); err != nil {
		return err
	}
	if err := h.agg.RecordOutreach(ctx, p.EmpID, p.Message, j.ID+":outreach"); err != nil {
		h.logger.Warn("failed to record outreach in chat history", "job_id", j.ID, "emp_id", p.EmpID, "error", err)
	}
	return nil
}

func (h *Handlers) ChatEvent(ctx context.Context, j *job.Job) error {
	var p job.ChatEventPayload
	if err := decode(j, &p); err != nil {
		return err
	}
	eventID := p.EventID
	if eventID == "" {
		eventID = j.ID
	}
	return h.agg.ApplyChatEvent(ctx, wellness.ChatEvent{
		EventID:           eventID,
		EmpID:             p.EmpID,
		CurrentMood:       p.CurrentMood,
		IsEscalated:       p.IsEscalated,
		BriefSummary:      p.BriefSummary,
		MoodScorePercent:  p.MoodScorePercent,
		UserChat:          p.UserChat,
		BotChat:           p.BotChat,
		WellnessScore:     p.WellnessScore,
		MoodAnalysis:      p.MoodAnalysis,
		RecommendedAction: p.RecommendedAction,
		DetailedAnalysis:  p.DetailedAnalysis,
		OccurredAt:        p.OccurredAt,
	})
}

// DailyBoundary runs the boundary for the payload's date under a job lock,
// so a re-claimed job cannot overlap a run still in progress elsewhere.
func (h *Handlers) DailyBoundary(ctx context.Context, j *job.Job) error {
	var p job.BoundaryPayload
	if err := decode(j, &p); err != nil {
		return err
	}
	lockID := fmt.Sprintf("%s:%s", job.TypeDailyBoundary, p.Date)
	ok, err := h.locks.Acquire(ctx, lockID, h.cfg.WorkerID, h.cfg.BoundaryLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Transient(fmt.Sprintf("daily boundary for %s is running elsewhere", p.Date), nil)
	}
	defer func() {
		if err := h.locks.Release(context.WithoutCancel(ctx), lockID, h.cfg.WorkerID); err != nil {
			h.logger.Error("failed to release daily boundary lock", "lock_id", lockID, "error", err)
		}
	}()

	report, err := h.agg.RunDailyBoundary(ctx, p.Date)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		h.logger.Error("daily boundary finished with failures", "date", p.Date, "failed", report.Failed)
	}
	return nil
}

// DispatchDue schedules an outreach notification for every employee flagged
// at the last daily boundary. One employee failing does not stop the rest.
func (h *Handlers) DispatchDue(ctx context.Context, j *job.Job) error {
	candidates, err := h.agg.OutreachCandidates(ctx)
	if err != nil {
		return err
	}

	var scheduled, skipped, failed int
	for _, c := range candidates {
		msg := c.Detail.RecommendedAction
		if msg == "" {
			msg = h.cfg.OutreachDefaultMessage
		}
		res, err := h.scheduler.Schedule(ctx, scheduling.Request{
			Recipient: c.Employee.EmpID,
			Email:     c.Employee.Email,
			Name:      c.Employee.Name,
			Message:   msg,
		})
		switch {
		case err != nil:
			failed++
			h.logger.Error("failed to schedule outreach", "emp_id", c.Employee.EmpID, "error", err)
		case !res.Accepted:
			skipped++
			h.logger.Info("outreach not scheduled", "emp_id", c.Employee.EmpID, "reason", res.Reason)
		default:
			scheduled++
		}
	}

	h.logger.Info("outreach dispatch complete",
		"job_id", j.ID,
		"candidates", len(candidates),
		"scheduled", scheduled,
		"skipped", skipped,
		"failed", failed,
	)
	return nil
}
