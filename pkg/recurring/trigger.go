// Package recurring enqueues the once-a-day jobs on a wall-clock schedule.
// Each firing carries a unique key of "<type>:<business date>", so a second
// trigger process or a restart inside the same minute cannot create a second
// instance for the same day.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// Schedule binds a job type to a standard five-field cron expression.
type Schedule struct {
	Type job.Type
	Spec string
}

type Trigger struct {
	q         Enqueuer
	loc       *time.Location
	logger    *slog.Logger
	schedules []Schedule
	now       func() time.Time
}

// New validates every cron expression up front.
func New(q Enqueuer, loc *time.Location, logger *slog.Logger, schedules ...Schedule) (*Trigger, error) {
	for _, s := range schedules {
		if _, err := cron.ParseStandard(s.Spec); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q for %s: %w", s.Spec, s.Type, err)
		}
	}
	return &Trigger{q: q, loc: loc, logger: logger, schedules: schedules, now: time.Now}, nil
}

// UniqueKey is the key of the recurring job of jobType for date.
func UniqueKey(jobType job.Type, date string) string {
	return fmt.Sprintf("%s:%s", jobType, date)
}

// Fire enqueues the jobType instance for the business date of at. An
// instance that already exists for that date is not an error; the returned
// id is empty then.
func (t *Trigger) Fire(ctx context.Context, jobType job.Type, at time.Time) (string, error) {
	date := at.In(t.loc).Format(time.DateOnly)
	payload, err := job.Encode(job.BoundaryPayload{Date: date})
	if err != nil {
		return "", err
	}
	j := &job.Job{
		Type:      jobType,
		Payload:   payload,
		UniqueKey: UniqueKey(jobType, date),
		NotBefore: at,
	}
	err = t.q.Enqueue(ctx, j)
	if errors.Is(err, queue.ErrDuplicate) {
		t.logger.Info("recurring job already enqueued", "type", jobType, "date", date)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	t.logger.Info("recurring job enqueued", "type", jobType, "date", date, "job_id", j.ID)
	return j.ID, nil
}

// Run fires the schedules until ctx is cancelled, then waits for a running
// firing to finish.
func (t *Trigger) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(t.loc))
	for _, s := range t.schedules {
		s := s
		_, err := c.AddFunc(s.Spec, func() {
			if _, err := t.Fire(ctx, s.Type, t.now()); err != nil {
				t.logger.Error("recurring trigger failed", "type", s.Type, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling %s: %w", s.Type, err)
		}
		t.logger.Info("recurring trigger scheduled", "type", s.Type, "cron", s.Spec, "timezone", t.loc.String())
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
