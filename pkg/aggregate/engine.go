// Package aggregate applies wellness updates to stored records. Every
// mutation runs as load, apply, commit; the commit checks the versions read
// at load time and a conflict restarts the cycle with a fresh read, up to a
// bounded number of times.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

type Config struct {
	Policy             wellness.Policy
	Location           *time.Location
	MaxConflictRetries int
}

type Engine struct {
	store      Store
	policy     wellness.Policy
	loc        *time.Location
	maxRetries int
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(store Store, cfg Config, logger *slog.Logger) *Engine {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	retries := cfg.MaxConflictRetries
	if retries < 1 {
		retries = 1
	}
	return &Engine{
		store:      store,
		policy:     cfg.Policy,
		loc:        loc,
		maxRetries: retries,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
	}
}

type scope uint8

const (
	scopeEmployee scope = 1 << iota
	scopeDetail
	scopeOrg
)

// update runs the load/apply/commit cycle for one employee. fn reports
// whether it changed anything; nothing is written when it did not.
func (e *Engine) update(ctx context.Context, op, empID, eventID string, sc scope, fn func(s *Snapshot, now time.Time) bool) error {
	for attempt := 1; ; attempt++ {
		snap, err := e.store.Load(ctx, empID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.PermanentRecipient(fmt.Sprintf("unknown employee %s", empID), err)
		}
		if err != nil {
			return err
		}
		if !fn(snap, e.now()) {
			return nil
		}

		c := Commit{EventID: eventID, EmpID: empID}
		if sc&scopeEmployee != 0 {
			c.Employee, c.EmployeeVersion = snap.Employee, snap.EmployeeVersion
		}
		if sc&scopeDetail != 0 {
			c.Detail, c.DetailVersion = snap.Detail, snap.DetailVersion
		}
		if sc&scopeOrg != 0 {
			c.Org, c.OrgVersion = snap.Org, snap.OrgVersion
		}

		err = e.store.Commit(ctx, c)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAlreadyApplied):
			e.logger.Info("event already applied, skipping", "op", op, "emp_id", empID, "event_id", eventID)
			return nil
		case errors.Is(err, ErrConflict):
			observability.AggregationConflicts.WithLabelValues(op).Inc()
			if attempt >= e.maxRetries {
				return apperr.Conflict(fmt.Sprintf("%s for employee %s still conflicting after %d attempts", op, empID, attempt))
			}
			e.logger.Debug("aggregate conflict, retrying", "op", op, "emp_id", empID, "attempt", attempt)
		default:
			return err
		}
	}
}

// RequireEmployee returns a PermanentRecipient error when empID is not a
// registered employee.
func (e *Engine) RequireEmployee(ctx context.Context, empID string) error {
	_, err := e.store.Load(ctx, empID)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.PermanentRecipient(fmt.Sprintf("unknown employee %s", empID), err)
	}
	return err
}

// ApplyChatEvent folds one chat interaction into the employee, detail and
// organization records. Re-applying an event id already recorded is a no-op.
func (e *Engine) ApplyChatEvent(ctx context.Context, ev wellness.ChatEvent) error {
	return e.update(ctx, "chat_event", ev.EmpID, ev.EventID, scopeEmployee|scopeDetail|scopeOrg,
		func(s *Snapshot, now time.Time) bool {
			at := ev.OccurredAt
			if at.IsZero() {
				at = now
			}
			wellness.ApplyChatEvent(s.Employee, s.Detail, s.Org, ev, at, e.loc)
			return true
		})
}

// CheckIn records the start-of-day check-in of an employee.
func (e *Engine) CheckIn(ctx context.Context, empID, eventID string) error {
	return e.update(ctx, "check_in", empID, eventID, scopeEmployee|scopeOrg,
		func(s *Snapshot, now time.Time) bool {
			wellness.CheckIn(s.Employee, s.Org, now, e.loc)
			return true
		})
}

func (e *Engine) RecordActivity(ctx context.Context, empID string, a wellness.Activity, eventID string) error {
	if err := e.validate.Struct(a); err != nil {
		return apperr.Validation(err.Error())
	}
	return e.update(ctx, "activity", empID, eventID, scopeEmployee,
		func(s *Snapshot, _ time.Time) bool {
			wellness.RecordActivity(s.Employee, a)
			return true
		})
}

// RecordOutreach adds an outreach message to the employee's chat history.
func (e *Engine) RecordOutreach(ctx context.Context, empID, message, eventID string) error {
	return e.update(ctx, "outreach", empID, eventID, scopeDetail,
		func(s *Snapshot, now time.Time) bool {
			wellness.RecordOutreach(s.Detail, message, now)
			return true
		})
}

// Register creates an employee with its detail record and roster entry. It
// returns false when the employee already exists.
func (e *Engine) Register(ctx context.Context, p wellness.Profile) (bool, error) {
	if err := e.validate.Struct(p); err != nil {
		return false, apperr.Validation(err.Error())
	}
	for attempt := 1; ; attempt++ {
		org, orgVersion, err := e.store.LoadOrg(ctx)
		if err != nil {
			return false, err
		}
		emp := wellness.NewEmployee(p, e.now())
		if !wellness.Register(org, emp) {
			return false, nil
		}

		err = e.store.Commit(ctx, Commit{
			EmpID:    p.EmpID,
			Employee: emp,
			Detail:   wellness.NewDetail(emp),
			Org:      org, OrgVersion: orgVersion,
		})
		switch {
		case err == nil:
			e.logger.Info("employee registered", "emp_id", p.EmpID)
			return true, nil
		case errors.Is(err, ErrExists):
			return false, nil
		case errors.Is(err, ErrConflict):
			observability.AggregationConflicts.WithLabelValues("register").Inc()
			if attempt >= e.maxRetries {
				return false, apperr.Conflict(fmt.Sprintf("register %s still conflicting after %d attempts", p.EmpID, attempt))
			}
		default:
			return false, err
		}
	}
}

// BoundaryReport summarizes one daily boundary run.
type BoundaryReport struct {
	Date         string
	Processed    int
	Skipped      int
	Failed       int
	Distribution wellness.MoodDistribution
}

// RunDailyBoundary closes date for every employee, each in its own commit.
// A failing employee is logged and counted and the run moves on. The
// organization mood distribution is then recomputed from scratch.
func (e *Engine) RunDailyBoundary(ctx context.Context, date string) (BoundaryReport, error) {
	report := BoundaryReport{Date: date}
	if _, err := wellness.BoundaryTime(date, e.now(), e.loc); err != nil {
		return report, apperr.Validation(err.Error())
	}

	ids, err := e.store.ListEmployeeIDs(ctx)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		applied := false
		err := e.update(ctx, "daily_boundary", id, "", scopeEmployee|scopeDetail,
			func(s *Snapshot, now time.Time) bool {
				at, _ := wellness.BoundaryTime(date, now, e.loc)
				applied = wellness.ApplyDailyBoundary(s.Employee, s.Detail, date, at, e.policy)
				return applied
			})
		switch {
		case err != nil:
			report.Failed++
			observability.DailyBoundaryFailures.Inc()
			e.logger.Error("daily boundary failed for employee", "emp_id", id, "date", date, "error", err)
		case applied:
			report.Processed++
		default:
			report.Skipped++
		}
	}

	records, err := e.store.ListRecords(ctx)
	if err != nil {
		return report, err
	}
	employees := make([]*wellness.Employee, 0, len(records))
	for _, r := range records {
		employees = append(employees, r.Employee)
	}
	report.Distribution = wellness.MoodDistributionOf(employees)

	if err := e.setMoodDistribution(ctx, report.Distribution); err != nil {
		return report, err
	}

	e.logger.Info("daily boundary complete",
		"date", date,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (e *Engine) setMoodDistribution(ctx context.Context, dist wellness.MoodDistribution) error {
	for attempt := 1; ; attempt++ {
		org, version, err := e.store.LoadOrg(ctx)
		if err != nil {
			return err
		}
		org.MoodDistribution = dist

		err = e.store.Commit(ctx, Commit{Org: org, OrgVersion: version})
		if !errors.Is(err, ErrConflict) {
			return err
		}
		observability.AggregationConflicts.WithLabelValues("mood_distribution").Inc()
		if attempt >= e.maxRetries {
			return apperr.Conflict(fmt.Sprintf("mood distribution still conflicting after %d attempts", attempt))
		}
	}
}

// OutreachCandidates lists employees flagged for outreach at the last daily
// boundary who have an email address.
func (e *Engine) OutreachCandidates(ctx context.Context) ([]Record, error) {
	records, err := e.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if r.Employee.NeedsOutreach && r.Employee.Email != "" {
			out = append(out, r)
		}
	}
	return out, nil
}
