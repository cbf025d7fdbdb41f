package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
)

const jobColumns = `id, type, state, recipient, payload, COALESCE(unique_key, ''), not_before,
	attempt, max_attempts, COALESCE(worker_id, ''), lease_expires_at, COALESCE(last_error, ''),
	seq, created_at, updated_at`

// PGStore keeps jobs and their outbox rows in PostgreSQL. Multi-table writes
// use data-modifying CTEs so each transition is a single atomic statement.
type PGStore struct {
	db database.DBTX
}

func NewPGStore(db database.DBTX) *PGStore {
	return &PGStore{db: db}
}

// Insert creates the job and its outbox row. A unique key collision inserts
// nothing and returns ErrDuplicate.
func (s *PGStore) Insert(ctx context.Context, j *job.Job) error {
	err := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO jobs (id, type, state, recipient, payload, unique_key, not_before,
			                  attempt, max_attempts, created_at, updated_at)
			VALUES ($1, $2, 'PENDING', $3, $4, $5, $6, 0, $7, $8, $8)
			ON CONFLICT (unique_key) DO NOTHING
			RETURNING id, type, not_before, seq
		), hint AS (
			INSERT INTO job_outbox (job_id, routing_key, available_at)
			SELECT id, type, not_before FROM inserted
		)
		SELECT seq FROM inserted`,
		j.ID, string(j.Type), j.Recipient, []byte(j.Payload), nullIfEmpty(j.UniqueKey),
		j.NotBefore, j.MaxAttempts, j.CreatedAt,
	).Scan(&j.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return apperr.Transient("failed to insert job", err)
	}
	return nil
}

// Claim atomically moves the earliest due PENDING job of jobType to RUNNING.
// SKIP LOCKED lets concurrent workers pass over a row another claim holds.
func (s *PGStore) Claim(ctx context.Context, jobType job.Type, workerID string, now time.Time, lease time.Duration) (*job.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET state = 'RUNNING',
		    attempt = attempt + 1,
		    worker_id = $2,
		    lease_expires_at = $4,
		    updated_at = $3
		WHERE id = (
			SELECT id FROM jobs
			WHERE type = $1 AND state = 'PENDING' AND not_before <= $3 AND attempt < max_attempts
			ORDER BY not_before, seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		string(jobType), workerID, now, now.Add(lease),
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("failed to claim job", err)
	}
	return j, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*job.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, apperr.Transient("failed to get job", err)
	}
	return j, nil
}

func (s *PGStore) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET state = 'SUCCEEDED', worker_id = NULL, lease_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND state = 'RUNNING'`,
		id, now,
	)
	if err != nil {
		return apperr.Transient("failed to complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Reschedule returns a RUNNING job to PENDING. attempt guards against a
// stale caller whose lease was already released and re-claimed.
func (s *PGStore) Reschedule(ctx context.Context, id string, attempt int, notBefore time.Time, lastErr string, now time.Time) error {
	var moved int
	err := s.db.QueryRow(ctx, `
		WITH moved AS (
			UPDATE jobs
			SET state = 'PENDING', not_before = $3, last_error = $4,
			    worker_id = NULL, lease_expires_at = NULL, updated_at = $5
			WHERE id = $1 AND state = 'RUNNING' AND attempt = $2
			RETURNING id, type, not_before
		), hint AS (
			INSERT INTO job_outbox (job_id, routing_key, available_at)
			SELECT id, type, not_before FROM moved
		)
		SELECT count(*) FROM moved`,
		id, attempt, notBefore, lastErr, now,
	).Scan(&moved)
	if err != nil {
		return apperr.Transient("failed to reschedule job", err)
	}
	if moved == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (s *PGStore) Abandon(ctx context.Context, id string, attempt int, lastErr string, now time.Time) (*job.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET state = 'ABANDONED', last_error = $3, worker_id = NULL, lease_expires_at = NULL, updated_at = $4
		WHERE id = $1 AND state = 'RUNNING' AND attempt = $2
		RETURNING `+jobColumns,
		id, attempt, lastErr, now,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeaseLost
	}
	if err != nil {
		return nil, apperr.Transient("failed to abandon job", err)
	}
	return j, nil
}

// ReleaseExpired moves every RUNNING job with a lapsed lease back to PENDING,
// or to ABANDONED when it has used all its attempts.
func (s *PGStore) ReleaseExpired(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.db.Query(ctx, `
		WITH expired AS (
			SELECT id FROM jobs
			WHERE state = 'RUNNING' AND lease_expires_at < $1
			FOR UPDATE SKIP LOCKED
		), moved AS (
			UPDATE jobs j
			SET state = CASE WHEN j.attempt >= j.max_attempts THEN 'ABANDONED' ELSE 'PENDING' END,
			    not_before = CASE WHEN j.attempt >= j.max_attempts THEN j.not_before ELSE $1 END,
			    last_error = 'lease expired',
			    worker_id = NULL,
			    lease_expires_at = NULL,
			    updated_at = $1
			FROM expired e
			WHERE j.id = e.id
			RETURNING j.id, j.type, j.state, j.recipient, j.payload, COALESCE(j.unique_key, ''), j.not_before,
			          j.attempt, j.max_attempts, '' AS worker_id, j.lease_expires_at, j.last_error,
			          j.seq, j.created_at, j.updated_at
		), hint AS (
			INSERT INTO job_outbox (job_id, routing_key, available_at)
			SELECT id, type, not_before FROM moved WHERE state = 'PENDING'
		)
		SELECT * FROM moved`,
		now,
	)
	if err != nil {
		return nil, apperr.Transient("failed to release expired leases", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*job.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, apperr.Transient("failed to read released jobs", err)
	}
	return jobs, nil
}

// OutboxMessage is a wake-up hint for a job that is, or will become, claimable.
type OutboxMessage struct {
	ID          string
	JobID       string
	RoutingKey  string
	AvailableAt time.Time
}

// FetchDueOutbox returns up to limit outbox rows whose job is due.
func (s *PGStore) FetchDueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, routing_key, available_at
		FROM job_outbox
		WHERE available_at <= $1
		ORDER BY available_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, apperr.Transient("failed to fetch outbox", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxMessage, error) {
		var m OutboxMessage
		err := row.Scan(&m.ID, &m.JobID, &m.RoutingKey, &m.AvailableAt)
		return m, err
	})
	if err != nil {
		return nil, apperr.Transient("failed to read outbox", err)
	}
	return msgs, nil
}

func (s *PGStore) DeleteOutbox(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM job_outbox WHERE id = $1`, id); err != nil {
		return apperr.Transient("failed to delete outbox message", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j       job.Job
		jobType string
		state   string
		payload []byte
	)
	err := row.Scan(
		&j.ID, &jobType, &state, &j.Recipient, &payload, &j.UniqueKey, &j.NotBefore,
		&j.Attempt, &j.MaxAttempts, &j.WorkerID, &j.LeaseExpiresAt, &j.LastError,
		&j.Seq, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Type = job.Type(jobType)
	j.State = job.State(state)
	j.Payload = payload
	return &j, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
