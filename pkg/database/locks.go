package database

import (
	"context"
	"time"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
)

// LockRepository provides distributed locking via the job_locks table. A
// lock row is taken with INSERT ... ON CONFLICT DO UPDATE that only succeeds
// when the existing row has expired, so exactly one holder exists per id
// until its TTL passes.
type LockRepository struct {
	db  DBTX
	now func() time.Time
}

func NewLockRepository(db DBTX) *LockRepository {
	return &LockRepository{db: db, now: time.Now}
}

// Acquire returns true if the lock was taken. lockID is usually
// "<job type>:<business date>".
func (r *LockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID, workerID, now, now.Add(ttl),
	)
	if err != nil {
		return false, apperr.Transient("failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops the lock if it is still held by workerID.
func (r *LockRepository) Release(ctx context.Context, lockID, workerID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`, lockID, workerID)
	if err != nil {
		return apperr.Transient("failed to release job lock", err)
	}
	return nil
}
