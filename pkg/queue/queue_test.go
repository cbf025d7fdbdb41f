package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
)

// --- In-memory Store ---

type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*job.Job
	seq    int64
	outbox []OutboxMessage
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*job.Job)}
}

func (s *memStore) Insert(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.UniqueKey != "" {
		for _, existing := range s.jobs {
			if existing.UniqueKey == j.UniqueKey {
				return ErrDuplicate
			}
		}
	}
	s.seq++
	j.Seq = s.seq
	cp := *j
	s.jobs[j.ID] = &cp
	s.outbox = append(s.outbox, OutboxMessage{JobID: j.ID, RoutingKey: string(j.Type), AvailableAt: j.NotBefore})
	return nil
}

func (s *memStore) Claim(_ context.Context, jobType job.Type, workerID string, now time.Time, lease time.Duration) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *job.Job
	for _, j := range s.jobs {
		if j.Type != jobType || j.State != job.StatePending || j.NotBefore.After(now) || j.Attempt >= j.MaxAttempts {
			continue
		}
		if next == nil || j.NotBefore.Before(next.NotBefore) ||
			(j.NotBefore.Equal(next.NotBefore) && j.Seq < next.Seq) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	expires := now.Add(lease)
	next.State = job.StateRunning
	next.Attempt++
	next.WorkerID = workerID
	next.LeaseExpiresAt = &expires
	cp := *next
	return &cp, nil
}

func (s *memStore) Get(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job not found")
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) MarkSucceeded(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != job.StateRunning {
		return ErrLeaseLost
	}
	j.State = job.StateSucceeded
	j.LeaseExpiresAt = nil
	return nil
}

func (s *memStore) Reschedule(_ context.Context, id string, attempt int, notBefore time.Time, lastErr string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != job.StateRunning || j.Attempt != attempt {
		return ErrLeaseLost
	}
	j.State = job.StatePending
	j.NotBefore = notBefore
	j.LastError = lastErr
	j.LeaseExpiresAt = nil
	s.outbox = append(s.outbox, OutboxMessage{JobID: id, RoutingKey: string(j.Type), AvailableAt: notBefore})
	return nil
}

func (s *memStore) Abandon(_ context.Context, id string, attempt int, lastErr string, _ time.Time) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != job.StateRunning || j.Attempt != attempt {
		return nil, ErrLeaseLost
	}
	j.State = job.StateAbandoned
	j.LastError = lastErr
	j.LeaseExpiresAt = nil
	cp := *j
	return &cp, nil
}

func (s *memStore) ReleaseExpired(_ context.Context, now time.Time) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*job.Job
	for _, j := range s.jobs {
		if j.State != job.StateRunning || j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Before(now) {
			continue
		}
		if j.Attempt >= j.MaxAttempts {
			j.State = job.StateAbandoned
		} else {
			j.State = job.StatePending
			j.NotBefore = now
		}
		j.LastError = "lease expired"
		j.LeaseExpiresAt = nil
		cp := *j
		moved = append(moved, &cp)
	}
	return moved, nil
}

// --- helpers ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingDLQ struct {
	jobs []*job.Job
}

func (r *recordingDLQ) PublishAbandoned(_ context.Context, j *job.Job) error {
	r.jobs = append(r.jobs, j)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPolicy = Policy{
	MaxAttempts: 3,
	BackoffBase: 5 * time.Second,
	BackoffCap:  time.Minute,
	Lease:       2 * time.Minute,
}

func newTestQueue(t *testing.T) (*Queue, *memStore, *fakeClock, *recordingDLQ) {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	dlq := &recordingDLQ{}
	q := New(store, testPolicy, testLogger(), WithClock(clock.Now), WithDeadLetter(dlq))
	return q, store, clock, dlq
}

func notificationJob(t *testing.T, recipient string, notBefore time.Time) *job.Job {
	t.Helper()
	payload, err := job.Encode(job.NotificationPayload{EmpID: recipient, Email: recipient + "@example.com", Message: "hi"})
	require.NoError(t, err)
	return &job.Job{Type: job.TypeNotification, Recipient: recipient, Payload: payload, NotBefore: notBefore}
}

// --- Tests ---

func TestPolicy_Backoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, time.Minute},
		{60, time.Minute},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, testPolicy.Backoff(tt.attempt))
		})
	}
}

func TestEnqueue_FillsDefaults(t *testing.T) {
	q, store, clock, _ := newTestQueue(t)

	j := notificationJob(t, "E1", time.Time{})
	require.NoError(t, q.Enqueue(context.Background(), j))

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, job.StatePending, j.State)
	assert.Equal(t, 3, j.MaxAttempts)
	assert.Equal(t, clock.Now(), j.NotBefore)
	assert.Len(t, store.outbox, 1)
}

func TestEnqueue_RejectsUnknownTypeAndEmptyPayload(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	err := q.Enqueue(context.Background(), &job.Job{Type: "export_data", Payload: []byte(`{}`)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = q.Enqueue(context.Background(), &job.Job{Type: job.TypeNotification})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestEnqueue_DuplicateUniqueKey(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	payload, _ := job.Encode(job.BoundaryPayload{Date: "2026-03-02"})

	first := &job.Job{Type: job.TypeDailyBoundary, Payload: payload, UniqueKey: "daily_boundary:2026-03-02"}
	require.NoError(t, q.Enqueue(context.Background(), first))

	second := &job.Job{Type: job.TypeDailyBoundary, Payload: payload, UniqueKey: "daily_boundary:2026-03-02"}
	assert.ErrorIs(t, q.Enqueue(context.Background(), second), ErrDuplicate)
}

func TestClaimNext_OrdersByNotBeforeThenEnqueueOrder(t *testing.T) {
	q, _, clock, _ := newTestQueue(t)
	ctx := context.Background()
	now := clock.Now()

	later := notificationJob(t, "later", now.Add(-time.Minute))
	first := notificationJob(t, "first", now.Add(-time.Hour))
	tieA := notificationJob(t, "tieA", now.Add(-30*time.Minute))
	tieB := notificationJob(t, "tieB", now.Add(-30*time.Minute))
	future := notificationJob(t, "future", now.Add(time.Hour))
	for _, j := range []*job.Job{later, first, tieA, tieB, future} {
		require.NoError(t, q.Enqueue(ctx, j))
	}

	var order []string
	for {
		j, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
		require.NoError(t, err)
		if j == nil {
			break
		}
		order = append(order, j.Recipient)
	}
	assert.Equal(t, []string{"first", "tieA", "tieB", "later"}, order)

	clock.Advance(2 * time.Hour)
	j, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, "future", j.Recipient)
}

func TestClaimNext_SetsLease(t *testing.T) {
	q, _, clock, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, notificationJob(t, "E1", time.Time{})))

	j, err := q.ClaimNext(ctx, "worker-7", job.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, job.StateRunning, j.State)
	assert.Equal(t, 1, j.Attempt)
	assert.Equal(t, "worker-7", j.WorkerID)
	require.NotNil(t, j.LeaseExpiresAt)
	assert.Equal(t, clock.Now().Add(testPolicy.Lease), *j.LeaseExpiresAt)

	again, err := q.ClaimNext(ctx, "worker-8", job.TypeNotification)
	require.NoError(t, err)
	assert.Nil(t, again, "a running job must not be claimed twice")
}

func TestFailFailSucceed(t *testing.T) {
	q, store, clock, dlq := newTestQueue(t)
	ctx := context.Background()
	T := clock.Now()

	j := notificationJob(t, "E1", T)
	require.NoError(t, q.Enqueue(ctx, j))

	transient := apperr.Transient("smtp unavailable", errors.New("dial tcp: timeout"))

	claimed, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	state, err := q.Fail(ctx, claimed.ID, transient, true)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, state)

	backoff1 := testPolicy.Backoff(1)
	nothing, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	assert.Nil(t, nothing, "job must wait out its backoff")

	clock.Advance(backoff1)
	claimed, err = q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	state, err = q.Fail(ctx, claimed.ID, transient, true)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, state)

	backoff2 := testPolicy.Backoff(2)
	clock.Advance(backoff2)
	claimed, err = q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, T.Add(backoff1+backoff2), clock.Now())
	require.NoError(t, q.Complete(ctx, claimed.ID))

	final, err := q.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSucceeded, final.State)
	assert.Equal(t, 3, final.Attempt)
	assert.Empty(t, dlq.jobs)
	assert.Len(t, store.outbox, 3, "enqueue plus two reschedules")
}

func TestFail_AbandonsAtMaxAttempts(t *testing.T) {
	q, _, clock, dlq := newTestQueue(t)
	ctx := context.Background()

	j := notificationJob(t, "E1", time.Time{})
	require.NoError(t, q.Enqueue(ctx, j))

	var state job.State
	for i := 0; i < testPolicy.MaxAttempts; i++ {
		claimed, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i+1)
		assert.LessOrEqual(t, claimed.Attempt, claimed.MaxAttempts)

		state, err = q.Fail(ctx, claimed.ID, errors.New("boom"), true)
		require.NoError(t, err)
		clock.Advance(testPolicy.BackoffCap)
	}
	assert.Equal(t, job.StateAbandoned, state)

	final, err := q.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateAbandoned, final.State)
	assert.Equal(t, testPolicy.MaxAttempts, final.Attempt)
	assert.Equal(t, "boom", final.LastError)

	again, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)
	assert.Nil(t, again, "abandoned jobs are never reclaimed")

	require.Len(t, dlq.jobs, 1)
	assert.Equal(t, j.ID, dlq.jobs[0].ID)
}

func TestFail_NonRetryableAbandonsImmediately(t *testing.T) {
	q, _, _, dlq := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, notificationJob(t, "E1", time.Time{})))

	claimed, err := q.ClaimNext(ctx, "w1", job.TypeNotification)
	require.NoError(t, err)

	state, err := q.Fail(ctx, claimed.ID, apperr.PermanentRecipient("unknown employee", nil), false)
	require.NoError(t, err)
	assert.Equal(t, job.StateAbandoned, state)

	final, _ := q.Get(ctx, claimed.ID)
	assert.Equal(t, 1, final.Attempt)
	assert.Len(t, dlq.jobs, 1)
}

func TestReleaseExpired(t *testing.T) {
	q, _, clock, dlq := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, notificationJob(t, "E1", time.Time{})))

	claimed, err := q.ClaimNext(ctx, "crashed-worker", job.TypeNotification)
	require.NoError(t, err)

	n, err := q.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "lease still valid")

	clock.Advance(testPolicy.Lease + time.Second)
	n, err = q.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The crashed worker waking up must not be able to report an outcome.
	_, err = q.Fail(ctx, claimed.ID, errors.New("late"), true)
	assert.ErrorIs(t, err, ErrLeaseLost)

	reclaimed, err := q.ClaimNext(ctx, "w2", job.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, 2, reclaimed.Attempt)
	assert.Empty(t, dlq.jobs)
}

func TestReleaseExpired_AbandonsExhaustedJob(t *testing.T) {
	q, _, clock, dlq := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, notificationJob(t, "E1", time.Time{})))

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		claimed, err := q.ClaimNext(ctx, "w", job.TypeNotification)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		clock.Advance(testPolicy.Lease + time.Second)
		_, err = q.ReleaseExpired(ctx)
		require.NoError(t, err)
	}

	require.Len(t, dlq.jobs, 1)
	assert.Equal(t, job.StateAbandoned, dlq.jobs[0].State)
	assert.Equal(t, testPolicy.MaxAttempts, dlq.jobs[0].Attempt)
}

func TestComplete_RequiresRunning(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()
	j := notificationJob(t, "E1", time.Time{})
	require.NoError(t, q.Enqueue(ctx, j))

	assert.ErrorIs(t, q.Complete(ctx, j.ID), ErrLeaseLost)
}
