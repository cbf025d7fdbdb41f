package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
)

func newTestStore(t *testing.T, window time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, window), mr
}

func TestReserve_BlocksWithinWindow(t *testing.T) {
	store, mr := newTestStore(t, 24*time.Hour)
	ctx := context.Background()

	r, ok, err := store.Reserve(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dedup:notify:E1", r.Key)
	assert.Equal(t, 24*time.Hour, mr.TTL(r.Key))

	_, ok, err = store.Reserve(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, ok, "second reservation inside the window must be refused")

	_, ok, err = store.Reserve(ctx, "E2")
	require.NoError(t, err)
	assert.True(t, ok, "other recipients are independent")
}

func TestReserve_AllowedAfterExpiry(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Reserve(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Hour + time.Second)

	seen, err := store.Seen(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, ok, err = store.Reserve(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelease_OnlyOwnToken(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	r, ok, err := store.Reserve(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)

	stale := Reservation{Key: r.Key, Token: "someone-else"}
	require.NoError(t, store.Release(ctx, stale))
	assert.True(t, mr.Exists(r.Key), "foreign token must not delete the entry")

	require.NoError(t, store.Release(ctx, r))
	assert.False(t, mr.Exists(r.Key))
}

func TestReserve_RedisDown(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	mr.Close()

	_, _, err := store.Reserve(context.Background(), "E1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransientDependency, apperr.KindOf(err))
}
