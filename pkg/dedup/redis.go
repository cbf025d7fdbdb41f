// Package dedup records which recipients were notified recently. A live
// entry blocks any further notification to the same recipient until it
// expires.
package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
)

const keyPrefix = "dedup:notify:"

// releaseScript deletes the key only if it still holds our token, so a late
// compensation never removes a reservation made by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Reservation is a held dedup entry.
type Reservation struct {
	Key   string
	Token string
}

type RedisStore struct {
	rdb    redis.UniversalClient
	window time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, window time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, window: window}
}

// Key returns the dedup key of a recipient.
func Key(recipient string) string {
	return keyPrefix + recipient
}

// Reserve atomically creates the dedup entry for recipient. ok is false when
// a live entry already exists.
func (s *RedisStore) Reserve(ctx context.Context, recipient string) (Reservation, bool, error) {
	r := Reservation{Key: Key(recipient), Token: uuid.NewString()}
	ok, err := s.rdb.SetNX(ctx, r.Key, r.Token, s.window).Result()
	if err != nil {
		return Reservation{}, false, apperr.Transient("failed to reserve dedup entry", err)
	}
	return r, ok, nil
}

// Release deletes the entry if it is still the one r created.
func (s *RedisStore) Release(ctx context.Context, r Reservation) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{r.Key}, r.Token).Err(); err != nil {
		return apperr.Transient("failed to release dedup entry", err)
	}
	return nil
}

// Seen reports whether recipient has a live entry.
func (s *RedisStore) Seen(ctx context.Context, recipient string) (bool, error) {
	n, err := s.rdb.Exists(ctx, Key(recipient)).Result()
	if err != nil {
		return false, apperr.Transient("failed to check dedup entry", err)
	}
	return n > 0, nil
}
