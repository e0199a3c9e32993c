package redislivestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/ports"
)

const (
	lockKeyPrefix     = "lockStore:"
	lockRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lease never releases someone else's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type lockStore struct {
	rdb          *redis.Client
	ttl          time.Duration
	numOfRetries int
}

func NewLockStore(rdb *redis.Client, ttl time.Duration, numOfRetries int) ports.LockStore {
	if numOfRetries < 1 {
		numOfRetries = 1
	}
	return &lockStore{rdb: rdb, ttl: ttl, numOfRetries: numOfRetries}
}

func (s *lockStore) Acquire(
	ctx context.Context, key string,
) (func(context.Context) error, error) {
	lockKey := lockKeyPrefix + key
	token := uuid.New().String()

	failures := 0
	for {
		ok, err := s.rdb.SetNX(ctx, lockKey, token, s.ttl).Result()
		if err != nil {
			failures++
			if failures >= s.numOfRetries {
				return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
			}
			log.WithError(err).Warnf("failed to acquire lock %s, retrying...", key)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	once := &sync.Once{}
	return func(ctx context.Context) (err error) {
		once.Do(func() {
			for attempt := 0; attempt < s.numOfRetries; attempt++ {
				if err = releaseScript.Run(ctx, s.rdb, []string{lockKey}, token).Err(); err == nil {
					return
				}
			}
			err = fmt.Errorf("failed to release lock %s: %w", key, err)
		})
		return
	}, nil
}
