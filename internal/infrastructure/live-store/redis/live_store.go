package redislivestore

import (
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/ports"
)

type liveStore struct {
	rdb   *redis.Client
	locks ports.LockStore
}

func NewLiveStore(rdb *redis.Client, lockTTL time.Duration, numOfRetries int) ports.LiveStore {
	return &liveStore{
		rdb:   rdb,
		locks: NewLockStore(rdb, lockTTL, numOfRetries),
	}
}

func (s *liveStore) Locks() ports.LockStore {
	return s.locks
}

func (s *liveStore) Close() {
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close redis client")
	}
}
