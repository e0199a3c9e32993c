package inmemorylivestore

import "github.com/tokenmarket/marketd/internal/core/ports"

type liveStore struct {
	locks ports.LockStore
}

func NewLiveStore() ports.LiveStore {
	return &liveStore{
		locks: NewLockStore(),
	}
}

func (s *liveStore) Locks() ports.LockStore {
	return s.locks
}

func (s *liveStore) Close() {}
