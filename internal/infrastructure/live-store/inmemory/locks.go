package inmemorylivestore

import (
	"context"
	"sync"

	"github.com/tokenmarket/marketd/internal/core/ports"
)

type lockStore struct {
	lock  *sync.Mutex
	locks map[string]chan struct{}
}

func NewLockStore() ports.LockStore {
	return &lockStore{
		lock:  &sync.Mutex{},
		locks: make(map[string]chan struct{}),
	}
}

func (s *lockStore) Acquire(
	ctx context.Context, key string,
) (func(context.Context) error, error) {
	s.lock.Lock()
	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	s.lock.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	once := &sync.Once{}
	return func(_ context.Context) error {
		once.Do(func() { <-sem })
		return nil
	}, nil
}
