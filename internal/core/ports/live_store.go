package ports

import "context"

type LiveStore interface {
	Locks() LockStore
	Close()
}

// LockStore hands out exclusive, named leases. A lease is held until the
// returned release func is called or, for distributed backends, until its ttl
// expires.
type LockStore interface {
	Acquire(ctx context.Context, key string) (release func(ctx context.Context) error, err error)
}
