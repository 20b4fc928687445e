// Package locking defines the cluster-wide named lock CRIT's join
// coordinator uses to serialize concurrent joins that touch the same
// segment, plus two implementations: a Redis-backed one for real clusters
// and an in-process one for tests and the single-node demo.
package locking

import "context"

// Lease is a held lock; Release must be called exactly once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires named, mutually-exclusive leases.
type Locker interface {
	// Acquire blocks (subject to ctx and the implementation's own retry
	// policy) until key is held exclusively by this caller, or returns
	// *errors.CritError with CodeLockUnavailable if it gives up first.
	Acquire(ctx context.Context, key string) (Lease, error)
}
