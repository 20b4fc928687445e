// Package inproc is a single-process locking.Locker backed by named mutexes,
// used by tests and the cmd/critnode demo binary where there is no Redis to
// talk to.
package inproc

import (
	"context"
	"sync"

	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/locking"
)

// Locker hands out one mutex per key, created lazily and kept forever (key
// space is small and long-lived: one entry per table name in practice).
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a ready-to-use in-process Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) mutexFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

type lease struct {
	m *sync.Mutex
}

func (le *lease) Release(ctx context.Context) error {
	le.m.Unlock()
	return nil
}

// Acquire blocks until key's mutex is free, or ctx is done first.
func (l *Locker) Acquire(ctx context.Context, key string) (locking.Lease, error) {
	m := l.mutexFor(key)
	done := make(chan struct{})
	go func() {
		m.Lock()
		close(done)
	}()
	select {
	case <-done:
		return &lease{m: m}, nil
	case <-ctx.Done():
		// The Lock() goroutine above will still acquire eventually and leak
		// a held mutex if we simply abandon it; spin a releaser that frees
		// it the moment it lands, since this caller no longer wants it.
		go func() {
			<-done
			m.Unlock()
		}()
		return nil, crierrors.LockUnavailable(key, ctx.Err())
	}
}
