package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	l := New()
	lease, err := l.Acquire(context.Background(), "orders")
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestSecondAcquireBlocksUntilRelease(t *testing.T) {
	l := New()
	lease, err := l.Acquire(context.Background(), "orders")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := l.Acquire(context.Background(), "orders")
		require.NoError(t, err)
		close(acquired)
		require.NoError(t, second.Release(context.Background()))
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned before first lease was released")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lease.Release(context.Background()))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New()
	_, err := l.Acquire(context.Background(), "orders")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "orders")
	require.Error(t, err)
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	l := New()
	a, err := l.Acquire(context.Background(), "orders")
	require.NoError(t, err)
	b, err := l.Acquire(context.Background(), "inventory")
	require.NoError(t, err)
	require.NoError(t, a.Release(context.Background()))
	require.NoError(t, b.Release(context.Background()))
}
