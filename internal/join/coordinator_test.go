package join

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critdb/crit/internal/locking/inproc"
	"github.com/critdb/crit/internal/metrics"
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/table"
	"github.com/critdb/crit/internal/transport"
)

func newJoinableServer(t *testing.T, reg *transport.Registry, addr transport.Address) *server.Server {
	t.Helper()
	trans := reg.NewTransport(addr)
	s, err := server.New(string(addr), trans, server.Options{Type: table.OrderedSet, KeyPos: 1}, nil, metrics.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestJoinMergesTwoSingleServerSegments(t *testing.T) {
	reg := transport.NewRegistry()
	n1 := newJoinableServer(t, reg, "n1/orders")
	n2 := newJoinableServer(t, reg, "n2/orders")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n1.Insert(ctx, record.Record{"k1", "left"}))
	require.NoError(t, n2.Insert(ctx, record.Record{"k2", "right"}))

	dir := NewDirectory()
	dir.Register(n1)
	dir.Register(n2)

	cfg := Config{
		LockKey: "orders",
		Locker:  inproc.New(),
		Dir:     dir,
	}
	err := Join(context.Background(), cfg, n1, n2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []transport.Address{"n2/orders"}, n1.OtherPids())
	assert.ElementsMatch(t, []transport.Address{"n1/orders"}, n2.OtherPids())
	assert.Equal(t, n1.JoinRef(), n2.JoinRef())

	n1.Ping()
	n2.Ping()
	assert.Len(t, n1.Lookup("k1"), 1)
	assert.Len(t, n1.Lookup("k2"), 1)
	assert.Len(t, n2.Lookup("k1"), 1)
	assert.Len(t, n2.Lookup("k2"), 1)
}

func TestJoinReplicatesSubsequentWrites(t *testing.T) {
	reg := transport.NewRegistry()
	n1 := newJoinableServer(t, reg, "n1/orders")
	n2 := newJoinableServer(t, reg, "n2/orders")

	dir := NewDirectory()
	dir.Register(n1)
	dir.Register(n2)
	require.NoError(t, Join(context.Background(), Config{LockKey: "orders", Locker: inproc.New(), Dir: dir}, n1, n2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n1.Insert(ctx, record.Record{"k3", "v3"}))

	n2.Ping()
	assert.Len(t, n2.Lookup("k3"), 1)
}

func TestJoinSamePIDIsRejected(t *testing.T) {
	reg := transport.NewRegistry()
	n1 := newJoinableServer(t, reg, "n1/orders")
	dir := NewDirectory()
	dir.Register(n1)

	err := Join(context.Background(), Config{LockKey: "orders", Locker: inproc.New(), Dir: dir}, n1, n1)
	require.Error(t, err)
}

func TestJoinAlreadyJoinedIsRejected(t *testing.T) {
	reg := transport.NewRegistry()
	n1 := newJoinableServer(t, reg, "n1/orders")
	n2 := newJoinableServer(t, reg, "n2/orders")
	dir := NewDirectory()
	dir.Register(n1)
	dir.Register(n2)

	cfg := Config{LockKey: "orders", Locker: inproc.New(), Dir: dir}
	require.NoError(t, Join(context.Background(), cfg, n1, n2))
	err := Join(context.Background(), cfg, n1, n2)
	require.Error(t, err)
}

func TestJoinResolvesConflictsWithHandler(t *testing.T) {
	reg := transport.NewRegistry()
	trans1 := reg.NewTransport("n1/orders")
	trans2 := reg.NewTransport("n2/orders")

	preferRemote := func(local, remote record.Record) record.Record { return remote }
	n1, err := server.New("n1/orders", trans1, server.Options{Type: table.OrderedSet, KeyPos: 1, HandleConflict: preferRemote}, nil, metrics.NewNop())
	require.NoError(t, err)
	t.Cleanup(n1.Stop)
	n2, err := server.New("n2/orders", trans2, server.Options{Type: table.OrderedSet, KeyPos: 1}, nil, metrics.NewNop())
	require.NoError(t, err)
	t.Cleanup(n2.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n1.Insert(ctx, record.Record{"k1", "local-value"}))
	require.NoError(t, n2.Insert(ctx, record.Record{"k1", "remote-value"}))

	dir := NewDirectory()
	dir.Register(n1)
	dir.Register(n2)
	require.NoError(t, Join(context.Background(), Config{LockKey: "orders", Locker: inproc.New(), Dir: dir}, n1, n2))

	n1.Ping()
	n2.Ping()
	got := n1.Lookup("k1")
	require.Len(t, got, 1)
	assert.Equal(t, record.Record{"k1", "remote-value"}, got[0])
}
