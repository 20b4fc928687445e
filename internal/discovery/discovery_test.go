package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/critdb/crit/internal/discovery"
	"github.com/critdb/crit/internal/discovery/static"
	"github.com/critdb/crit/internal/join"
	"github.com/critdb/crit/internal/locking/inproc"
	"github.com/critdb/crit/internal/metrics"
	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/table"
	"github.com/critdb/crit/internal/transport"
)

func TestLoopJoinsDiscoveredNode(t *testing.T) {
	reg := transport.NewRegistry()
	n1, err := server.New("n1/orders", reg.NewTransport("n1/orders"), server.Options{Type: table.OrderedSet, KeyPos: 1}, nil, metrics.NewNop())
	require.NoError(t, err)
	t.Cleanup(n1.Stop)
	n2, err := server.New("n2/orders", reg.NewTransport("n2/orders"), server.Options{Type: table.OrderedSet, KeyPos: 1}, nil, metrics.NewNop())
	require.NoError(t, err)
	t.Cleanup(n2.Stop)

	dir := join.NewDirectory()
	dir.Register(n1)
	dir.Register(n2)

	loop := discovery.NewLoop(discovery.Config{
		Table:        "orders",
		Local:        n1,
		Dir:          dir,
		Backend:      static.New([]string{"n1", "n2"}),
		JoinConfig:   join.Config{LockKey: "orders", Locker: inproc.New(), Dir: dir},
		PollInterval: 20 * time.Millisecond,
		JoinTimeout:  time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	require.Eventually(t, func() bool {
		return len(n1.OtherPids()) == 1 && len(n2.OtherPids()) == 1
	}, time.Second, 10*time.Millisecond)
}
