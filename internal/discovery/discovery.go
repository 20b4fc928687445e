// Package discovery polls an external node list and joins this process's
// table servers to newly reachable peers, the loop that drives join.Join
// in a running cluster rather than in a test.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/critdb/crit/internal/join"
	"github.com/critdb/crit/internal/longtask"
	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/transport"
)

// Node is one cluster member as reported by a Backend.
type Node struct {
	ID string
}

// Backend supplies the current cluster membership, e.g. from a seed list, a
// cloud provider's instance API, or a DNS SRV record set. State is opaque
// to Loop and round-tripped between calls.
type Backend interface {
	Init(ctx context.Context) (state any, err error)
	GetNodes(ctx context.Context, state any) (nodes []Node, newState any, err error)
}

// Config parameterizes a Loop.
type Config struct {
	Table        string
	Local        *server.Server
	Dir          *join.Directory
	Backend      Backend
	JoinConfig   join.Config
	PollInterval time.Duration
	JoinTimeout  time.Duration
	Logger       *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Loop polls cfg.Backend on cfg.PollInterval, and for every node it reports
// that isn't already a peer of cfg.Local, resolves the corresponding
// table-server address through cfg.Dir and attempts a join. A join that
// hangs or panics is bounded by the long-task wrapper and cfg.JoinTimeout;
// a join that fails is logged and retried on a later tick once the backend
// reports the node again.
type Loop struct {
	cfg    Config
	logger *zap.Logger
}

// NewLoop constructs a Loop. Call Run to start polling.
func NewLoop(cfg Config) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("table", cfg.Table)),
	}
}

// Run blocks, polling until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	state, err := l.cfg.Backend.Init(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var nodes []Node
			nodes, state, err = l.cfg.Backend.GetNodes(ctx, state)
			if err != nil {
				l.logger.Warn("discovery backend poll failed", zap.Error(err))
				continue
			}
			l.reconcile(ctx, nodes)
		}
	}
}

func (l *Loop) addressFor(node Node) transport.Address {
	return transport.Address(node.ID + "/" + l.cfg.Table)
}

func (l *Loop) reconcile(ctx context.Context, nodes []Node) {
	known := make(map[transport.Address]struct{})
	for _, p := range l.cfg.Local.OtherPids() {
		known[p] = struct{}{}
	}
	self := l.cfg.Local.Address()

	for _, node := range nodes {
		addr := l.addressFor(node)
		if addr == self {
			continue
		}
		if _, ok := known[addr]; ok {
			continue
		}
		remote, ok := l.cfg.Dir.Lookup(addr)
		if !ok {
			l.logger.Debug("discovered node not yet resolvable", zap.String("addr", string(addr)))
			continue
		}
		l.attemptJoin(ctx, remote)
	}
}

func (l *Loop) attemptJoin(ctx context.Context, remote *server.Server) {
	joinCtx, cancel := context.WithTimeout(ctx, l.cfg.JoinTimeout)
	defer cancel()

	res := longtask.Run(joinCtx, longtask.Config{
		Name:   "discovery-join-" + string(remote.Address()),
		Logger: l.logger,
	}, func(taskCtx context.Context, report func(string)) (any, error) {
		report("joining")
		return nil, join.Join(taskCtx, l.cfg.JoinConfig, l.cfg.Local, remote)
	})

	switch {
	case res.Panicked:
		l.logger.Error("join panicked", zap.String("remote", string(remote.Address())), zap.Error(res.Err))
	case res.Err != nil:
		l.logger.Warn("join attempt failed, will retry on a later tick", zap.String("remote", string(remote.Address())), zap.Error(res.Err))
	default:
		l.logger.Info("joined", zap.String("remote", string(remote.Address())))
	}
}
