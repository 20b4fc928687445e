// Package static provides a discovery.Backend backed by a fixed node list,
// for the demo binary and tests that don't need a real membership source.
package static

import (
	"context"

	"github.com/critdb/crit/internal/discovery"
)

// Backend returns the same fixed set of node IDs on every poll.
type Backend struct {
	NodeIDs []string
}

// New constructs a Backend over nodeIDs.
func New(nodeIDs []string) *Backend {
	return &Backend{NodeIDs: nodeIDs}
}

func (b *Backend) Init(ctx context.Context) (any, error) {
	return nil, nil
}

func (b *Backend) GetNodes(ctx context.Context, state any) ([]discovery.Node, any, error) {
	nodes := make([]discovery.Node, len(b.NodeIDs))
	for i, id := range b.NodeIDs {
		nodes[i] = discovery.Node{ID: id}
	}
	return nodes, state, nil
}
