// Package join implements the join coordinator: the protocol that merges
// two table-server segments into one cluster-wide segment.
package join

import (
	"sync"

	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/transport"
)

// Directory resolves a transport.Address to the in-process *server.Server
// handle backing it. The join coordinator needs this because a join touches
// every member of both segments, not just the two servers it was called
// with directly — in a single-process demo or test, every member is a
// Directory entry; in a real multi-process deployment a Directory
// implementation would instead be a thin RPC client, a seam this package
// does not need to take a position on.
type Directory struct {
	mu      sync.RWMutex
	entries map[transport.Address]*server.Server
}

// NewDirectory returns an empty, ready-to-use Directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[transport.Address]*server.Server)}
}

// Register makes s reachable by its own Address.
func (d *Directory) Register(s *server.Server) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[s.Address()] = s
}

// Unregister removes addr, e.g. once its server has stopped.
func (d *Directory) Unregister(addr transport.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, addr)
}

// Lookup returns the server registered at addr, if any.
func (d *Directory) Lookup(addr transport.Address) (*server.Server, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.entries[addr]
	return s, ok
}
