package transport

import (
	"context"
	"fmt"
	"sync"
)

// Registry is a shared in-process switchboard: every LocalTransport created
// from the same Registry can reach every other one by Address. Tests use it
// to wire up a whole segment in one process and to inject faults (Suspend,
// Kill) that exercise partition and crash handling.
type Registry struct {
	mu    sync.Mutex
	nodes map[Address]*localNode
}

type localNode struct {
	transport *LocalTransport
	suspended bool
	resumeCh  chan struct{}
	monitors  map[Address]map[chan<- LivenessEvent]struct{}
}

// NewRegistry creates an empty in-process transport switchboard.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[Address]*localNode)}
}

// NewTransport registers and returns a Transport bound to addr within this
// Registry.
func (r *Registry) NewTransport(addr Address) *LocalTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	lt := &LocalTransport{registry: r, addr: addr}
	r.nodes[addr] = &localNode{
		transport: lt,
		resumeCh:  make(chan struct{}),
		monitors:  make(map[Address]map[chan<- LivenessEvent]struct{}),
	}
	return lt
}

// Suspend makes every reliable send to addr block until Resume or until the
// sender's ctx is done, and drops every best-effort send to addr, simulating
// a peer that has stopped responding but not yet been declared down. Kill
// does not release reliable sends already blocked on a suspended addr.
func (r *Registry) Suspend(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[addr]; ok {
		n.suspended = true
	}
}

// Resume undoes Suspend.
func (r *Registry) Resume(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[addr]
	if !ok || !n.suspended {
		return
	}
	n.suspended = false
	close(n.resumeCh)
	n.resumeCh = make(chan struct{})
}

// Kill removes addr from the registry and fires every monitor registered on
// it with reason "killed", the in-process stand-in for a transport-level
// DOWN notification.
func (r *Registry) Kill(addr Address) {
	r.mu.Lock()
	n, ok := r.nodes[addr]
	if ok {
		delete(r.nodes, addr)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, subscribers := range n.monitors {
		for ch := range subscribers {
			select {
			case ch <- LivenessEvent{Peer: addr, Reason: "killed"}:
			default:
				go func(c chan<- LivenessEvent) { c <- LivenessEvent{Peer: addr, Reason: "killed"} }(ch)
			}
		}
	}
}

// LocalTransport is a Transport bound to one Address within a Registry.
type LocalTransport struct {
	registry *Registry
	addr     Address

	mu      sync.Mutex
	handler Handler
}

func (l *LocalTransport) LocalAddress() Address { return l.addr }

func (l *LocalTransport) Register(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *LocalTransport) SendReliable(ctx context.Context, env Envelope) error {
	l.registry.mu.Lock()
	target, ok := l.registry.nodes[env.To]
	l.registry.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no such process %s", env.To)
	}

	for {
		l.registry.mu.Lock()
		suspended := target.suspended
		resumeCh := target.resumeCh
		l.registry.mu.Unlock()
		if !suspended {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumeCh:
		}
	}

	target.transport.mu.Lock()
	h := target.transport.handler
	target.transport.mu.Unlock()
	if h != nil {
		h(env)
	}
	return nil
}

func (l *LocalTransport) SendBestEffort(env Envelope) {
	l.registry.mu.Lock()
	target, ok := l.registry.nodes[env.To]
	l.registry.mu.Unlock()
	if !ok {
		return
	}
	l.registry.mu.Lock()
	suspended := target.suspended
	l.registry.mu.Unlock()
	if suspended {
		return
	}
	target.transport.mu.Lock()
	h := target.transport.handler
	target.transport.mu.Unlock()
	if h != nil {
		go h(env)
	}
}

func (l *LocalTransport) Monitor(peer Address, events chan<- LivenessEvent) {
	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	n, ok := l.registry.nodes[peer]
	if !ok {
		go func() { events <- LivenessEvent{Peer: peer, Reason: "not_found"} }()
		return
	}
	subs, ok := n.monitors[peer]
	if !ok {
		subs = make(map[chan<- LivenessEvent]struct{})
		n.monitors[peer] = subs
	}
	subs[events] = struct{}{}
}

func (l *LocalTransport) StopMonitor(peer Address, events chan<- LivenessEvent) {
	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	if n, ok := l.registry.nodes[peer]; ok {
		delete(n.monitors[peer], events)
	}
}

func (l *LocalTransport) Close() error {
	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	delete(l.registry.nodes, l.addr)
	return nil
}
