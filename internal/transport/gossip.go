package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// HubConfig configures the memberlist agent backing every GossipTransport
// on one node.
type HubConfig struct {
	NodeName string
	BindAddr string
	BindPort int
	Seeds    []string
}

// Hub wraps one *memberlist.Memberlist shared by every table server running
// in this process; each table server gets its own GossipTransport view,
// scoped to its own Address, so Transport's one-handler-per-instance
// contract still holds while the underlying gossip agent is singular per
// node, matching how a real deployment would actually run memberlist.
type Hub struct {
	nodeName string
	ml       *memberlist.Memberlist
	logger   *zap.Logger

	mu       sync.Mutex
	handlers map[Address]Handler

	monitorsMu sync.Mutex
	monitors   map[string]map[Address]map[chan<- LivenessEvent]struct{} // peer node name -> addr -> subscribers
}

// NewHub starts a memberlist agent and returns the Hub wrapping it.
func NewHub(cfg HubConfig, logger *zap.Logger) (*Hub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		nodeName: cfg.NodeName,
		logger:   logger,
		handlers: make(map[Address]Handler),
		monitors: make(map[string]map[Address]map[chan<- LivenessEvent]struct{}),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeName
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort != 0 {
		mlConfig.BindPort = cfg.BindPort
	}
	mlConfig.Delegate = h
	mlConfig.Events = h

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: creating memberlist agent: %w", err)
	}
	h.ml = ml

	if len(cfg.Seeds) > 0 {
		if _, err := ml.Join(cfg.Seeds); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err), zap.Strings("seeds", cfg.Seeds))
		}
	}
	return h, nil
}

// Transport returns a Transport bound to addr, sharing this Hub's gossip
// agent.
func (h *Hub) Transport(addr Address) *GossipTransport {
	return &GossipTransport{hub: h, addr: addr}
}

func (h *Hub) Shutdown() error {
	return h.ml.Shutdown()
}

func splitAddress(addr Address) (node, table string) {
	s := string(addr)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func (h *Hub) nodeByName(name string) *memberlist.Node {
	for _, n := range h.ml.Members() {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func (h *Hub) send(ctx context.Context, env Envelope, reliable bool) error {
	node, _ := splitAddress(env.To)
	target := h.nodeByName(node)
	if target == nil {
		return fmt.Errorf("transport: node %q not a known cluster member", node)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encoding envelope: %w", err)
	}
	if reliable {
		return h.ml.SendReliable(target, data)
	}
	return h.ml.SendBestEffort(target, data)
}

// --- memberlist.Delegate ---

func (h *Hub) NodeMeta(limit int) []byte {
	meta := map[string]any{"node": h.nodeName, "ts": time.Now().Unix()}
	data, _ := json.Marshal(meta)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

func (h *Hub) NotifyMsg(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("failed to decode gossip envelope", zap.Error(err))
		return
	}
	h.mu.Lock()
	handler, ok := h.handlers[env.To]
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("dropping envelope for unregistered address", zap.String("to", string(env.To)))
		return
	}
	handler(env)
}

func (h *Hub) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (h *Hub) LocalState(join bool) []byte                { return nil }
func (h *Hub) MergeRemoteState(buf []byte, join bool)      {}

// --- memberlist.EventDelegate ---

func (h *Hub) NotifyJoin(node *memberlist.Node) {
	h.logger.Info("peer node joined", zap.String("node", node.Name))
}

func (h *Hub) NotifyLeave(node *memberlist.Node) {
	h.logger.Info("peer node left", zap.String("node", node.Name))
	h.fireDown(node.Name, "left")
}

func (h *Hub) NotifyUpdate(node *memberlist.Node) {
	h.logger.Debug("peer node updated", zap.String("node", node.Name))
}

func (h *Hub) fireDown(nodeName, reason string) {
	h.monitorsMu.Lock()
	byAddr := h.monitors[nodeName]
	h.monitorsMu.Unlock()
	for addr, subs := range byAddr {
		for ch := range subs {
			go func(c chan<- LivenessEvent, a Address) { c <- LivenessEvent{Peer: a, Reason: reason} }(ch, addr)
		}
	}
}

// GossipTransport is one table server's Transport view onto a shared Hub.
type GossipTransport struct {
	hub  *Hub
	addr Address

	mu      sync.Mutex
	handler Handler
}

func (g *GossipTransport) LocalAddress() Address { return g.addr }

func (g *GossipTransport) Register(h Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
	g.hub.mu.Lock()
	g.hub.handlers[g.addr] = h
	g.hub.mu.Unlock()
}

func (g *GossipTransport) SendReliable(ctx context.Context, env Envelope) error {
	env.From = g.addr
	return g.hub.send(ctx, env, true)
}

func (g *GossipTransport) SendBestEffort(env Envelope) {
	env.From = g.addr
	_ = g.hub.send(context.Background(), env, false)
}

func (g *GossipTransport) Monitor(peer Address, events chan<- LivenessEvent) {
	node, _ := splitAddress(peer)
	g.hub.monitorsMu.Lock()
	defer g.hub.monitorsMu.Unlock()
	byAddr, ok := g.hub.monitors[node]
	if !ok {
		byAddr = make(map[Address]map[chan<- LivenessEvent]struct{})
		g.hub.monitors[node] = byAddr
	}
	subs, ok := byAddr[peer]
	if !ok {
		subs = make(map[chan<- LivenessEvent]struct{})
		byAddr[peer] = subs
	}
	subs[events] = struct{}{}
}

func (g *GossipTransport) StopMonitor(peer Address, events chan<- LivenessEvent) {
	node, _ := splitAddress(peer)
	g.hub.monitorsMu.Lock()
	defer g.hub.monitorsMu.Unlock()
	if byAddr, ok := g.hub.monitors[node]; ok {
		if subs, ok := byAddr[peer]; ok {
			delete(subs, events)
		}
	}
}

func (g *GossipTransport) Close() error {
	g.hub.mu.Lock()
	delete(g.hub.handlers, g.addr)
	g.hub.mu.Unlock()
	return nil
}
