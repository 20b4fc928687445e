package server

import (
	"go.uber.org/zap"

	"github.com/critdb/crit/internal/transport"
)

// watchPeers keeps the transport's liveness subscriptions in sync with the
// current peer set: newly added peers are monitored, peers that fell out of
// the set are un-monitored. Must be called from the actor goroutine.
func (s *Server) watchPeers(oldPeers, newPeers []transport.Address) {
	old := make(map[transport.Address]struct{}, len(oldPeers))
	for _, p := range oldPeers {
		old[p] = struct{}{}
	}
	fresh := make(map[transport.Address]struct{}, len(newPeers))
	for _, p := range newPeers {
		fresh[p] = struct{}{}
		if _, already := old[p]; !already {
			s.trans.Monitor(p, s.downEvents)
		}
	}
	for _, p := range oldPeers {
		if _, still := fresh[p]; !still {
			s.trans.StopMonitor(p, s.downEvents)
		}
	}
}

// watchDown is started once in New and forwards every liveness event onto
// the actor goroutine.
func (s *Server) watchDown() {
	for ev := range s.downEvents {
		peer := ev.Peer
		s.cast(func(st *state) { s.handleDown(st, peer) })
	}
}

// handleDown drops a departed peer from the peer set, prunes its aliases,
// notifies the aggregator and the user callback, and probes the remaining
// peers in case they dropped this server during the same window. Must run
// on the actor goroutine.
func (s *Server) handleDown(st *state, peer transport.Address) {
	found := false
	remaining := st.peers[:0:0]
	for _, p := range st.peers {
		if p == peer {
			found = true
			continue
		}
		remaining = append(remaining, p)
	}
	if !found {
		return
	}
	old := st.peers
	st.peers = remaining
	s.watchPeers(old, remaining)
	st.aliases.prune(st.peers)

	s.agg.RemoteDown(peer)
	s.met.RecordDownEvent(s.name)

	if s.opts.HandleDown != nil {
		go s.opts.HandleDown(DownInfo{RemotePID: peer, Table: s.name})
	}

	s.notifyRemainingOfDown(st, peer)
}

// notifyRemainingOfDown probes every surviving peer's recognition of the
// alias this server presents to it, so a peer that silently dropped this
// server during the same window is discovered promptly rather than via a
// future failed write.
func (s *Server) notifyRemainingOfDown(st *state, departed transport.Address) {
	for _, p := range st.peers {
		alias := st.aliases.forPeer[p]
		env := transport.Envelope{
			Kind: transport.KindCheckServer,
			From: s.trans.LocalAddress(),
			To:   p,
			Payload: encodeCheckServer(checkServerPayload{
				Source: s.trans.LocalAddress(),
				Mon:    string(departed),
				Dest:   alias,
			}),
		}
		s.trans.SendBestEffort(env)
	}
	s.logger.Debug("peer down", zap.String("table", s.name), zap.String("peer", string(departed)))
}
