package server

import (
	"go.uber.org/zap"

	"github.com/critdb/crit/internal/ackagg"
	"github.com/critdb/crit/internal/transport"
)

// handleEnvelope is registered with the Transport and is invoked on a
// goroutine the transport owns; it does nothing but hop the message onto
// the actor goroutine, preserving the per-entity serialization guarantee.
func (s *Server) handleEnvelope(env transport.Envelope) {
	switch env.Kind {
	case transport.KindRemoteOp:
		payload, err := decodeRemoteOp(env.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed remote_op", zap.String("table", s.name), zap.Error(err))
			return
		}
		s.cast(func(st *state) { s.receiveRemoteOp(st, payload) })
	case transport.KindAck:
		payload, err := decodeAck(env.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed ack", zap.String("table", s.name), zap.Error(err))
			return
		}
		s.agg.Ack(ackagg.Token(payload.Ref), payload.From)
	case transport.KindCheckServer:
		s.cast(func(st *state) { s.receiveCheckServer(st, env) })
	default:
		s.logger.Debug("dropping unknown envelope kind", zap.String("kind", string(env.Kind)))
	}
}

// receiveRemoteOp applies an inbound replicated write if its alias is
// still active, queuing it behind a pause like any local write. Must run
// on the actor goroutine.
func (s *Server) receiveRemoteOp(st *state, p remoteOpPayload) {
	if !st.aliases.isActive(p.Alias) {
		s.logger.Debug("discarding remote_op on inactive alias",
			zap.String("table", s.name), zap.String("alias", string(p.Alias)))
		return
	}
	op := operation{kind: p.Kind, records: p.Records, keys: p.Keys}
	if s.isPaused(st) {
		st.pendingQ = append(st.pendingQ, queuedItem{
			isLocal: false,
			op:      op,
			alias:   p.Alias,
			ref:     p.Ref,
			replyTo: p.ReplyTo,
		})
		return
	}
	s.applyRemoteAndAck(st, p.Alias, p.Ref, p.ReplyTo, op)
}

func (s *Server) applyRemoteAndAck(st *state, alias Alias, ref string, replyTo transport.Address, op operation) {
	if !st.aliases.isActive(alias) {
		// the alias may have been disabled between enqueue and drain, e.g.
		// by an intervening join; stale traffic is dropped without error.
		return
	}
	if err := op.apply(st.tbl); err != nil {
		s.logger.Warn("failed to apply replicated op", zap.String("table", s.name), zap.Error(err))
		return
	}
	s.met.RecordReplicatedWrite(s.name)
	ackEnv := transport.Envelope{
		Kind:    transport.KindAck,
		From:    s.trans.LocalAddress(),
		To:      replyTo,
		Payload: encodeAck(ref, s.trans.LocalAddress()),
	}
	s.trans.SendBestEffort(ackEnv)
}

// receiveCheckServer answers a peer's alias liveness probe: an unknown
// alias means this server no longer recognizes the sender as a peer, so it
// replies with a DOWN-style failure rather than the usual confirmation.
func (s *Server) receiveCheckServer(st *state, env transport.Envelope) {
	p, err := decodeCheckServer(env.Payload)
	if err != nil {
		return
	}
	ok := st.aliases.isActive(p.Dest)
	reply := transport.Envelope{
		Kind: transport.KindCheckReply,
		From: s.trans.LocalAddress(),
		To:   p.Source,
		Payload: encodeCheckReply(checkReplyPayload{
			Mon: p.Mon, OK: ok,
		}),
	}
	s.trans.SendBestEffort(reply)
}
