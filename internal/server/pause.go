package server

import (
	"context"

	crierrors "github.com/critdb/crit/internal/errors"
)

// Pause records the caller's identity via ctx (Go's stand-in for "monitor
// the caller"), issues a fresh pause token, and enters/remains PAUSED. If
// ctx is canceled before an explicit Unpause, the token is released
// automatically, exactly as an explicit Unpause would.
func (s *Server) Pause(ctx context.Context) PauseToken {
	tok := PauseToken(newToken())
	watcherDone := make(chan struct{})
	s.cast(func(st *state) {
		st.pauseTokens[tok] = func() { close(watcherDone) }
	})
	go func() {
		select {
		case <-ctx.Done():
			s.autoUnpause(tok)
		case <-watcherDone:
		}
	}()
	return tok
}

// Unpause consumes token. If it was the last outstanding token, the server
// transitions to RUNNING and drains the pending-operations queue.
func (s *Server) Unpause(tok PauseToken) error {
	result := make(chan error, 1)
	s.cast(func(st *state) {
		stop, ok := st.pauseTokens[tok]
		if !ok {
			result <- crierrors.UnknownPauseMonitor(string(tok))
			return
		}
		stop()
		delete(st.pauseTokens, tok)
		if len(st.pauseTokens) == 0 {
			s.drain(st)
		}
		result <- nil
	})
	return <-result
}

// autoUnpause is Unpause's caller-monitor path: it is idempotent against a
// token that was already consumed by an explicit Unpause racing it.
func (s *Server) autoUnpause(tok PauseToken) {
	s.cast(func(st *state) {
		stop, ok := st.pauseTokens[tok]
		if !ok {
			return
		}
		stop()
		delete(st.pauseTokens, tok)
		if len(st.pauseTokens) == 0 {
			s.drain(st)
		}
	})
}

// drain replays the pending-operations queue in arrival order and prunes
// aliasing state against the (possibly just-changed) peer set. Must run on
// the actor goroutine, with the pause-token set already empty.
func (s *Server) drain(st *state) {
	queued := st.pendingQ
	st.pendingQ = nil
	for _, item := range queued {
		if item.isLocal {
			s.dispatchLocal(st, item.token, item.op)
		} else {
			s.applyRemoteAndAck(st, item.alias, item.ref, item.replyTo, item.op)
		}
	}
	st.aliases.prune(st.peers)
}
