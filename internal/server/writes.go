package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/critdb/crit/internal/ackagg"
	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/transport"
)

// submit is the common entry point for every local write. It does no
// validation of its own (the insert entry points validate records before
// calling it); it mints a token and either dispatches immediately or
// enqueues behind a pause: a write is accepted regardless of pause state.
func (s *Server) submit(op operation) ackagg.Token {
	tok := ackagg.Token(newToken())
	s.cast(func(st *state) {
		st.releases[tok] = make(chan error, 1)
		if s.isPaused(st) {
			st.pendingQ = append(st.pendingQ, queuedItem{isLocal: true, op: op, token: tok})
			return
		}
		s.dispatchLocal(st, tok, op)
	})
	return tok
}

// dispatchLocal applies op to the local table and fans it out to every
// current peer, registering the write with the ack aggregator. Must be
// called from the actor goroutine.
func (s *Server) dispatchLocal(st *state, tok ackagg.Token, op operation) {
	out, ok := st.releases[tok]
	if !ok {
		// the waiter already gave up (timed out while the write sat in the
		// pending queue); the write still runs, its result goes nowhere.
		out = make(chan error, 1)
	}
	if err := op.apply(st.tbl); err != nil {
		s.logger.Warn("local apply failed", zap.String("table", s.name), zap.Error(err))
		ch := out
		ch <- err
		close(ch)
		return
	}
	s.met.RecordWrite(s.name)

	if len(st.peers) == 0 {
		ch := out
		ch <- nil
		close(ch)
		return
	}

	replyTo := s.trans.LocalAddress()
	ref := string(tok)
	for _, p := range st.peers {
		alias := st.aliases.forPeer[p]
		env := transport.Envelope{
			Kind:    transport.KindRemoteOp,
			From:    replyTo,
			To:      p,
			Payload: encodeRemoteOp(alias, ref, replyTo, op),
		}
		go func(env transport.Envelope) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.trans.SendReliable(ctx, env); err != nil {
				s.logger.Warn("remote_op send failed", zap.String("table", s.name),
					zap.String("peer", string(env.To)), zap.Error(err))
			}
		}(env)
	}

	relCh := s.agg.Add(tok, st.peers)
	go func() {
		err := <-relCh
		select {
		case out <- err:
		default:
		}
		close(out)
	}()
}

// Insert applies a single record locally and replicates it, blocking until
// every peer has acknowledged or ctx is done.
func (s *Server) Insert(ctx context.Context, r record.Record) error {
	if err := record.Validate(r, s.opts.KeyPos); err != nil {
		return err
	}
	tok := s.submit(operation{kind: opInsert, records: []record.Record{r}})
	return s.wait(ctx, tok)
}

func (s *Server) InsertMany(ctx context.Context, rs []record.Record) error {
	for _, r := range rs {
		if err := record.Validate(r, s.opts.KeyPos); err != nil {
			return err
		}
	}
	tok := s.submit(operation{kind: opInsertMany, records: rs})
	return s.wait(ctx, tok)
}

func (s *Server) Delete(ctx context.Context, key any) error {
	tok := s.submit(operation{kind: opDelete, keys: []any{key}})
	return s.wait(ctx, tok)
}

func (s *Server) DeleteMany(ctx context.Context, keys []any) error {
	tok := s.submit(operation{kind: opDeleteMany, keys: keys})
	return s.wait(ctx, tok)
}

func (s *Server) DeleteObject(ctx context.Context, r record.Record) error {
	tok := s.submit(operation{kind: opDeleteObject, records: []record.Record{r}})
	return s.wait(ctx, tok)
}

func (s *Server) DeleteObjects(ctx context.Context, rs []record.Record) error {
	tok := s.submit(operation{kind: opDeleteObjects, records: rs})
	return s.wait(ctx, tok)
}

// InsertRequest is the asynchronous counterpart of Insert: it submits the
// write and returns a token the caller later passes to WaitResponse,
// without validating its own timeout.
func (s *Server) InsertRequest(r record.Record) (ackagg.Token, error) {
	if err := record.Validate(r, s.opts.KeyPos); err != nil {
		return "", err
	}
	return s.submit(operation{kind: opInsert, records: []record.Record{r}}), nil
}

func (s *Server) InsertManyRequest(rs []record.Record) (ackagg.Token, error) {
	for _, r := range rs {
		if err := record.Validate(r, s.opts.KeyPos); err != nil {
			return "", err
		}
	}
	return s.submit(operation{kind: opInsertMany, records: rs}), nil
}

func (s *Server) DeleteRequest(key any) ackagg.Token {
	return s.submit(operation{kind: opDelete, keys: []any{key}})
}

func (s *Server) DeleteManyRequest(keys []any) ackagg.Token {
	return s.submit(operation{kind: opDeleteMany, keys: keys})
}

func (s *Server) DeleteObjectRequest(r record.Record) ackagg.Token {
	return s.submit(operation{kind: opDeleteObject, records: []record.Record{r}})
}

func (s *Server) DeleteObjectsRequest(rs []record.Record) ackagg.Token {
	return s.submit(operation{kind: opDeleteObjects, records: rs})
}

// wait blocks on a token's completion channel until ctx is done.
func (s *Server) wait(ctx context.Context, tok ackagg.Token) error {
	ch := call(s, func(st *state) chan error { return st.releases[tok] })
	if ch == nil {
		return crierrors.New(crierrors.CodeUnknown, "unknown write token", nil)
	}
	select {
	case err := <-ch:
		s.cast(func(st *state) { delete(st.releases, tok) })
		return err
	case <-ctx.Done():
		s.cast(func(st *state) { delete(st.releases, tok) })
		return crierrors.Timeout(string(tok))
	}
}

// WaitResponse implements the request/wait variant with an explicit
// timeout: timeout<=0 polls without blocking instead of waiting forever.
// It does not cancel the underlying write; replication proceeds in the
// background regardless of the outcome here.
func (s *Server) WaitResponse(tok ackagg.Token, timeout time.Duration) error {
	ch := call(s, func(st *state) chan error { return st.releases[tok] })
	if ch == nil {
		return crierrors.New(crierrors.CodeUnknown, "unknown write token", nil)
	}
	if timeout <= 0 {
		select {
		case err := <-ch:
			s.cast(func(st *state) { delete(st.releases, tok) })
			return err
		default:
			return crierrors.Timeout(string(tok))
		}
	}
	select {
	case err := <-ch:
		s.cast(func(st *state) { delete(st.releases, tok) })
		return err
	case <-time.After(timeout):
		s.cast(func(st *state) { delete(st.releases, tok) })
		return crierrors.Timeout(string(tok))
	}
}
