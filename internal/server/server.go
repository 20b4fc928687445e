// Package server implements the per-node table server: the actor that owns
// one local table, replicates writes to its segment peers, and cooperates
// with the join coordinator to merge segments.
package server

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critdb/crit/internal/ackagg"
	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/metrics"
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/table"
	"github.com/critdb/crit/internal/transport"
)

// JoinRef is the opaque identity shared by every member of a segment,
// minted fresh by the join coordinator on every successful join.
type JoinRef string

// DumpRef identifies a dump staged by send_dump, awaiting apply_dump.
type DumpRef string

// PauseToken identifies one outstanding pause request.
type PauseToken string

// Info is the introspection snapshot returned by (*Server).Info.
type Info struct {
	Name        string
	Type        table.Type
	KeyPos      int
	Size        int
	Peers       []transport.Address
	PauseTokens []PauseToken
	JoinRef     JoinRef
	Aggregator  string
}

// state is every field the actor goroutine owns. It is not a field of
// Server: New hands it to run, and it is only ever touched from inside run's
// goroutine (via cmds), so it needs no mutex despite Server's public methods
// being called concurrently from arbitrary goroutines.
type state struct {
	tbl     table.Table
	peers   []transport.Address
	joinRef JoinRef
	aliases aliasState

	pauseTokens map[PauseToken]context.CancelFunc
	pendingQ    []queuedItem
	releases    map[ackagg.Token]chan error

	dumpStaging map[DumpRef]stagedDump
}

type stagedDump struct {
	dump            []record.Record
	newPeers        []transport.Address
	joinRef         JoinRef
	aliasesForPeers map[transport.Address]Alias
}

// queuedItem is one entry in the pending-operations queue accumulated while
// paused; either a local write awaiting replication, or an inbound remote_op
// awaiting local application.
type queuedItem struct {
	isLocal bool

	// local write fields
	op    operation
	token ackagg.Token

	// remote_op fields
	alias   Alias
	ref     string
	replyTo transport.Address
}

// Server is the actor owning one local table. Every exported method hops
// onto the actor goroutine via cmds and is safe to call from any goroutine.
type Server struct {
	name   string
	opts   Options
	trans  transport.Transport
	agg    *ackagg.Aggregator
	logger *zap.Logger
	met    *metrics.Metrics

	cmds       chan func(*state)
	stopped    chan struct{}
	downEvents chan transport.LivenessEvent
}

// New constructs and starts a table server. Starting a bag table with a
// conflict handler fails with CodeBagWithConflictHandler.
func New(name string, trans transport.Transport, opts Options, logger *zap.Logger, met *metrics.Metrics) (*Server, error) {
	opts = opts.withDefaults()
	if opts.Type == table.Bag && opts.HandleConflict != nil {
		return nil, crierrors.BagWithConflictHandler()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if met == nil {
		met = metrics.NewNop()
	}

	s := &Server{
		name:       name,
		opts:       opts,
		trans:      trans,
		agg:        ackagg.New(name+"-agg", logger),
		logger:     logger,
		met:        met,
		cmds:       make(chan func(*state), 1024),
		stopped:    make(chan struct{}),
		downEvents: make(chan transport.LivenessEvent, 64),
	}

	st := &state{
		tbl:         table.New(opts.Type, opts.KeyPos),
		aliases:     newAliasState(),
		pauseTokens: make(map[PauseToken]context.CancelFunc),
		releases:    make(map[ackagg.Token]chan error),
		dumpStaging: make(map[DumpRef]stagedDump),
	}
	go s.run(st)
	go s.watchDown()

	trans.Register(s.handleEnvelope)
	return s, nil
}

func (s *Server) run(st *state) {
	for cmd := range s.cmds {
		cmd(st)
	}
	close(s.stopped)
}

// call runs f synchronously on the actor goroutine and returns its result.
func call[T any](s *Server, f func(*state) T) T {
	result := make(chan T, 1)
	s.cmds <- func(st *state) { result <- f(st) }
	return <-result
}

// cast runs f on the actor goroutine without waiting for completion.
func (s *Server) cast(f func(*state)) {
	s.cmds <- f
}

// Stop terminates the server's actor and its paired ack aggregator with
// reason "normal".
func (s *Server) Stop() {
	close(s.cmds)
	<-s.stopped
	close(s.downEvents)
	s.agg.Stop("normal")
	s.trans.Close()
}

func (s *Server) TableName() string { return s.name }

// Address is this server's identity on the transport substrate, the value
// peers and the join coordinator use to address it.
func (s *Server) Address() transport.Address { return s.trans.LocalAddress() }

// ConflictHandler exposes the handle_conflict option the join coordinator's
// resolver step consults; nil unless one was supplied at construction.
func (s *Server) ConflictHandler() ConflictHandler { return s.opts.HandleConflict }

// Kind reports the table's storage discipline (ordered_set or bag).
func (s *Server) Kind() table.Type { return call(s, func(st *state) table.Type { return st.tbl.Type() }) }

// KeyPosition reports the 1-indexed key field, used by the resolver to walk
// both dumps in parallel.
func (s *Server) KeyPosition() int { return s.opts.KeyPos }

func (s *Server) Lookup(key any) []record.Record {
	return call(s, func(st *state) []record.Record { return st.tbl.Lookup(key) })
}

func (s *Server) Dump() []record.Record {
	return call(s, func(st *state) []record.Record { return st.tbl.Dump() })
}

func (s *Server) OtherPids() []transport.Address {
	return call(s, func(st *state) []transport.Address {
		out := make([]transport.Address, len(st.peers))
		copy(out, st.peers)
		return out
	})
}

func (s *Server) JoinRef() JoinRef {
	return call(s, func(st *state) JoinRef { return st.joinRef })
}

func (s *Server) Info() Info {
	return call(s, func(st *state) Info {
		tokens := make([]PauseToken, 0, len(st.pauseTokens))
		for tok := range st.pauseTokens {
			tokens = append(tokens, tok)
		}
		peers := make([]transport.Address, len(st.peers))
		copy(peers, st.peers)
		return Info{
			Name:        s.name,
			Type:        st.tbl.Type(),
			KeyPos:      st.tbl.KeyPos(),
			Size:        st.tbl.Size(),
			Peers:       peers,
			PauseTokens: tokens,
			JoinRef:     st.joinRef,
			Aggregator:  s.name + "-agg",
		}
	})
}

// Ping is a round trip through the actor's inbox: once it returns, every
// command enqueued before it has been processed, giving callers a way to
// flush mailbox order (used by the join coordinator's Sync step).
func (s *Server) Ping() {
	call(s, func(st *state) struct{} { return struct{}{} })
}

// Sync is Ping under the name the join coordinator's protocol uses.
func (s *Server) Sync() { s.Ping() }

func (s *Server) isPaused(st *state) bool {
	return len(st.pauseTokens) > 0
}

func newToken() string {
	return uuid.NewString()
}
