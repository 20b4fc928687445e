package server

import (
	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/transport"
)

// SendDump stages dump under a fresh reference while the server is paused;
// the dump is not applied until a matching ApplyDump.
func (s *Server) SendDump(newPeers []transport.Address, joinRef JoinRef, dump []record.Record, aliasesForPeers map[transport.Address]Alias) (DumpRef, error) {
	type result struct {
		ref DumpRef
		err error
	}
	res := make(chan result, 1)
	s.cast(func(st *state) {
		if !s.isPaused(st) {
			res <- result{"", crierrors.AssertPaused(s.name, "local")}
			return
		}
		ref := DumpRef(newToken())
		st.dumpStaging[ref] = stagedDump{
			dump:            dump,
			newPeers:        newPeers,
			joinRef:         joinRef,
			aliasesForPeers: aliasesForPeers,
		}
		res <- result{ref, nil}
	})
	r := <-res
	return r.ref, r.err
}

// ApplyDump atomically installs a previously staged dump: it replaces local
// contents, the peer set, the join reference, and refreshes destination
// aliases. Returns CodeUnknownDumpRef and does nothing if ref is stale or
// was never staged.
func (s *Server) ApplyDump(ref DumpRef) error {
	result := make(chan error, 1)
	s.cast(func(st *state) {
		staged, ok := st.dumpStaging[ref]
		if !ok {
			result <- crierrors.UnknownDumpRef(string(ref))
			return
		}
		delete(st.dumpStaging, ref)

		st.tbl.Replace(staged.dump)
		oldPeers := st.peers
		st.peers = staged.newPeers
		s.watchPeers(oldPeers, staged.newPeers)
		st.joinRef = staged.joinRef
		for peer, alias := range staged.aliasesForPeers {
			st.aliases.setForPeer(peer, alias)
		}
		st.aliases.prune(st.peers)
		result <- nil
	})
	return <-result
}

// MakeAliasesFor allocates fresh destination aliases for each caller while
// the server is paused, returning them as caller->alias pairs. Legal only
// while paused; the join coordinator uses it to mint the aliases one side
// of a join must present to reach the other.
func (s *Server) MakeAliasesFor(callers []transport.Address) (map[transport.Address]Alias, error) {
	type result struct {
		aliases map[transport.Address]Alias
		err     error
	}
	res := make(chan result, 1)
	s.cast(func(st *state) {
		if !s.isPaused(st) {
			res <- result{nil, crierrors.AssertPaused(s.name, "local")}
			return
		}
		out := make(map[transport.Address]Alias, len(callers))
		for _, c := range callers {
			out[c] = st.aliases.mintPending(c)
		}
		res <- result{out, nil}
	})
	r := <-res
	return r.aliases, r.err
}

// RemoteDump is the dump path the join coordinator prefers when it is
// co-resident with the server; here it is identical to Dump since there is
// no cross-process boundary to skip.
func (s *Server) RemoteDump() []record.Record {
	return s.Dump()
}
