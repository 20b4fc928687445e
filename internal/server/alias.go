package server

import (
	"github.com/google/uuid"

	"github.com/critdb/crit/internal/transport"
)

// Alias is a single-shot, recipient-owned reply address: the opaque token a
// sender must present in a remote_op or check_server message so the
// recipient can tell current traffic from stale post-failed-join traffic.
type Alias string

func newAlias() Alias {
	return Alias(uuid.NewString())
}

// aliasState bundles every alias bookkeeping map the table server keeps.
// All fields are actor-owned: touched only from the server's run goroutine.
type aliasState struct {
	// activeOwner maps an alias this server has published to the one peer
	// allowed to use it when addressing this server.
	activeOwner map[Alias]transport.Address
	// ownerAlias is the reverse index: the alias currently published for a
	// given peer.
	ownerAlias map[transport.Address]Alias
	// denied is the deny-table: aliases this server has explicitly
	// invalidated. Incoming remote_op/check_server traffic on a denied
	// alias is dropped without error.
	denied map[Alias]struct{}
	// pending holds aliases minted by MakeAliasesFor while paused, not yet
	// promoted to active.
	pending map[transport.Address]Alias
	// forPeer is the alias this server must present when it sends
	// remote_op to a given peer (the alias that peer published to us).
	forPeer map[transport.Address]Alias
}

func newAliasState() aliasState {
	return aliasState{
		activeOwner: make(map[Alias]transport.Address),
		ownerAlias:  make(map[transport.Address]Alias),
		denied:      make(map[Alias]struct{}),
		pending:     make(map[transport.Address]Alias),
		forPeer:     make(map[transport.Address]Alias),
	}
}

// isActive reports whether alias currently authorizes inbound traffic.
func (as *aliasState) isActive(a Alias) bool {
	_, ok := as.activeOwner[a]
	return ok
}

// mintPending allocates (or reuses) a pending alias for caller, returning
// it. Only valid while the server is paused.
func (as *aliasState) mintPending(caller transport.Address) Alias {
	if existing, ok := as.pending[caller]; ok {
		return existing
	}
	a := newAlias()
	as.pending[caller] = a
	return a
}

// prune reconciles pending/active aliases against the current peer set,
// following one rule applied uniformly on every unpause, whether it follows
// a successful apply_dump or an aborted join:
//   - a pending alias whose peer IS in the new peer set is promoted to
//     active, disabling whatever alias previously represented that peer;
//   - a pending alias whose peer is NOT in the new peer set is dropped;
//   - an already-active alias whose peer has fallen out of the peer set is
//     disabled, so its leftover traffic is denied rather than silently
//     accepted.
func (as *aliasState) prune(peers []transport.Address) {
	inSet := make(map[transport.Address]struct{}, len(peers))
	for _, p := range peers {
		inSet[p] = struct{}{}
	}

	for peer, alias := range as.pending {
		delete(as.pending, peer)
		if _, stillMember := inSet[peer]; !stillMember {
			continue
		}
		if old, ok := as.ownerAlias[peer]; ok && old != alias {
			as.disable(old)
		}
		as.ownerAlias[peer] = alias
		as.activeOwner[alias] = peer
	}

	for peer, alias := range as.ownerAlias {
		if _, stillMember := inSet[peer]; !stillMember {
			as.disable(alias)
			delete(as.ownerAlias, peer)
		}
	}
}

func (as *aliasState) disable(a Alias) {
	delete(as.activeOwner, a)
	as.denied[a] = struct{}{}
}

// setForPeer records the alias this server must present when addressing
// peer, as handed down by apply_dump.
func (as *aliasState) setForPeer(peer transport.Address, a Alias) {
	as.forPeer[peer] = a
}
