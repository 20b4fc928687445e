package join

import (
	"sort"

	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/server"
)

// sortDump returns a copy of dump sorted by the key at keyPos, the
// precondition apply_resolver_for_sorted assumes.
func sortDump(dump []record.Record, keyPos int) []record.Record {
	out := make([]record.Record, len(dump))
	copy(out, dump)
	sort.SliceStable(out, func(i, j int) bool {
		ki, _ := out[i].Key(keyPos)
		kj, _ := out[j].Key(keyPos)
		return record.CompareKeys(ki, kj) < 0
	})
	return out
}

// ApplyResolverForSorted merges two dumps, each sorted by the key at keyPos,
// in a single parallel walk. Equal whole records are left alone; equal keys
// with differing records are resolved through handleConflict and the result
// adopted on both sides, or, with no handleConflict, each returned dump keeps
// its own side's record — since Join installs resolvedRemote on local
// members and resolvedLocal on remote members, each side then ends up with
// the other side's record; a record present on only one side is inserted
// into the other side's stream. A deterministic,
// order-independent handleConflict makes the two returned dumps converge to
// the same union; this function does not enforce that property, only
// implements the walk.
func ApplyResolverForSorted(localDump, remoteDump []record.Record, keyPos int, handleConflict server.ConflictHandler) (resolvedLocal, resolvedRemote []record.Record) {
	l := sortDump(localDump, keyPos)
	r := sortDump(remoteDump, keyPos)

	resolvedLocal = make([]record.Record, 0, len(l)+len(r))
	resolvedRemote = make([]record.Record, 0, len(l)+len(r))

	i, j := 0, 0
	for i < len(l) && j < len(r) {
		lk, _ := l[i].Key(keyPos)
		rk, _ := r[j].Key(keyPos)
		switch record.CompareKeys(lk, rk) {
		case 0:
			if l[i].Equal(r[j]) {
				resolvedLocal = append(resolvedLocal, l[i])
				resolvedRemote = append(resolvedRemote, r[j])
			} else if handleConflict != nil {
				merged := handleConflict(l[i], r[j])
				resolvedLocal = append(resolvedLocal, merged)
				resolvedRemote = append(resolvedRemote, merged)
			} else {
				// No resolver: classic swap — each dump keeps its own
				// record, and install hands it to the other side's members.
				resolvedLocal = append(resolvedLocal, l[i])
				resolvedRemote = append(resolvedRemote, r[j])
			}
			i++
			j++
		case -1:
			// l[i] exists only on the left so far; it belongs in both final
			// dumps once the walk converges them to the same union.
			resolvedLocal = append(resolvedLocal, l[i])
			resolvedRemote = append(resolvedRemote, l[i])
			i++
		default:
			resolvedLocal = append(resolvedLocal, r[j])
			resolvedRemote = append(resolvedRemote, r[j])
			j++
		}
	}
	for ; i < len(l); i++ {
		resolvedLocal = append(resolvedLocal, l[i])
		resolvedRemote = append(resolvedRemote, l[i])
	}
	for ; j < len(r); j++ {
		resolvedLocal = append(resolvedLocal, r[j])
		resolvedRemote = append(resolvedRemote, r[j])
	}
	return resolvedLocal, resolvedRemote
}
