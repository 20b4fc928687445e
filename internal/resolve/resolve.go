// Package resolve provides ready-made handle_conflict implementations for
// the common cases, so a caller opening an ordered_set table isn't required
// to hand-write a resolver just to pick a winner between two records
// sharing a key.
package resolve

import (
	"fmt"
	"time"

	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/server"
)

// LastWriteWins returns a ConflictHandler that keeps whichever record has
// the larger value at fieldPos (1-indexed), treating the field as either a
// time.Time or an int64-ish logical timestamp. Ties keep local.
func LastWriteWins(fieldPos int) server.ConflictHandler {
	return func(local, remote record.Record) record.Record {
		lv, lok := timestampAt(local, fieldPos)
		rv, rok := timestampAt(remote, fieldPos)
		if !lok || !rok {
			return local
		}
		if rv > lv {
			return remote
		}
		return local
	}
}

// PreferField returns a ConflictHandler that keeps whichever record has the
// larger comparable value at fieldPos (1-indexed), generalizing the
// "max of the second field wins" convention to an arbitrary field. Ties
// keep local.
func PreferField(fieldPos int) server.ConflictHandler {
	return func(local, remote record.Record) record.Record {
		lk, lerr := local.Key(fieldPos)
		rk, rerr := remote.Key(fieldPos)
		if lerr != nil || rerr != nil {
			return local
		}
		if record.CompareKeys(rk, lk) > 0 {
			return remote
		}
		return local
	}
}

// timestampAt extracts fieldPos as a comparable int64 nanosecond value,
// accepting either a time.Time or anything convertible through
// fmt.Sprintf's %d-compatible numeric kinds.
func timestampAt(r record.Record, fieldPos int) (int64, bool) {
	v, err := r.Key(fieldPos)
	if err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case time.Time:
		return t.UnixNano(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		var n int64
		if _, err := fmt.Sscanf(fmt.Sprintf("%v", t), "%d", &n); err == nil {
			return n, true
		}
		return 0, false
	}
}
