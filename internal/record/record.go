// Package record defines the tuple-like storage unit CRIT tables hold, and
// the validation rules applied to it before it enters a table server.
package record

import (
	"fmt"
	"reflect"

	crierrors "github.com/critdb/crit/internal/errors"
)

// Record is a tuple-like value. The key lives at KeyPos (1-indexed); the
// remainder is opaque payload the table never inspects.
type Record []any

const (
	MaxFields  = 256
	MaxKeySize = 4096
)

// Key extracts the key at the given 1-indexed position.
func (r Record) Key(keyPos int) (any, error) {
	idx := keyPos - 1
	if idx < 0 || idx >= len(r) {
		return nil, crierrors.InvalidRecord(fmt.Sprintf("key position %d out of range for record of length %d", keyPos, len(r)))
	}
	return r[idx], nil
}

// Equal reports whether two records are identical field-for-field, using
// deep equality so records carrying nested slices/maps compare correctly.
// Used by bag tables to identify a record for delete_object.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !reflect.DeepEqual(r[i], o[i]) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the record's field slice, so a Record read
// out of a table cannot be mutated by the caller to corrupt the table's
// internal state.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// Validate checks structural limits on a record before it is accepted by a
// table server: at least keyPos fields, no more than MaxFields fields, and a
// key whose formatted size fits within MaxKeySize.
func Validate(r Record, keyPos int) error {
	if keyPos < 1 {
		return crierrors.InvalidRecord("key position must be a positive integer")
	}
	if len(r) == 0 {
		return crierrors.InvalidRecord("record must have at least one field")
	}
	if len(r) > MaxFields {
		return crierrors.InvalidRecord(fmt.Sprintf("record has %d fields, exceeds maximum %d", len(r), MaxFields))
	}
	if keyPos > len(r) {
		return crierrors.InvalidRecord(fmt.Sprintf("key position %d exceeds record length %d", keyPos, len(r)))
	}
	key, err := r.Key(keyPos)
	if err != nil {
		return err
	}
	if s := fmt.Sprintf("%v", key); len(s) > MaxKeySize {
		return crierrors.InvalidRecord(fmt.Sprintf("key size %d exceeds maximum %d", len(s), MaxKeySize))
	}
	return nil
}

// CompareKeys imposes a total order over the key types CRIT actually sees in
// practice (strings and the numeric kinds), falling back to comparing the
// default string representation so ordered_set never panics on a mismatched
// or exotic key type — it just orders it consistently, if not meaningfully.
func CompareKeys(a, b any) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
