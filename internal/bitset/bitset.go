// Package bitset provides bit-indexed flag arithmetic over
// arbitrary-precision integers, with no fixed upper bound on the bit index.
// No other package in this module imports it.
package bitset

import "math/big"

// Set is a non-negative integer treated as an infinite bitfield; bit i
// corresponds to value 2^i. The zero value is the empty set.
type Set struct {
	n big.Int
}

// FromUint64 builds a Set from a plain machine word, for tests and
// low-cardinality callers.
func FromUint64(v uint64) Set {
	var s Set
	s.n.SetUint64(v)
	return s
}

// SetFlags ORs in the bits named by indices, returning a new Set. Setting an
// already-set index is a no-op for that index.
func SetFlags(indices []int, base Set) Set {
	var out Set
	out.n.Set(&base.n)
	for _, i := range indices {
		if i < 0 {
			continue
		}
		out.n.SetBit(&out.n, i, 1)
	}
	return out
}

// UnsetFlagMask returns a mask that, ANDed against any Set, clears bit i and
// leaves every other bit untouched. It relies on math/big's two's-complement
// bit view: Not(1<<i) is a value with an infinite run of leading ones and a
// single zero at position i.
func UnsetFlagMask(i int) Set {
	var one, shifted, mask big.Int
	one.SetInt64(1)
	shifted.Lsh(&one, uint(i))
	mask.Not(&shifted)
	return Set{n: mask}
}

// ApplyMask returns m & n.
func ApplyMask(m, n Set) Set {
	var out Set
	out.n.And(&m.n, &n.n)
	return out
}

// IsSet reports whether bit i is set.
func (s Set) IsSet(i int) bool {
	return s.n.Bit(i) == 1
}

// Uint64 returns the low 64 bits, for tests and diagnostics only.
func (s Set) Uint64() uint64 {
	return s.n.Uint64()
}

// String renders the set in base-2 for logging.
func (s Set) String() string {
	return s.n.Text(2)
}

// Equal reports whether two sets hold the same bits.
func (s Set) Equal(o Set) bool {
	return s.n.Cmp(&o.n) == 0
}
