// Package table implements the two local storage kinds a table server can
// own: an ordered_set (at most one record per key, sorted dumps) and a bag
// (multiple records per key, deletion by full value).
package table

import "github.com/critdb/crit/internal/record"

// Type names the storage discipline of a table.
type Type int

const (
	OrderedSet Type = iota
	Bag
)

func (t Type) String() string {
	if t == Bag {
		return "bag"
	}
	return "ordered_set"
}

// Table is the local storage surface a table server owns exclusively.
// Implementations are not goroutine-safe on their own; the table server
// actor is the only caller and serializes access.
type Table interface {
	Type() Type
	KeyPos() int

	// Insert adds or replaces (ordered_set) or appends (bag) a record.
	Insert(r record.Record) error
	// InsertMany applies Insert for each record in order.
	InsertMany(rs []record.Record) error
	// Delete removes all records under key (ordered_set: at most one).
	Delete(key any) error
	// DeleteMany applies Delete for each key in order.
	DeleteMany(keys []any) error
	// DeleteObject removes one record equal to r (bag-oriented; on
	// ordered_set it degrades to delete-by-key if the value under that key
	// equals r).
	DeleteObject(r record.Record) error
	// DeleteObjects applies DeleteObject for each record in order.
	DeleteObjects(rs []record.Record) error

	// Lookup returns every record stored under key.
	Lookup(key any) []record.Record
	// Dump returns every record, sorted by key for ordered_set and in
	// insertion order for bag.
	Dump() []record.Record
	// Replace atomically discards current contents and installs dump,
	// verbatim, used when a join coordinator applies a merged dump.
	Replace(dump []record.Record)
	// Size returns the number of records currently stored.
	Size() int
}

// New constructs a Table of the given type and key position.
func New(t Type, keyPos int) Table {
	if t == Bag {
		return newBag(keyPos)
	}
	return newOrderedSet(keyPos)
}
