package server

import "github.com/critdb/crit/internal/record"

type opKind int

const (
	opInsert opKind = iota
	opInsertMany
	opDelete
	opDeleteMany
	opDeleteObject
	opDeleteObjects
)

// operation is the replicated mutation body: exactly what a remote_op
// message carries, and what the pending-operations queue stores while
// paused.
type operation struct {
	kind    opKind
	records []record.Record
	keys    []any
}

func (o operation) apply(t interface {
	Insert(record.Record) error
	InsertMany([]record.Record) error
	Delete(any) error
	DeleteMany([]any) error
	DeleteObject(record.Record) error
	DeleteObjects([]record.Record) error
}) error {
	switch o.kind {
	case opInsert:
		return t.Insert(o.records[0])
	case opInsertMany:
		return t.InsertMany(o.records)
	case opDelete:
		return t.Delete(o.keys[0])
	case opDeleteMany:
		return t.DeleteMany(o.keys)
	case opDeleteObject:
		return t.DeleteObject(o.records[0])
	case opDeleteObjects:
		return t.DeleteObjects(o.records)
	}
	return nil
}
