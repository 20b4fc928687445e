package server

import (
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/table"
	"github.com/critdb/crit/internal/transport"
)

// ConflictHandler combines a local and a remote record sharing a key into
// one record at join time. Ordered_set tables only.
type ConflictHandler func(local, remote record.Record) record.Record

// DownInfo describes a peer that has left the segment.
type DownInfo struct {
	RemotePID transport.Address
	Table     string
}

// HandleDown is invoked on a goroutine of its own (never blocking the
// actor itself) whenever a peer is observed down.
type HandleDown func(DownInfo)

// Options configures a new table server.
type Options struct {
	// Type defaults to table.OrderedSet.
	Type table.Type
	// KeyPos defaults to 1.
	KeyPos int
	// HandleConflict is only legal when Type is OrderedSet.
	HandleConflict ConflictHandler
	HandleDown     HandleDown
}

func (o Options) withDefaults() Options {
	if o.KeyPos == 0 {
		o.KeyPos = 1
	}
	return o
}
