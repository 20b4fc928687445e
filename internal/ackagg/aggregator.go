// Package ackagg implements the per-table-server ack aggregator: it tracks,
// per outstanding write, which peers still owe an acknowledgement, and
// releases the waiting caller once that set empties or a peer disappears.
package ackagg

import (
	"fmt"

	"go.uber.org/zap"

	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/transport"
)

// Token identifies one pending write, chosen by the table server (typically
// a UUID string).
type Token string

type pendingWrite struct {
	remaining map[transport.Address]struct{}
	release   chan error
}

// Aggregator is a single-threaded actor: every public method enqueues a
// closure that runs on the goroutine started in New, so pending is only
// ever touched from that one goroutine and needs no locking.
type Aggregator struct {
	name   string
	logger *zap.Logger
	cmds   chan func(map[Token]*pendingWrite)
	done   chan struct{}
}

// New starts the aggregator's actor goroutine and returns immediately.
func New(name string, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		name:   name,
		logger: logger,
		cmds:   make(chan func(map[Token]*pendingWrite), 256),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Aggregator) run() {
	pending := make(map[Token]*pendingWrite)

	defer func() {
		if r := recover(); r != nil {
			err := crierrors.AggregatorCrashed(fmt.Errorf("%v", r))
			a.logger.Error("ack aggregator crashed", zap.String("aggregator", a.name), zap.Any("panic", r))
			for token, pw := range pending {
				delete(pending, token)
				deliver(pw, err)
			}
		}
		close(a.done)
	}()

	for cmd := range a.cmds {
		cmd(pending)
	}
}

func deliver(pw *pendingWrite, err error) {
	select {
	case pw.release <- err:
	default:
	}
	close(pw.release)
}

// Add registers a new pending write. peers must be non-empty; a caller whose
// write has no peers should release itself without ever calling Add. The
// returned channel receives at most one value (nil on success, a
// *errors.CritError on aggregator crash) and is then closed; a "normal"
// Stop closes it without sending a value.
func (a *Aggregator) Add(token Token, peers []transport.Address) <-chan error {
	release := make(chan error, 1)
	remaining := make(map[transport.Address]struct{}, len(peers))
	for _, p := range peers {
		remaining[p] = struct{}{}
	}
	a.cmds <- func(pending map[Token]*pendingWrite) {
		pending[token] = &pendingWrite{remaining: remaining, release: release}
	}
	return release
}

// Ack marks peer as having acknowledged token. Unknown tokens and unknown
// peers are dropped silently, matching the aggregator's no-crash-on-noise
// contract.
func (a *Aggregator) Ack(token Token, peer transport.Address) {
	a.cmds <- func(pending map[Token]*pendingWrite) {
		pw, ok := pending[token]
		if !ok {
			return
		}
		delete(pw.remaining, peer)
		if len(pw.remaining) == 0 {
			delete(pending, token)
			deliver(pw, nil)
		}
	}
}

// RemoteDown applies Ack(token, peer) to every currently tracked token: a
// peer going away is indistinguishable, from the aggregator's point of
// view, from it having acked everything it owed.
func (a *Aggregator) RemoteDown(peer transport.Address) {
	a.cmds <- func(pending map[Token]*pendingWrite) {
		for token, pw := range pending {
			delete(pw.remaining, peer)
			if len(pw.remaining) == 0 {
				delete(pending, token)
				deliver(pw, nil)
			}
		}
	}
}

// Pending returns the number of writes currently outstanding, for
// diagnostics and tests.
func (a *Aggregator) Pending() int {
	result := make(chan int, 1)
	a.cmds <- func(pending map[Token]*pendingWrite) {
		result <- len(pending)
	}
	return <-result
}

// Stop terminates the actor. If reason is anything other than "normal", any
// writes still pending are released with an aggregator-crashed error
// carrying reason; a "normal" stop simply closes out any stragglers without
// an error, mirroring the table server's own normal-stop contract.
func (a *Aggregator) Stop(reason string) {
	done := make(chan struct{})
	a.cmds <- func(pending map[Token]*pendingWrite) {
		if reason != "normal" {
			err := crierrors.AggregatorCrashed(fmt.Errorf("%s", reason))
			for token, pw := range pending {
				delete(pending, token)
				deliver(pw, err)
			}
		} else {
			for token, pw := range pending {
				delete(pending, token)
				close(pw.release)
			}
		}
		close(done)
	}
	<-done
	close(a.cmds)
	<-a.done
}
