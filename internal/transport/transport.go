// Package transport provides the reliable node-to-node message-passing
// substrate table servers and the join coordinator are built on: process
// identities, process liveness notifications, and message delivery. Two
// Transport implementations are provided: an in-process one for tests and
// the single-process demo, and a hashicorp/memberlist backed one for real
// clusters.
package transport

import "context"

// Address identifies one table server process: "<node>/<table>".
type Address string

// Kind distinguishes the handful of message shapes CRIT sends over the
// substrate.
type Kind string

const (
	KindRemoteOp     Kind = "remote_op"
	KindAck          Kind = "ack"
	KindCheckServer  Kind = "check_server"
	KindCheckReply   Kind = "check_reply"
)

// Envelope is the wire shape for every message CRIT sends through a
// Transport, encoded as JSON by the gossip implementation.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	From    Address `json:"from"`
	To      Address `json:"to"`
	Payload []byte `json:"payload"`
}

// Handler is invoked for every Envelope a Transport delivers to this
// process, on a goroutine owned by the Transport; handlers must not block
// indefinitely.
type Handler func(Envelope)

// LivenessEvent reports a peer's departure, CRIT's analogue of an Erlang
// process DOWN notification.
type LivenessEvent struct {
	Peer   Address
	Reason string
}

// Transport is the substrate a table server and the join coordinator speak
// through. SendReliable and SendBestEffort map directly onto the
// distinction between fully reliable local delivery and best-effort,
// no-reconnect peer delivery.
type Transport interface {
	LocalAddress() Address

	// Register installs the handler invoked for inbound envelopes. Only one
	// handler is supported per Transport instance.
	Register(h Handler)

	// SendReliable delivers env to the process at env.To, or returns an
	// error if it cannot; it makes no retry of its own. Used for remote_op
	// traffic originating at the local table server.
	SendReliable(ctx context.Context, env Envelope) error

	// SendBestEffort delivers env with no retry and no delivery
	// confirmation; used for ack traffic a peer sends back to the
	// originator.
	SendBestEffort(env Envelope)

	// Monitor requests a LivenessEvent be delivered to events whenever peer
	// is observed to leave the cluster. Registering the same peer/events
	// pair twice has the same effect as registering it once.
	Monitor(peer Address, events chan<- LivenessEvent)
	// StopMonitor cancels a prior Monitor registration for peer/events.
	StopMonitor(peer Address, events chan<- LivenessEvent)

	// Close releases any resources the transport holds (sockets, goroutines).
	Close() error
}
