package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTransportSendReliableDelivers(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewTransport("n1/t")
	b := reg.NewTransport("n2/t")

	received := make(chan Envelope, 1)
	b.Register(func(e Envelope) { received <- e })

	err := a.SendReliable(context.Background(), Envelope{Kind: KindRemoteOp, To: "n2/t", Payload: []byte("x")})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, KindRemoteOp, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("envelope never delivered")
	}
}

func TestLocalTransportSuspendBlocksUntilResume(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewTransport("n1/t")
	b := reg.NewTransport("n2/t")
	received := make(chan Envelope, 1)
	b.Register(func(e Envelope) { received <- e })

	reg.Suspend("n2/t")

	done := make(chan error, 1)
	go func() {
		done <- a.SendReliable(context.Background(), Envelope{Kind: KindAck, To: "n2/t"})
	}()

	select {
	case <-received:
		t.Fatal("message delivered while peer suspended")
	case <-time.After(50 * time.Millisecond):
	}

	reg.Resume("n2/t")

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("message never delivered after resume")
	}
	require.NoError(t, <-done)
}

func TestLocalTransportKillFiresMonitor(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewTransport("n1/t")
	reg.NewTransport("n2/t")

	events := make(chan LivenessEvent, 1)
	a.Monitor("n2/t", events)
	reg.Kill("n2/t")

	select {
	case ev := <-events:
		assert.Equal(t, Address("n2/t"), ev.Peer)
	case <-time.After(time.Second):
		t.Fatal("no liveness event delivered")
	}
}

func TestLocalTransportSendReliableUnknownTarget(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewTransport("n1/t")
	err := a.SendReliable(context.Background(), Envelope{To: "ghost/t"})
	require.Error(t, err)
}

func TestLocalTransportSendReliableContextCanceledWhileSuspended(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewTransport("n1/t")
	reg.NewTransport("n2/t")
	reg.Suspend("n2/t")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.SendReliable(ctx, Envelope{To: "n2/t"})
	require.Error(t, err)
}
