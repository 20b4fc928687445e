package ackagg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critdb/crit/internal/transport"
)

func waitFor(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for release")
		return nil
	}
}

func TestAckReleasesWhenAllPeersAck(t *testing.T) {
	a := New("t1", nil)
	defer a.Stop("normal")

	release := a.Add("tok1", []transport.Address{"n2/t", "n3/t"})
	a.Ack("tok1", "n2/t")
	select {
	case <-release:
		t.Fatal("released before all peers acked")
	case <-time.After(30 * time.Millisecond):
	}
	a.Ack("tok1", "n3/t")
	require.NoError(t, waitFor(t, release))
}

func TestAckUnknownTokenIsDropped(t *testing.T) {
	a := New("t1", nil)
	defer a.Stop("normal")
	a.Ack("ghost", "n2/t")
	assert.Equal(t, 0, a.Pending())
}

func TestAckUnknownPeerIsDropped(t *testing.T) {
	a := New("t1", nil)
	defer a.Stop("normal")
	release := a.Add("tok1", []transport.Address{"n2/t"})
	a.Ack("tok1", "unknown/t")
	select {
	case <-release:
		t.Fatal("should not have released on unknown peer ack")
	case <-time.After(30 * time.Millisecond):
	}
	a.Ack("tok1", "n2/t")
	require.NoError(t, waitFor(t, release))
}

func TestRemoteDownReleasesWaitingWrites(t *testing.T) {
	a := New("t1", nil)
	defer a.Stop("normal")
	release := a.Add("tok1", []transport.Address{"n2/t", "n3/t"})
	a.RemoteDown("n2/t")
	a.RemoteDown("n3/t")
	require.NoError(t, waitFor(t, release))
}

func TestStopWithCrashReasonReleasesPendingWithError(t *testing.T) {
	a := New("t1", nil)
	release := a.Add("tok1", []transport.Address{"n2/t"})
	a.Stop("simulated failure")
	err := waitFor(t, release)
	require.Error(t, err)
}

func TestPendingCount(t *testing.T) {
	a := New("t1", nil)
	defer a.Stop("normal")
	a.Add("tok1", []transport.Address{"n2/t"})
	a.Add("tok2", []transport.Address{"n2/t"})
	assert.Equal(t, 2, a.Pending())
}
