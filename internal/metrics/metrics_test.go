package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordWriteIncrementsCounter(t *testing.T) {
	m := New()
	m.RecordWrite("orders")
	m.RecordWrite("orders")
	m.RecordReplicatedWrite("orders")

	require.InDelta(t, 2, testutil.ToFloat64(m.WritesTotal.WithLabelValues("orders")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.ReplicatedWritesTotal.WithLabelValues("orders")), 0)
}

func TestGaugesAreLabeledPerTable(t *testing.T) {
	m := New()
	m.SetPeerCount("orders", 3)
	m.SetPeerCount("inventory", 1)

	require.InDelta(t, 3, testutil.ToFloat64(m.PeerCountGauge.WithLabelValues("orders")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.PeerCountGauge.WithLabelValues("inventory")), 0)
}

func TestSetPausedTogglesGauge(t *testing.T) {
	m := New()
	m.SetPaused("orders", true)
	require.InDelta(t, 1, testutil.ToFloat64(m.PausedGauge.WithLabelValues("orders")), 0)
	m.SetPaused("orders", false)
	require.InDelta(t, 0, testutil.ToFloat64(m.PausedGauge.WithLabelValues("orders")), 0)
}

func TestNewNopUsesPrivateRegistry(t *testing.T) {
	a := NewNop()
	b := NewNop()
	require.NotSame(t, a.Registry(), b.Registry())
}
