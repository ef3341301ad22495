package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.DatagramReceived()
	m.DatagramReceived()
	m.DatagramDropped(DropRateLimited)
	m.Handshake("client", true)
	m.Handshake("server", false)
	m.LinkOpened()
	m.LinkOpened()
	m.LinkClosed()
	m.BytesSent(100)
	m.BytesReceived(40)
	m.LineDiscarded()
	m.PairingTransition(types.PairStatePaired)
	m.SetDevicesKnown(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.datagramsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.datagramsDropped.WithLabelValues(DropRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handshakes.WithLabelValues("server", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linksActive))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.bytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairingTransitions.WithLabelValues(types.PairStatePaired.String())))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.devicesKnown))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.DatagramReceived()
		m.DatagramDropped(DropOversize)
		m.Handshake("client", false)
		m.LinkOpened()
		m.LinkClosed()
		m.BytesSent(1)
		m.BytesReceived(1)
		m.LineDiscarded()
		m.PairingTransition(types.PairStateUnpaired)
		m.SetDevicesKnown(0)
	})
	assert.Nil(t, m.Registry())
}

func TestNewFromParams(t *testing.T) {
	assert.NotNil(t, NewFromParams(Params{}))

	cfg := config.NewConfig()
	cfg.Metrics.Enabled = false
	assert.Nil(t, NewFromParams(Params{UnifiedCfg: cfg}))
}
