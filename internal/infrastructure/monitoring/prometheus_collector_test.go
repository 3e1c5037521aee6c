package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"watchparty/internal/core/ports"
)

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

func TestCollectorTracksRoomLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.RoomCreated()
	c.RoomCreated()
	c.RoomDestroyed()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.roomsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.roomsCreatedTotal))
}

func TestCollectorTracksConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
}

func TestCollectorTracksForwarding(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.PeersPaired()
	c.EnvelopeForwarded(128)
	c.EnvelopeForwarded(72)
	c.EnvelopeDropped("unroutable")
	c.EnvelopeDropped("unroutable")
	c.EnvelopeDropped("send_failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.peersPairedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.envelopesForwardedTotal))
	assert.Equal(t, 200.0, testutil.ToFloat64(c.forwardedBytesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.envelopesDroppedTotal.WithLabelValues("unroutable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.envelopesDroppedTotal.WithLabelValues("send_failed")))
}

func TestCollectorsAreIndependentPerRegistry(t *testing.T) {
	a := NewPrometheusCollector(prometheus.NewRegistry())
	b := NewPrometheusCollector(prometheus.NewRegistry())

	a.RoomCreated()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.roomsActive))
}
