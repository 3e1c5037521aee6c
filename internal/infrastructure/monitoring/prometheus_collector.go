package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements ports.MetricsCollector for the relay.
type PrometheusCollector struct {
	roomsActive       prometheus.Gauge
	connectionsActive prometheus.Gauge

	roomsCreatedTotal prometheus.Counter
	peersPairedTotal  prometheus.Counter

	envelopesForwardedTotal prometheus.Counter
	envelopesDroppedTotal   *prometheus.CounterVec
	forwardedBytesTotal     prometheus.Counter
}

// NewPrometheusCollector registers the relay metrics on the given
// registerer. Tests pass their own registry to avoid global state.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto(reg)

	return &PrometheusCollector{
		roomsActive: factory.gauge(prometheus.GaugeOpts{
			Name: "watchparty_rooms_active",
			Help: "Number of active rooms",
		}),
		connectionsActive: factory.gauge(prometheus.GaugeOpts{
			Name: "watchparty_connections_active",
			Help: "Number of open relay connections",
		}),
		roomsCreatedTotal: factory.counter(prometheus.CounterOpts{
			Name: "watchparty_rooms_created_total",
			Help: "Total number of rooms created",
		}),
		peersPairedTotal: factory.counter(prometheus.CounterOpts{
			Name: "watchparty_peers_paired_total",
			Help: "Total number of rooms that reached two occupants",
		}),
		envelopesForwardedTotal: factory.counter(prometheus.CounterOpts{
			Name: "watchparty_envelopes_forwarded_total",
			Help: "Total number of signal envelopes forwarded",
		}),
		envelopesDroppedTotal: factory.counterVec(prometheus.CounterOpts{
			Name: "watchparty_envelopes_dropped_total",
			Help: "Total number of envelopes dropped, by reason",
		}, []string{"reason"}),
		forwardedBytesTotal: factory.counter(prometheus.CounterOpts{
			Name: "watchparty_forwarded_bytes_total",
			Help: "Total bytes of forwarded signal envelopes",
		}),
	}
}

func (c *PrometheusCollector) RoomCreated() {
	c.roomsActive.Inc()
	c.roomsCreatedTotal.Inc()
}

func (c *PrometheusCollector) RoomDestroyed() {
	c.roomsActive.Dec()
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsActive.Inc()
}

func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *PrometheusCollector) PeersPaired() {
	c.peersPairedTotal.Inc()
}

func (c *PrometheusCollector) EnvelopeForwarded(bytes int) {
	c.envelopesForwardedTotal.Inc()
	c.forwardedBytesTotal.Add(float64(bytes))
}

func (c *PrometheusCollector) EnvelopeDropped(reason string) {
	c.envelopesDroppedTotal.WithLabelValues(reason).Inc()
}

// promauto-style helpers bound to a specific registerer.
type factory struct {
	reg prometheus.Registerer
}

func promauto(reg prometheus.Registerer) factory {
	return factory{reg: reg}
}

func (f factory) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	f.reg.MustRegister(g)
	return g
}

func (f factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(c)
	return c
}
