// Package metrics exposes the Prometheus counters and gauges
// connection.Connection and endpoint.Server report through, wired in via
// constructor options so a caller that doesn't want metrics can pass nil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge the core reports. A nil *Metrics is
// valid everywhere it's accepted; every method on it is a no-op, so call
// sites don't need a nil check before every increment.
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesLate     *prometheus.CounterVec

	PacketsFragmented  prometheus.Counter
	PacketsReassembled prometheus.Counter
	PacketsRejected    *prometheus.CounterVec

	ConnectionErrors *prometheus.CounterVec

	ReassemblyBufferOccupancy prometheus.Gauge
}

// New registers every metric against reg and returns the bundle. Pass
// prometheus.NewRegistry() for an isolated test registry, or
// prometheus.DefaultRegisterer for production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "messages_sent_total",
			Help:      "Messages sent per channel.",
		}, []string{"channel"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "messages_received_total",
			Help:      "Messages received per channel.",
		}, []string{"channel"}),
		MessagesLate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "messages_late_total",
			Help:      "Messages that arrived after their channel's delivery window closed.",
		}, []string{"channel"}),
		PacketsFragmented: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "packets_fragmented_total",
			Help:      "Outgoing packets split into wire fragments.",
		}),
		PacketsReassembled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "packets_reassembled_total",
			Help:      "Incoming packets successfully reassembled from fragments.",
		}),
		PacketsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "packets_rejected_total",
			Help:      "Packets rejected during framing, CRC check, or reassembly, by reason.",
		}, []string{"reason"}),
		ConnectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcore",
			Name:      "connection_errors_total",
			Help:      "Connection-level sticky errors, by class.",
		}, []string{"class"}),
		ReassemblyBufferOccupancy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcore",
			Name:      "reassembly_buffer_occupancy",
			Help:      "Packet sequences currently mid-reassembly.",
		}),
	}
}

func (m *Metrics) MessageSent(channel string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) MessageReceived(channel string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(channel).Inc()
}

func (m *Metrics) MessageLate(channel string) {
	if m == nil {
		return
	}
	m.MessagesLate.WithLabelValues(channel).Inc()
}

func (m *Metrics) PacketFragmented() {
	if m == nil {
		return
	}
	m.PacketsFragmented.Inc()
}

func (m *Metrics) PacketReassembled() {
	if m == nil {
		return
	}
	m.PacketsReassembled.Inc()
}

func (m *Metrics) PacketRejected(reason string) {
	if m == nil {
		return
	}
	m.PacketsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConnectionError(class string) {
	if m == nil {
		return
	}
	m.ConnectionErrors.WithLabelValues(class).Inc()
}

func (m *Metrics) SetReassemblyBufferOccupancy(n int) {
	if m == nil {
		return
	}
	m.ReassemblyBufferOccupancy.Set(float64(n))
}
