package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SignalingMessages *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	RemotePackets     *prometheus.CounterVec
	OpenSources       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SignalingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "signaling_messages_total",
			Help:      "Signaling messages by direction and type.",
		}, []string{"direction", "type"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "session_state_transitions_total",
			Help:      "Orchestrator state transitions by target state.",
		}, []string{"state"}),
		RemotePackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "remote_rtp_packets_total",
			Help:      "RTP packets received on remote tracks.",
		}, []string{"kind"}),
		OpenSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerlink",
			Name:      "open_capture_sources",
			Help:      "Capture devices currently open.",
		}),
	}
	m.registry.MustRegister(m.SignalingMessages, m.StateTransitions, m.RemotePackets, m.OpenSources)
	return m
}

func (m *Metrics) Message(direction, msgType string) {
	if m == nil {
		return
	}
	m.SignalingMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) RemotePacket(kind string) {
	if m == nil {
		return
	}
	m.RemotePackets.WithLabelValues(kind).Inc()
}

func (m *Metrics) SourceOpened() {
	if m == nil {
		return
	}
	m.OpenSources.Inc()
}

func (m *Metrics) SourceClosed() {
	if m == nil {
		return
	}
	m.OpenSources.Dec()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
