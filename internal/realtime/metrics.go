package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics records channel activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	channels    prometheus.Gauge
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noticeboard",
			Subsystem: "realtime",
			Name:      "channels",
			Help:      "Number of open realtime channels.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noticeboard",
			Subsystem: "realtime",
			Name:      "status_transitions_total",
			Help:      "Channel status transitions by target status.",
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noticeboard",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Change events received from transports by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.channels, m.transitions, m.events)
	}
	return m
}

func (m *Metrics) channelOpened() {
	if m != nil {
		m.channels.Inc()
	}
}

func (m *Metrics) channelClosed() {
	if m != nil {
		m.channels.Dec()
	}
}

func (m *Metrics) transition(s Status) {
	if m != nil {
		m.transitions.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) event(t EventType) {
	if m != nil {
		m.events.WithLabelValues(string(t)).Inc()
	}
}
