package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the store's prometheus instruments.
type Metrics struct {
	Sets             prometheus.Counter
	Clears           prometheus.Counter
	Notifications    prometheus.Counter
	ListenerFailures prometheus.Counter
	Entries          prometheus.Gauge
	Listeners        prometheus.Gauge
}

// NewMetrics creates the store instruments and registers them with
// reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyview_state_sets_total",
			Help: "Number of committed state writes.",
		}),
		Clears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyview_state_clears_total",
			Help: "Number of committed state clears.",
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyview_state_notifications_total",
			Help: "Number of change notifications delivered to callbacks.",
		}),
		ListenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyview_state_listener_failures_total",
			Help: "Number of listeners deregistered after panicking.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyview_state_entries",
			Help: "Number of registered state types.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyview_state_listeners",
			Help: "Number of registered listeners and watchers.",
		}),
	}
	reg.MustRegister(m.Sets, m.Clears, m.Notifications, m.ListenerFailures, m.Entries, m.Listeners)
	return m
}
