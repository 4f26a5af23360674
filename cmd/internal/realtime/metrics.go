package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the hub's observability surface.
type Metrics struct {
	// Listeners is the number of live subscriptions across all channels.
	Listeners prometheus.Gauge

	// Events counts published updates by type ("message", "keepalive").
	Events *prometheus.CounterVec

	// EmitFailures counts listeners dropped because Emit failed.
	EmitFailures prometheus.Counter
}

// NewMetrics registers hub metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Listeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "hub",
			Name:      "listeners",
			Help:      "Live hub subscriptions across all channels.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "hub",
			Name:      "events_total",
			Help:      "Updates published by the hub, by event type.",
		}, []string{"type"}),
		EmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "hub",
			Name:      "emit_failures_total",
			Help:      "Listeners dropped because an emit failed.",
		}),
	}
}
