package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Commands counts driver commands by op and outcome.
	Commands *prometheus.CounterVec

	// Clients is the number of clients in memory.
	Clients prometheus.Gauge

	// Completed counts sessions that reached the Completed state.
	Completed *prometheus.CounterVec

	// Evicted counts clients removed by the Sweeper.
	Evicted prometheus.Counter
}

// NewMetrics registers the service's metrics with the given
// registerer.  A nil registerer means the metrics aren't registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Subsystem: "service",
			Name:      "commands_total",
			Help:      "Driver commands by op and outcome.",
		}, []string{"op", "outcome"}),
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "formflow",
			Subsystem: "service",
			Name:      "clients",
			Help:      "Clients in memory.",
		}),
		Completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Subsystem: "service",
			Name:      "sessions_completed_total",
			Help:      "Sessions that completed, by form.",
		}, []string{"form"}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "formflow",
			Subsystem: "service",
			Name:      "clients_evicted_total",
			Help:      "Idle clients evicted.",
		}),
	}
}
