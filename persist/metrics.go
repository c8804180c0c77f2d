package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Scheduler's Prometheus metrics.
type Metrics struct {
	// Saves counts handled Intents.
	// Labels: kind (partial, final, checkpoint), status (ok, error)
	Saves *prometheus.CounterVec

	// Dropped counts Intents that didn't fit in a queue.
	// Labels: kind
	Dropped *prometheus.CounterVec

	// Latency measures how long saves take.
	// Labels: kind
	Latency *prometheus.HistogramVec
}

// NewMetrics makes Metrics registered with the given Registerer.  If
// reg is nil, the metrics aren't registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Subsystem: "persist",
			Name:      "saves_total",
			Help:      "Total saves by kind and status",
		}, []string{"kind", "status"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Subsystem: "persist",
			Name:      "dropped_total",
			Help:      "Total intents dropped because a queue was full",
		}, []string{"kind"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "formflow",
			Subsystem: "persist",
			Name:      "save_seconds",
			Help:      "Save latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
	}
}
