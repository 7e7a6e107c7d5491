package cycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for the decision pipeline.
type Metrics struct {
	CustomersProcessed prometheus.Counter
	Actions            *prometheus.CounterVec
	Anomalies          *prometheus.CounterVec
	DegradedDecisions  prometheus.Counter
	CycleDuration      prometheus.Histogram
	CyclesTotal        *prometheus.CounterVec
}

// NewMetrics registers the pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CustomersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_customers_processed_total",
			Help: "Customers evaluated across all cycles.",
		}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_actions_total",
			Help: "Dispatched actions by type and outcome.",
		}, []string{"type", "outcome"}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_anomalies_total",
			Help: "Detected anomalies by severity.",
		}, []string{"severity"}),
		DegradedDecisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_degraded_decisions_total",
			Help: "Decisions recovered by fallback parsing or the no-action fallthrough.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full decision cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_cycles_total",
			Help: "Completed cycles by result.",
		}, []string{"result"}),
	}
}
