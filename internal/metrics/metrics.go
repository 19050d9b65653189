package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the poster, scheduler
// and monitor. All collectors are registered on the registry passed to New,
// which the health listener exposes via promhttp.
type Metrics struct {
	EventsAccepted  prometheus.Counter
	EventsFailed    prometheus.Counter
	RetriesTotal    prometheus.Counter
	BatchesTotal    prometheus.Counter
	InFlight        prometheus.Gauge
	PostDuration    prometheus.Histogram
	MonitorCycles   prometheus.Counter
	MonitorFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_events_accepted_total",
			Help: "Number of events accepted by the ingestion endpoint",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_events_failed_total",
			Help: "Number of events that ended in a terminal failure",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_submission_retries_total",
			Help: "Number of submission attempts beyond the first",
		}),
		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_batches_total",
			Help: "Number of batches dispatched and settled",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadgen_submissions_in_flight",
			Help: "Number of submissions currently in flight",
		}),
		PostDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadgen_post_duration_seconds",
			Help:    "Wall time of a single event submission including retries",
			Buckets: prometheus.DefBuckets,
		}),
		MonitorCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_monitor_cycles_total",
			Help: "Number of completed monitor poll cycles",
		}),
		MonitorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_monitor_query_failures_total",
			Help: "Number of monitor queries that returned an error",
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests and for
// callers that do not expose a metrics endpoint.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
