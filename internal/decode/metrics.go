package decode

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Row outcomes recorded in the rows counter.
const (
	OutcomeDecoded     = "decoded"
	OutcomeUnparseable = "unparseable"
	OutcomeUntagged    = "untagged"
	OutcomeMalformed   = "malformed"
	OutcomeUnresolved  = "unresolved"
	OutcomeFailed      = "failed"
)

// Metrics holds Prometheus metrics for decode runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	rows       *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	unresolved prometheus.Counter
}

// NewMetrics creates decode metrics and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dltscope",
			Subsystem: "decode",
			Name:      "rows_total",
			Help:      "Rows read from converted files, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dltscope",
			Subsystem: "decode",
			Name:      "runs_total",
			Help:      "Decode runs, by final state.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dltscope",
			Subsystem: "decode",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a decode run, conversion included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dltscope",
			Subsystem: "decode",
			Name:      "unresolved_types_total",
			Help:      "Distinct message types per run with no registered decoder.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rows, m.runs, m.duration, m.unresolved)
	}
	return m
}

func (m *Metrics) row(outcome string) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) run(status State, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status.String()).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) unresolvedType() {
	if m == nil {
		return
	}
	m.unresolved.Inc()
}
