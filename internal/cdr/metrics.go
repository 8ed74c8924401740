package cdr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts fetch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	fetches  *prometheus.CounterVec
	duration prometheus.Histogram
	polls    prometheus.Counter
}

// NewMetrics registers the fetcher collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_fetch_total",
				Help: "CDR report fetches by outcome (success or error kind).",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdr_fetch_duration_seconds",
			Help:    "Wall-clock time of a CDR report fetch.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cdr_report_polls_total",
			Help: "Status polls issued against the report API.",
		}),
	}
	reg.MustRegister(m.fetches, m.duration, m.polls)
	return m
}

func (m *Metrics) observeFetch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observePoll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}
