package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the queue's Prometheus collectors, constructed the way
// the teacher builds its PrometheusMetrics in ag-ui go-sdk's
// pkg/state/monitoring.go: promauto registration against a namespace
// and subsystem, one counter per lifecycle transition plus a gauge for
// live depth and a histogram for time-to-retirement.
type Metrics struct {
	Enqueued    prometheus.Counter
	Dispatched  prometheus.Counter
	Retried     prometheus.Counter
	Succeeded   prometheus.Counter
	RolledBack  prometheus.Counter
	LiveDepth   prometheus.Gauge
	Retirement  prometheus.Histogram
}

// NewMetrics registers a fresh set of collectors against reg. Passing
// nil uses prometheus.DefaultRegisterer, matching promauto's own
// default.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutations_enqueued_total", Help: "Total mutations committed to the queue.",
		}),
		Dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutations_dispatched_total", Help: "Total remote function dispatches, including retries.",
		}),
		Retried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutations_retried_total", Help: "Total redispatches after a remote rejection.",
		}),
		Succeeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutations_succeeded_total", Help: "Total mutations that retired as success.",
		}),
		RolledBack: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutations_rolled_back_total", Help: "Total mutations that retired as rolled-back, including dependent cascades.",
		}),
		LiveDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "live_mutations", Help: "Current number of pending/in-flight mutations.",
		}),
		Retirement: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "mutation_retirement_seconds", Help: "Time from commit to retirement (success or rolled-back).",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeRetirement(createdAt time.Time) {
	if m == nil {
		return
	}
	m.Retirement.Observe(time.Since(createdAt).Seconds())
}

func (m *Metrics) incEnqueued() {
	if m != nil {
		m.Enqueued.Inc()
	}
}

func (m *Metrics) incDispatched() {
	if m != nil {
		m.Dispatched.Inc()
	}
}

func (m *Metrics) incRetried() {
	if m != nil {
		m.Retried.Inc()
	}
}

func (m *Metrics) incSucceeded() {
	if m != nil {
		m.Succeeded.Inc()
	}
}

func (m *Metrics) incRolledBack() {
	if m != nil {
		m.RolledBack.Inc()
	}
}

func (m *Metrics) setLiveDepth(n int) {
	if m != nil {
		m.LiveDepth.Set(float64(n))
	}
}
