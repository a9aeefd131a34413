package jobs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	divergences prometheus.Counter
	expiring    prometheus.Gauge
	reclaimed   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When
// the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure counts,
// and returns the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddDivergences increments the reconciliation divergence counter.
func (m *Metrics) AddDivergences(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.divergences.Add(float64(count))
}

// SetExpiringBatches records the latest expiry scan result.
func (m *Metrics) SetExpiringBatches(count int64) {
	if m == nil {
		return
	}
	m.expiring.Set(float64(count))
}

// AddReclaimedOperations counts operation log rows deleted by cleanup.
func (m *Metrics) AddReclaimedOperations(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.reclaimed.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directstock_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directstock_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directstock_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	divergences := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directstock_ledger_divergences_total",
		Help: "Balance rows found out of sync with their movement history.",
	})
	expiring := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "directstock_expiring_batches",
		Help: "Batches with remaining stock expiring within the scan horizon.",
	})
	reclaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directstock_operation_log_reclaimed_total",
		Help: "Operation log rows deleted past the retention window.",
	})
	registerer.MustRegister(runs, failures, duration, divergences, expiring, reclaimed)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		divergences: divergences,
		expiring:    expiring,
		reclaimed:   reclaimed,
	}
}
