package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds collectors for the ledger's background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	anomalies   *prometheus.CounterVec
	overdue     prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = register(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return register(registerer)
}

// Run measures one execution of a job.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Track starts measuring a run of job. Safe on a nil Metrics.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, started: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		r.metrics.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	}
	r.metrics.runs.WithLabelValues(r.job, status).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.started).Seconds())
	return err
}

// AddAnomalies counts integrity violations found by check.
func (m *Metrics) AddAnomalies(check string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(check).Add(float64(count))
}

// AddOverdue counts invoices moved to Overdue by the sweep.
func (m *Metrics) AddOverdue(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdue.Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job runs by job name and outcome.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_finance_anomalies_total",
			Help: "Ledger integrity violations grouped by check.",
		}, []string{"check"}),
		overdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ar_invoices_marked_overdue_total",
			Help: "Invoices flagged Overdue by the sweep.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.anomalies, m.overdue)
	return m
}
