package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "renewal_risk"

// PrometheusRecorder exposes events as Prometheus collectors.
type PrometheusRecorder struct {
	calculations        *prometheus.CounterVec
	calculationDuration prometheus.Histogram
	residentsScored     prometheus.Counter
	rowsWritten         prometheus.Counter

	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram

	sweeps        *prometheus.CounterVec
	sweepClaimed  prometheus.Counter
	sweepDuration prometheus.Histogram

	reaperPasses *prometheus.CounterVec
	reaperJobs   *prometheus.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the collectors on reg, or the default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Finished risk calculation runs by result",
		}, []string{"result"}),
		calculationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Duration of risk calculation runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		residentsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "residents_scored_total",
			Help:      "Residents scored across all runs",
		}),
		rowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_rows_written_total",
			Help:      "Risk score rows inserted or changed",
		}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "RMS webhook attempts by outcome",
		}, []string{"outcome"}),
		attemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_seconds",
			Help:      "Duration of RMS webhook calls",
			Buckets:   prometheus.DefBuckets,
		}),
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_sweeps_total",
			Help:      "Retry sweeps by result",
		}, []string{"result"}),
		sweepClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_sweep_claimed_total",
			Help:      "Deliveries claimed by retry sweeps",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_sweep_duration_seconds",
			Help:      "Duration of retry sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		reaperPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_passes_total",
			Help:      "Calculation job reaper passes by result",
		}, []string{"result"}),
		reaperJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_jobs_total",
			Help:      "Calculation jobs failed or deleted by the reaper",
		}, []string{"operation"}),
	}
}

func (r *PrometheusRecorder) CalculationFinished(m CalculationMetric) {
	r.calculations.WithLabelValues(m.Result).Inc()
	if m.Duration > 0 {
		r.calculationDuration.Observe(m.Duration.Seconds())
	}
	r.residentsScored.Add(float64(m.Scored))
	r.rowsWritten.Add(float64(m.Written))
}

func (r *PrometheusRecorder) WebhookAttempt(m WebhookAttemptMetric) {
	r.attempts.WithLabelValues(m.Outcome).Inc()
	if m.Duration > 0 {
		r.attemptDuration.Observe(m.Duration.Seconds())
	}
}

func (r *PrometheusRecorder) SweepFinished(m SweepMetric) {
	r.sweeps.WithLabelValues(m.Result).Inc()
	r.sweepClaimed.Add(float64(m.Claimed))
	if m.Duration > 0 {
		r.sweepDuration.Observe(m.Duration.Seconds())
	}
}

func (r *PrometheusRecorder) ReaperCleanup(m ReaperMetric) {
	r.reaperPasses.WithLabelValues(m.Result).Inc()
	for _, op := range m.Operations {
		if op.Err == nil && op.Count > 0 {
			r.reaperJobs.WithLabelValues(op.Operation).Add(float64(op.Count))
		}
	}
}
