package metrics

import (
	"strconv"

	"github.com/target/renewal-risk-api/internal/observability/statsd"
)

// StatsdRecorder emits events as StatsD counters, gauges and timings.
type StatsdRecorder struct {
	sink statsd.Sink
}

var _ Recorder = (*StatsdRecorder)(nil)

// NewStatsdRecorder wraps sink. A nil sink yields a recorder that drops everything.
func NewStatsdRecorder(sink statsd.Sink) *StatsdRecorder {
	return &StatsdRecorder{sink: sink}
}

// CalculationFinished emits calculation.finished and its duration and volume.
func (r *StatsdRecorder) CalculationFinished(m CalculationMetric) {
	if r == nil || r.sink == nil {
		return
	}
	tags := map[string]string{"result": m.Result}
	if m.Err != nil && m.Result == ResultError {
		if class := ErrorClass(m.Err); class != "" {
			tags["error_class"] = class
		}
	}
	r.sink.Count("calculation.finished", 1, tags)
	if m.Duration > 0 {
		r.sink.Timing("calculation.duration", m.Duration, CloneTags(tags))
	}
	r.sink.Gauge("calculation.residents_scored", float64(m.Scored), CloneTags(tags))
	r.sink.Count("calculation.rows_written", m.Written, CloneTags(tags))
}

// WebhookAttempt emits webhook.attempt tagged with its outcome.
func (r *StatsdRecorder) WebhookAttempt(m WebhookAttemptMetric) {
	if r == nil || r.sink == nil {
		return
	}
	tags := map[string]string{"outcome": m.Outcome}
	if m.Err != nil {
		if class := ErrorClass(m.Err); class != "" {
			tags["error_class"] = class
		}
	}
	r.sink.Count("webhook.attempt", 1, tags)
	if m.Duration > 0 {
		r.sink.Timing("webhook.attempt_duration", m.Duration, CloneTags(tags))
	}
}

// SweepFinished emits webhook.sweep with the number of claimed deliveries.
func (r *StatsdRecorder) SweepFinished(m SweepMetric) {
	if r == nil || r.sink == nil {
		return
	}
	tags := map[string]string{
		"result":      m.Result,
		"had_claimed": strconv.FormatBool(m.Claimed > 0),
	}
	r.sink.Count("webhook.sweep", 1, tags)
	r.sink.Gauge("webhook.sweep_claimed", float64(m.Claimed), CloneTags(tags))
	if m.Duration > 0 {
		r.sink.Timing("webhook.sweep_duration", m.Duration, CloneTags(tags))
	}
}

// ReaperCleanup emits reaper.cleanup for the pass and reaper.cleanup_operation per step.
func (r *StatsdRecorder) ReaperCleanup(m ReaperMetric) {
	if r == nil || r.sink == nil {
		return
	}
	tags := map[string]string{"result": m.Result}
	if class := ErrorClass(m.Err); class != "" {
		tags["error_class"] = class
	}
	r.sink.Count("reaper.cleanup", 1, tags)
	if m.Duration > 0 {
		r.sink.Timing("reaper.cleanup_duration", m.Duration, CloneTags(tags))
	}

	for _, op := range m.Operations {
		result := ResultSuccess
		switch {
		case op.Err != nil:
			result = ResultError
		case op.Count == 0:
			result = ResultNoop
		}
		opTags := map[string]string{"operation": op.Operation, "result": result}
		r.sink.Count("reaper.cleanup_operation", 1, opTags)
		if op.Err == nil && op.Count > 0 {
			r.sink.Count("reaper.jobs_processed", op.Count, CloneTags(opTags))
		}
	}
}
