package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkCall struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (f *fakeSink) Count(name string, value int64, tags map[string]string) {
	f.record("count", name, float64(value), tags)
}

func (f *fakeSink) Gauge(name string, value float64, tags map[string]string) {
	f.record("gauge", name, value, tags)
}

func (f *fakeSink) Timing(name string, value time.Duration, tags map[string]string) {
	f.record("timing", name, float64(value.Milliseconds()), tags)
}

func (f *fakeSink) record(kind, name string, value float64, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sinkCall{kind: kind, name: name, value: value, tags: tags})
}

func (f *fakeSink) find(name string) (sinkCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.name == name {
			return c, true
		}
	}
	return sinkCall{}, false
}

type classifiedErr struct{}

func (classifiedErr) Error() string { return "boom" }

func TestStatsdRecorder_CalculationFinished(t *testing.T) {
	sink := &fakeSink{}
	rec := NewStatsdRecorder(sink)

	rec.CalculationFinished(CalculationMetric{
		Result:   ResultError,
		Duration: 250 * time.Millisecond,
		Scored:   12,
		Written:  10,
		Err:      classifiedErr{},
	})

	finished, ok := sink.find("calculation.finished")
	require.True(t, ok)
	assert.Equal(t, "error", finished.tags["result"])
	assert.Equal(t, "metrics_classifiederr", finished.tags["error_class"])

	written, ok := sink.find("calculation.rows_written")
	require.True(t, ok)
	assert.InDelta(t, 10, written.value, 0)

	timing, ok := sink.find("calculation.duration")
	require.True(t, ok)
	assert.InDelta(t, 250, timing.value, 0)
}

func TestStatsdRecorder_WebhookAttemptAndSweep(t *testing.T) {
	sink := &fakeSink{}
	rec := NewStatsdRecorder(sink)

	rec.WebhookAttempt(WebhookAttemptMetric{Outcome: OutcomeDLQ})
	rec.SweepFinished(SweepMetric{Result: ResultSuccess, Claimed: 3, Duration: time.Second})

	attempt, ok := sink.find("webhook.attempt")
	require.True(t, ok)
	assert.Equal(t, "dlq", attempt.tags["outcome"])
	_, hasTiming := sink.find("webhook.attempt_duration")
	assert.False(t, hasTiming, "zero durations are not emitted")

	claimed, ok := sink.find("webhook.sweep_claimed")
	require.True(t, ok)
	assert.InDelta(t, 3, claimed.value, 0)
	assert.Equal(t, "true", claimed.tags["had_claimed"])
}

func TestStatsdRecorder_NilSink(t *testing.T) {
	rec := NewStatsdRecorder(nil)
	assert.NotPanics(t, func() {
		rec.CalculationFinished(CalculationMetric{Result: ResultSuccess})
		rec.WebhookAttempt(WebhookAttemptMetric{Outcome: OutcomeDelivered})
		rec.SweepFinished(SweepMetric{Result: ResultNoop})
		rec.ReaperCleanup(ReaperMetric{Result: ResultNoop})
	})
}

func TestStatsdRecorder_ReaperCleanup(t *testing.T) {
	sink := &fakeSink{}
	rec := NewStatsdRecorder(sink)

	rec.ReaperCleanup(ReaperMetric{
		Result:   ResultSuccess,
		Duration: 40 * time.Millisecond,
		Operations: []ReaperOperationMetric{
			{Operation: OperationFailStale, Count: 2},
			{Operation: OperationDeleteCompleted},
		},
	})

	pass, ok := sink.find("reaper.cleanup")
	require.True(t, ok)
	assert.Equal(t, "success", pass.tags["result"])
	_, hasClass := pass.tags["error_class"]
	assert.False(t, hasClass)

	processed, ok := sink.find("reaper.jobs_processed")
	require.True(t, ok)
	assert.InDelta(t, 2, processed.value, 0)
	assert.Equal(t, OperationFailStale, processed.tags["operation"])
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
		return total
	}
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.CalculationFinished(CalculationMetric{Result: ResultSuccess, Scored: 4, Written: 3, Duration: time.Second})
	rec.WebhookAttempt(WebhookAttemptMetric{Outcome: OutcomeRetry, Duration: 10 * time.Millisecond})
	rec.WebhookAttempt(WebhookAttemptMetric{Outcome: OutcomeRetry})
	rec.WebhookAttempt(WebhookAttemptMetric{Outcome: OutcomeDelivered, Err: errors.New("ignored")})
	rec.SweepFinished(SweepMetric{Result: ResultSuccess, Claimed: 2})
	rec.ReaperCleanup(ReaperMetric{Result: ResultSuccess, Operations: []ReaperOperationMetric{
		{Operation: OperationDeleteFailed, Count: 5},
	}})

	assert.InDelta(t, 1, gatherValue(t, reg, "renewal_risk_calculations_total", "success"), 0)
	assert.InDelta(t, 4, gatherValue(t, reg, "renewal_risk_residents_scored_total", ""), 0)
	assert.InDelta(t, 3, gatherValue(t, reg, "renewal_risk_risk_rows_written_total", ""), 0)
	assert.InDelta(t, 2, gatherValue(t, reg, "renewal_risk_webhook_attempts_total", "retry"), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "renewal_risk_webhook_attempts_total", "delivered"), 0)
	assert.InDelta(t, 2, gatherValue(t, reg, "renewal_risk_webhook_sweep_claimed_total", ""), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "renewal_risk_reaper_passes_total", "success"), 0)
	assert.InDelta(t, 5, gatherValue(t, reg, "renewal_risk_reaper_jobs_total", "delete_failed"), 0)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	rec := NewStatsdRecorder(nil)
	assert.Same(t, rec, OrNop(rec))
}
