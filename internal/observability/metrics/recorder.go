// Package metrics defines the renewal-risk metric events and the backends that emit them.
package metrics

import (
	"time"

	obserrors "github.com/target/renewal-risk-api/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Webhook attempt outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetry     = "retry"
	OutcomeDLQ       = "dlq"
	// OutcomeError marks an attempt whose result could not be persisted.
	OutcomeError = "error"
)

// CalculationMetric describes one finished calculation run.
type CalculationMetric struct {
	Result    string
	Duration  time.Duration
	Residents int
	Scored    int
	Written   int64
	Err       error
}

// WebhookAttemptMetric describes one outbound RMS call.
type WebhookAttemptMetric struct {
	Outcome  string
	Duration time.Duration
	Err      error
}

// SweepMetric describes one retry sweep.
type SweepMetric struct {
	Result   string
	Claimed  int
	Duration time.Duration
	Err      error
}

// Reaper operations.
const (
	OperationFailStale       = "fail_stale"
	OperationDeleteCompleted = "delete_completed"
	OperationDeleteFailed    = "delete_failed"
)

// ReaperOperationMetric describes one cleanup step.
type ReaperOperationMetric struct {
	Operation string
	Count     int64
	Err       error
}

// ReaperMetric describes one reaper pass over the calculation jobs.
type ReaperMetric struct {
	Result     string
	Duration   time.Duration
	Operations []ReaperOperationMetric
	Err        error
}

// Recorder receives metric events from the services.
type Recorder interface {
	CalculationFinished(m CalculationMetric)
	WebhookAttempt(m WebhookAttemptMetric)
	SweepFinished(m SweepMetric)
	ReaperCleanup(m ReaperMetric)
}

// Nop discards every event.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) CalculationFinished(CalculationMetric) {}
func (Nop) WebhookAttempt(WebhookAttemptMetric)   {}
func (Nop) SweepFinished(SweepMetric)             {}
func (Nop) ReaperCleanup(ReaperMetric)            {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// ErrorClass tags err for metrics; empty when err is nil.
func ErrorClass(err error) string {
	return obserrors.Classify(err)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
