package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeRetrySweep runs the scheduled webhook retry sweep.
	ServiceModeRetrySweep ServiceMode = "retry-sweep"
	// ServiceModeReaper runs calculation job cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeRetrySweep, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeRetrySweep, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, retry-sweep, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RiskConfig contains risk calculation configuration.
type RiskConfig struct {
	// ChunkSize is the number of residents scored and written per upsert statement.
	ChunkSize int `env:"RISK_CHUNK_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to risk calculation configuration values.
func (r *RiskConfig) Sanitize() {
	if r.ChunkSize < 1 {
		r.ChunkSize = 1
	}
	if r.ChunkSize > 5000 {
		r.ChunkSize = 5000
	}
}

// WebhookConfig contains outbound RMS webhook configuration.
type WebhookConfig struct {
	// URL is the RMS endpoint receiving renewal events.
	URL string `env:"RMS_WEBHOOK_URL" envDefault:"http://localhost:3001/webhook"`

	// MaxRetries is the total attempt budget before an event is dead-lettered.
	MaxRetries int `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`

	// Timeout is the deadline for a single outbound call.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`

	// ClaimLease is how long a claimed delivery is reserved for its claimant.
	// It is clamped to at least twice Timeout so a claim cannot expire mid-attempt.
	ClaimLease time.Duration `env:"WEBHOOK_CLAIM_LEASE" envDefault:"30s"`

	// BodyExpr is an optional JMESPath expression applied to the event payload.
	BodyExpr string `env:"RMS_BODY_EXPR" envDefault:""`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	w.URL = strings.TrimSpace(w.URL)
	w.BodyExpr = strings.TrimSpace(w.BodyExpr)
	if w.MaxRetries < 1 {
		w.MaxRetries = 1
	}
	if w.Timeout <= 0 {
		w.Timeout = 5 * time.Second
	}
	if w.ClaimLease < 2*w.Timeout {
		w.ClaimLease = 2 * w.Timeout
	}
}

// RetrySweepConfig contains retry sweep configuration.
type RetrySweepConfig struct {
	// Schedule is a robfig/cron spec; a leading seconds field is accepted.
	Schedule string `env:"RETRY_SWEEP_SCHEDULE" envDefault:"@every 10s"`

	// BatchSize is the maximum number of deliveries claimed per sweep.
	BatchSize int `env:"RETRY_SWEEP_BATCH_SIZE" envDefault:"100"`

	// Concurrency is the number of attempts in flight within one sweep.
	Concurrency int `env:"RETRY_SWEEP_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to retry sweep configuration values.
func (r *RetrySweepConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Schedule == "" {
		r.Schedule = "@every 10s"
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.Concurrency > r.BatchSize {
		r.Concurrency = r.BatchSize
	}
}

// ReaperConfig contains calculation job reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ProcessingMaxAge is how long a job may stay in processing before it is failed.
	// Jobs left behind by a crashed process never finish on their own.
	ProcessingMaxAge time.Duration `env:"REAPER_PROCESSING_MAX_AGE" envDefault:"30m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.ProcessingMaxAge < 5*time.Minute {
		r.ProcessingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < time.Hour {
		r.CompletedMaxAge = time.Hour
	}
	if r.FailedMaxAge < time.Hour {
		r.FailedMaxAge = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// MockRMSConfig configures the local mock RMS receiver.
type MockRMSConfig struct {
	Addr string `env:"MOCK_RMS_ADDR" envDefault:":3001"`
	// FailRate is the probability in [0,1] that a request is rejected with 500.
	FailRate float64 `env:"FAIL_RATE" envDefault:"0"`
	// DelayMS delays every response.
	DelayMS int `env:"DELAY_MS" envDefault:"0"`
}

// Sanitize clamps the mock knobs.
func (m *MockRMSConfig) Sanitize() {
	m.FailRate = max(0, min(1, m.FailRate))
	m.DelayMS = max(0, m.DelayMS)
	if strings.TrimSpace(m.Addr) == "" {
		m.Addr = ":3001"
	}
}
