package config

import (
	"strings"
	"time"
)

// MetricsBackend selects where metrics are emitted.
type MetricsBackend string

const (
	// MetricsBackendStatsd pushes metrics to a StatsD sink over UDP.
	MetricsBackendStatsd MetricsBackend = "statsd"
	// MetricsBackendPrometheus exposes metrics on GET /metrics.
	MetricsBackendPrometheus MetricsBackend = "prometheus"
)

// ObservabilityConfig groups configuration that controls metrics.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD or Prometheus.
type ObservabilityMetricsConfig struct {
	Enabled       bool           `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	Backend       MetricsBackend `env:"OBSERVABILITY_METRICS_BACKEND"        envDefault:"statsd"`
	StatsdAddress string         `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string         `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"renewal_risk"`
	// StatsdTags are attached to every statsd line, e.g. "env:prod,region:us-east".
	StatsdTags          map[string]string `env:"OBSERVABILITY_METRICS_STATSD_TAGS"`
	StatsdFlushInterval time.Duration     `env:"OBSERVABILITY_METRICS_STATSD_FLUSH_INTERVAL" envDefault:"1s"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Backend = MetricsBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	switch c.Backend {
	case MetricsBackendStatsd, MetricsBackendPrometheus:
	default:
		c.Backend = MetricsBackendStatsd
	}
	if c.StatsdFlushInterval <= 0 {
		c.StatsdFlushInterval = time.Second
	}
	if c.Backend == MetricsBackendStatsd && c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled
}

// UsesPrometheus reports whether GET /metrics should be served.
func (c *ObservabilityMetricsConfig) UsesPrometheus() bool {
	return c.Enabled && c.Backend == MetricsBackendPrometheus
}
