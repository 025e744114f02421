package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
	"github.com/target/renewal-risk-api/internal/observability/statsd"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Recorder metrics.Recorder
	// Handler serves GET /metrics; nil unless the prometheus backend is active.
	Handler       http.Handler
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// Close releases the statsd connection if one was opened.
func (o ObservabilityContainer) Close() error {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink.Close()
}

// buildObservability selects the metrics backend. Failures degrade to a no-op recorder.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}
	out := ObservabilityContainer{Recorder: metrics.Nop{}, MetricsConfig: cfg.Metrics}

	if !cfg.Metrics.IsEnabled() {
		return out
	}

	switch cfg.Metrics.Backend {
	case config.MetricsBackendPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		out.Recorder = metrics.NewPrometheusRecorder(reg)
		out.Handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		obsLogger.Info("prometheus metrics enabled", "path", "/metrics")
	case config.MetricsBackendStatsd:
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			GlobalTags:    cfg.Metrics.StatsdTags,
			FlushInterval: cfg.Metrics.StatsdFlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
			return out
		}
		out.MetricsSink = client
		out.Recorder = metrics.NewStatsdRecorder(client)
		obsLogger.Info("statsd metrics enabled", "address", cfg.Metrics.StatsdAddress)
	}

	return out
}
