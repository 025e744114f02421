package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/renewal-risk-api/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Services: "http,retry-sweep",
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Webhook: config.WebhookConfig{
			URL:        "http://rms.test/webhook",
			MaxRetries: 5,
			Timeout:    time.Second,
		},
		RetrySweep: config.RetrySweepConfig{Schedule: "@every 10s", BatchSize: 10, Concurrency: 2},
		Risk:       config.RiskConfig{ChunkSize: 100},
	}
	cfg.Sanitize()
	return cfg
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, want: 1},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
			assert.Equal(t, tt.want+1, errorChannelBufferSize(enabled))
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "retry-sweep, http"}
	assert.Equal(t, []string{"http", "retry-sweep"}, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))

	require.NoError(t, ValidateServiceConfig(cfg))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
}

func TestNewServices(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	t.Run("requires config and db", func(t *testing.T) {
		_, err := NewServices(nil)
		require.Error(t, err)
		_, err = NewServices(&ServiceDeps{Config: testAppConfig()})
		require.EqualError(t, err, "database is required")
	})

	t.Run("wires every service", func(t *testing.T) {
		svcs, err := NewServices(&ServiceDeps{Config: testAppConfig(), DB: db, Logger: quietLogger()})
		require.NoError(t, err)
		assert.NotNil(t, svcs.Calculations)
		assert.NotNil(t, svcs.Webhooks)
		assert.NotNil(t, svcs.RetrySweep)
		assert.NotNil(t, svcs.Reaper)
		assert.NotNil(t, svcs.Deliveries)
		assert.NotNil(t, svcs.DeadLetters)
		assert.Nil(t, svcs.Observability.Handler)
	})

	t.Run("rejects a bad rms url", func(t *testing.T) {
		cfg := testAppConfig()
		cfg.Webhook.URL = "ftp://rms.test"
		_, err := NewServices(&ServiceDeps{Config: cfg, DB: db, Logger: quietLogger()})
		require.ErrorContains(t, err, "configure rms requests")
	})

	t.Run("rejects a bad body expression", func(t *testing.T) {
		cfg := testAppConfig()
		cfg.Webhook.BodyExpr = "{a: b"
		_, err := NewServices(&ServiceDeps{Config: cfg, DB: db, Logger: quietLogger()})
		require.ErrorContains(t, err, "configure rms requests")
	})
}

func TestBuildObservability(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		obs := buildObservability(quietLogger(), config.ObservabilityConfig{})
		assert.NotNil(t, obs.Recorder)
		assert.Nil(t, obs.Handler)
		assert.NoError(t, obs.Close())
	})

	t.Run("prometheus exposes a handler", func(t *testing.T) {
		obs := buildObservability(quietLogger(), config.ObservabilityConfig{
			Metrics: config.ObservabilityMetricsConfig{Enabled: true, Backend: config.MetricsBackendPrometheus},
		})
		require.NotNil(t, obs.Handler)
		assert.Nil(t, obs.MetricsSink)
	})
}

func TestStartAndShutdownHTTPServer(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testAppConfig()
	svcs, err := NewServices(&ServiceDeps{Config: cfg, DB: db, Logger: quietLogger()})
	require.NoError(t, err)

	server, err := StartHTTPServer(&HTTPServerConfig{Config: cfg, Services: svcs, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ShutdownHTTPServer(ctx, server, quietLogger()))
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}

type fakeWaiter struct {
	called bool
	err    error
}

func (f *fakeWaiter) Wait(context.Context) error {
	f.called = true
	return f.err
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("signal stops services and drains calculations", func(t *testing.T) {
		quit := make(chan os.Signal, 1)
		quit <- os.Interrupt
		done := make(chan struct{})
		close(done)
		waiter := &fakeWaiter{}
		cancelled := false

		err := waitForShutdown(shutdownConfig{
			quit:         quit,
			cancel:       func() { cancelled = true },
			errCh:        make(chan error),
			calculations: waiter,
			logger:       quietLogger(),
			backgrounds:  []backgroundServiceHandle{{name: "retry sweep", done: done}},
			timeout:      time.Second,
		})
		require.NoError(t, err)
		assert.True(t, cancelled)
		assert.True(t, waiter.called)
	})

	t.Run("service error is returned", func(t *testing.T) {
		errCh := make(chan error, 1)
		errCh <- errors.New("retry sweep failed: boom")
		waiter := &fakeWaiter{err: context.DeadlineExceeded}

		err := waitForShutdown(shutdownConfig{
			quit:         make(chan os.Signal),
			cancel:       func() {},
			errCh:        errCh,
			calculations: waiter,
			logger:       quietLogger(),
			timeout:      time.Second,
		})
		require.EqualError(t, err, "retry sweep failed: boom")
		assert.True(t, waiter.called)
	})
}
