// Command mock-rms is a local stand-in for the revenue management system that receives
// renewal-risk webhooks. FAIL_RATE and DELAY_MS make it misbehave on purpose.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/renewal-risk-api/internal/bootstrap"
	httpx "github.com/target/renewal-risk-api/internal/http"
)

func main() {
	logger := bootstrap.InitLogger()
	if err := run(logger); err != nil {
		logger.Error("mock rms failed", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(logger *slog.Logger) error {
	cfg, err := bootstrap.LoadMockRMSConfig()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", newReceiver(cfg, logger))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpx.Chain(mux, httpx.Recover(logger), httpx.Logging(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock RMS listening", "addr", cfg.Addr, "fail_rate", cfg.FailRate, "delay_ms", cfg.DelayMS)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
