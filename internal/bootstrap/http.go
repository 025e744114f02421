package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/renewal-risk-api/config"
	httpx "github.com/target/renewal-risk-api/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// Errors receives a failure of the serve loop after startup.
	Errors chan<- error
}

// BuildHTTPHandler builds the API router from the service container.
func BuildHTTPHandler(appCfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) http.Handler {
	return httpx.NewRouter(httpx.RouterServices{
		Calculations:    services.Calculations,
		Events:          services.Webhooks,
		Metrics:         services.Observability.Handler,
		CORSAllowOrigin: appCfg.HTTP.CORSAllowOrigin,
		Logger:          logger,
	})
}

// StartHTTPServer binds the listen address and serves in the background.
// A bind failure is returned synchronously.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":3000"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(appCfg, cfg.Services, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
			if cfg.Errors != nil {
				select {
				case cfg.Errors <- fmt.Errorf("http server: %w", serveErr):
				default:
				}
			}
		}
	}()

	return server, nil
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "shutting down HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "HTTP server stopped")

	return nil
}
