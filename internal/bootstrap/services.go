package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/adapters/retrysweep"
	"github.com/target/renewal-risk-api/internal/adapters/rmsclient"
	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Calculations  *service.RiskCalculationService
	Webhooks      *service.WebhookDeliveryService
	RetrySweep    *service.RetrySweepService
	Reaper        *service.ReaperService
	Properties    core.PropertyRepository
	Deliveries    core.DeliveryRepository
	DeadLetters   core.DeadLetterRepository
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // optional; nil runs uncached
	// RMSClient overrides the HTTP client built from config.
	RMSClient core.RMSClient
	Logger    *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	Properties  *data.PropertyRepo
	Residents   *data.ResidentRepo
	Leases      *data.LeaseRepo
	Ledger      *data.LedgerRepo
	Pricing     *data.PricingRepo
	Offers      *data.RenewalOfferRepo
	Scores      *data.RiskScoreRepo
	Jobs        *data.CalculationJobRepo
	Deliveries  *data.DeliveryRepo
	DeadLetters *data.DeadLetterRepo
}

func buildRepositories(db *sql.DB, logger *slog.Logger) *serviceRepositories {
	return &serviceRepositories{
		Properties:  data.NewPropertyRepo(db),
		Residents:   data.NewResidentRepo(db),
		Leases:      data.NewLeaseRepo(db),
		Ledger:      data.NewLedgerRepo(db),
		Pricing:     data.NewPricingRepo(db),
		Offers:      data.NewRenewalOfferRepo(db),
		Scores:      data.NewRiskScoreRepo(db),
		Jobs:        data.NewCalculationJobRepo(db, data.CalculationJobRepoOptions{}),
		Deliveries:  data.NewDeliveryRepo(db, data.DeliveryRepoOptions{Logger: logger}),
		DeadLetters: data.NewDeadLetterRepo(db),
	}
}

func newLatestScoreCache(client redis.UniversalClient, cfg config.CacheConfig, logger *slog.Logger) *core.LatestScoreCache {
	if client == nil || !cfg.Enabled {
		return nil
	}
	return core.NewLatestScoreCache(core.LatestScoreCacheOptions{
		Cache:  data.NewRedisCacheRepo(client),
		TTL:    cfg.TTL,
		Logger: logger,
	})
}

// NewServices wires repositories, adapters and services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	repos := buildRepositories(deps.DB, logger)
	obs := buildObservability(logger, cfg.Observability)

	calculations, err := service.NewRiskCalculationService(service.RiskCalculationServiceOptions{
		Repos: service.RiskCalculationRepos{
			Properties: repos.Properties,
			Residents:  repos.Residents,
			Leases:     repos.Leases,
			Ledger:     repos.Ledger,
			Pricing:    repos.Pricing,
			Offers:     repos.Offers,
			Scores:     repos.Scores,
			Jobs:       repos.Jobs,
		},
		Config:  cfg.Risk,
		Cache:   newLatestScoreCache(deps.RedisClient, cfg.Cache, logger),
		Metrics: obs.Recorder,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create risk calculation service: %w", err)
	}

	requests, err := service.NewRMSRequestBuilder(service.RMSRequestBuilderOptions{
		URL:      cfg.Webhook.URL,
		BodyExpr: cfg.Webhook.BodyExpr,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("configure rms requests: %w", err)
	}

	client := deps.RMSClient
	if client == nil {
		client = rmsclient.New(rmsclient.Config{Timeout: cfg.Webhook.Timeout})
	}

	webhooks, err := service.NewWebhookDeliveryService(service.WebhookDeliveryServiceOptions{
		Repos: service.WebhookDeliveryRepos{
			Residents:  repos.Residents,
			Leases:     repos.Leases,
			Offers:     repos.Offers,
			Scores:     repos.Scores,
			Deliveries: repos.Deliveries,
		},
		Client:   client,
		Requests: requests,
		Config:   cfg.Webhook,
		Metrics:  obs.Recorder,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create webhook delivery service: %w", err)
	}

	sweep, err := service.NewRetrySweepService(service.RetrySweepServiceOptions{
		Deliveries: repos.Deliveries,
		Attempter:  webhooks,
		Config:     cfg.RetrySweep,
		Metrics:    obs.Recorder,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create retry sweep service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repos.Jobs,
		Config:  cfg.Reaper,
		Metrics: obs.Recorder,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create reaper service: %w", err)
	}

	return ServiceContainer{
		Calculations:  calculations,
		Webhooks:      webhooks,
		RetrySweep:    sweep,
		Reaper:        reaper,
		Properties:    repos.Properties,
		Deliveries:    repos.Deliveries,
		DeadLetters:   repos.DeadLetters,
		Observability: obs,
	}, nil
}

// ServiceOrchestrationConfig contains dependencies for running the enabled services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		Errors:   deps.errCh,
	})
	if err != nil {
		deps.errCh <- fmt.Errorf("http server: %w", err)
		return nil
	}
	return server
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func newRetrySweepBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRetrySweep,
		name: "retry sweep",
		start: func(ctx context.Context) error {
			runner, err := retrysweep.NewRunner(retrysweep.RunnerOptions{
				Sweeper:  deps.cfg.Services.RetrySweep,
				Schedule: deps.cfg.Config.RetrySweep.Schedule,
				Logger:   deps.logger,
			})
			if err != nil {
				return fmt.Errorf("create retry sweep runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps.cfg.Services.Reaper == nil {
				return errors.New("reaper service not configured")
			}
			return deps.cfg.Services.Reaper.Run(ctx)
		},
	}
}

func startBackgroundServices(deps *serviceStartupDeps) []backgroundServiceHandle {
	services := []backgroundService{
		newRetrySweepBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	httpServer := startHTTPServerIfEnabled(deps)
	backgrounds := startBackgroundServices(deps)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	shutdown := shutdownConfig{
		quit:        quit,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		logger:      logger,
		backgrounds: backgrounds,
		timeout:     shutdownWaitTimeout,
	}
	if cfg.Services.Calculations != nil {
		shutdown.calculations = cfg.Services.Calculations
	}
	return waitForShutdown(shutdown)
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// calculationWaiter waits for detached calculation runs.
type calculationWaiter interface {
	Wait(ctx context.Context) error
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	quit         <-chan os.Signal
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	calculations calculationWaiter
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
	timeout      time.Duration
}

// waitForShutdown waits for a shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP, waits for the sweep runner, then for detached calculations.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		err := ShutdownHTTPServer(shutdownCtx, cfg.httpServer, cfg.logger)
		cancel()
		if err != nil {
			stopErr = fmt.Errorf("shutdown http server: %w", err)
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.timeout, cfg.logger)
	}

	if cfg.calculations != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		defer cancel()
		if err := cfg.calculations.Wait(waitCtx); err != nil {
			cfg.logger.Warn("timeout waiting for calculations to finish", "error", err)
		} else {
			cfg.logger.Info("calculations drained")
		}
	}

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, timeout time.Duration, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(timeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
