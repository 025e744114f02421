package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/target/renewal-risk-api/internal/bootstrap"
)

func (c *commandContext) databaseConfig() bootstrap.DatabaseConfig {
	return bootstrap.DatabaseConfig{
		DBConfig:    c.Config.Postgres,
		RedisConfig: c.Config.Redis,
		Logger:      c.Logger,
	}
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.databaseConfig())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

// withServices wires the full service graph against the configured database and
// optional latest-score cache.
func withServices(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, bootstrap.ServiceContainer) error,
) error {
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		redisClient := bootstrap.ConnectScoreCache(ctx, cmdCtx.databaseConfig(), cmdCtx.Config.Cache)
		if redisClient != nil {
			defer func() {
				if cerr := redisClient.Close(); cerr != nil {
					cmdCtx.Logger.Warn("redis close failed", "error", cerr)
				}
			}()
		}

		services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
			Config:      &cmdCtx.Config,
			DB:          db,
			RedisClient: redisClient,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := services.Observability.Close(); cerr != nil {
				cmdCtx.Logger.Warn("observability close failed", "error", cerr)
			}
		}()
		return f(ctx, services)
	})
}

func guardRemoteHost(cmdCtx *commandContext, allow bool) error {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) || allow {
		return nil
	}
	return fmt.Errorf(
		"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
		host,
	)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	// docker compose service name
	if h == "postgres" {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}
