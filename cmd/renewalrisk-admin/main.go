package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/bootstrap"
	"github.com/target/renewal-risk-api/internal/devseed"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
	defaultListLimit        = 50
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"seed": {
			name:        "seed",
			description: "Run migrations and seed the demo property",
			run:         runSeed,
		},
		"calculate": {
			name:        "calculate",
			description: "Score every active resident of a property and wait for the job",
			run:         runCalculate,
		},
		"sweep": {
			name:        "sweep",
			description: "Run one retry sweep over due webhook deliveries",
			run:         runSweep,
		},
		"deliveries": {
			name:        "deliveries",
			description: "List webhook deliveries, newest first",
			run:         runListDeliveries,
		},
		"dlq": {
			name:        "dlq",
			description: "List dead-lettered webhook deliveries",
			run:         runListDeadLetters,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: renewalrisk-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type seedOptions struct {
	Timeout     time.Duration
	AsOf        time.Time
	AllowRemote bool
}

type calculateOptions struct {
	Timeout    time.Duration
	PropertyID string
	AsOfDate   string
}

type sweepOptions struct {
	Timeout time.Duration
}

type listDeliveriesOptions struct {
	Timeout time.Duration
	Status  *model.DeliveryStatus
	Limit   int
}

type listDeadLettersOptions struct {
	Timeout time.Duration
	Limit   int
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseSeedFlags(args []string) (seedOptions, error) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := seedOptions{}
	var asOf string
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration for migrations and seeding")
	fs.StringVar(&asOf, "as-of", "", "Reference date (YYYY-MM-DD) for lease and payment dates; defaults to today")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow seeding a database that is not on this machine")

	if err := fs.Parse(args); err != nil {
		return seedOptions{}, err
	}
	if opts.Timeout <= 0 {
		return seedOptions{}, errors.New("--timeout must be greater than zero")
	}
	if strings.TrimSpace(asOf) != "" {
		t, err := model.ParseAsOfDate(asOf)
		if err != nil {
			return seedOptions{}, fmt.Errorf("--as-of: %w", err)
		}
		opts.AsOf = t
	}
	return opts, nil
}

func parseCalculateFlags(args []string) (calculateOptions, error) {
	fs := flag.NewFlagSet("calculate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := calculateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration to wait for the job")
	fs.StringVar(&opts.PropertyID, "property", "", "Property ID to score (required)")
	fs.StringVar(&opts.AsOfDate, "as-of", "", "As-of date (YYYY-MM-DD); defaults to today in UTC")

	if err := fs.Parse(args); err != nil {
		return calculateOptions{}, err
	}
	opts.PropertyID = strings.TrimSpace(opts.PropertyID)
	if opts.PropertyID == "" {
		return calculateOptions{}, errors.New("--property is required")
	}
	if opts.Timeout <= 0 {
		return calculateOptions{}, errors.New("--timeout must be greater than zero")
	}
	if strings.TrimSpace(opts.AsOfDate) == "" {
		opts.AsOfDate = time.Now().UTC().Format(time.DateOnly)
	}
	return opts, nil
}

func parseSweepFlags(args []string) (sweepOptions, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := sweepOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the sweep")

	if err := fs.Parse(args); err != nil {
		return sweepOptions{}, err
	}
	if opts.Timeout <= 0 {
		return sweepOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListDeliveriesFlags(args []string) (listDeliveriesOptions, error) {
	fs := flag.NewFlagSet("deliveries", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listDeliveriesOptions{}
	var status string
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Query timeout")
	fs.StringVar(&status, "status", "", "Filter by status (pending, failed, delivered, dlq)")
	fs.IntVar(&opts.Limit, "limit", defaultListLimit, "Maximum rows to print")

	if err := fs.Parse(args); err != nil {
		return listDeliveriesOptions{}, err
	}
	if opts.Limit <= 0 {
		return listDeliveriesOptions{}, errors.New("--limit must be greater than zero")
	}
	if status = strings.TrimSpace(status); status != "" {
		s := model.DeliveryStatus(strings.ToLower(status))
		if !s.Valid() {
			return listDeliveriesOptions{}, fmt.Errorf("--status %q is not a delivery status", status)
		}
		opts.Status = &s
	}
	return opts, nil
}

func parseListDeadLettersFlags(args []string) (listDeadLettersOptions, error) {
	fs := flag.NewFlagSet("dlq", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listDeadLettersOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Query timeout")
	fs.IntVar(&opts.Limit, "limit", defaultListLimit, "Maximum rows to print")

	if err := fs.Parse(args); err != nil {
		return listDeadLettersOptions{}, err
	}
	if opts.Limit <= 0 {
		return listDeadLettersOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
