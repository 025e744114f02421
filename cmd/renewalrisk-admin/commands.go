package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/target/renewal-risk-api/internal/bootstrap"
	"github.com/target/renewal-risk-api/internal/devseed"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.InfoContext(ctx, "running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "migrations completed successfully")
		return nil
	})
}

func runSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseSeedFlags(args)
	if err != nil {
		return err
	}
	if guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote); guardErr != nil {
		return guardErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.InfoContext(ctx, "ensuring database migrations are current")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		ds, seedErr := devseed.Seed(ctx, db, devseed.Options{Reference: opts.AsOf, Logger: cmdCtx.Logger})
		if seedErr != nil {
			return fmt.Errorf("seed data: %w", seedErr)
		}
		return printSeedSummary(cmdCtx.Out, ds)
	})
}

func runCalculate(cmdCtx *commandContext, args []string) error {
	opts, err := parseCalculateFlags(args)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, services bootstrap.ServiceContainer) error {
		calc := services.Calculations
		job, startErr := calc.StartCalculation(ctx, opts.PropertyID, opts.AsOfDate)
		if startErr != nil {
			return startErr
		}
		if waitErr := calc.Wait(ctx); waitErr != nil {
			return fmt.Errorf("wait for job %s: %w", job.ID, waitErr)
		}

		job, err = calc.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if job.Status != model.CalculationJobStatusCompleted {
			if printErr := printJob(cmdCtx.Out, job); printErr != nil {
				return printErr
			}
			return fmt.Errorf("calculation job %s ended %s", job.ID, job.Status)
		}

		scores, scoresErr := calc.LatestScores(ctx, opts.PropertyID)
		if scoresErr != nil {
			return scoresErr
		}
		if printErr := printJob(cmdCtx.Out, job); printErr != nil {
			return printErr
		}
		return printScores(cmdCtx.Out, scores)
	})
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, services bootstrap.ServiceContainer) error {
		n, sweepErr := services.RetrySweep.ProcessRetries(ctx)
		if sweepErr != nil {
			return fmt.Errorf("retry sweep: %w", sweepErr)
		}
		return writef(cmdCtx.Out, "Processed %d due deliveries\n", n)
	})
}

func runListDeliveries(cmdCtx *commandContext, args []string) error {
	opts, err := parseListDeliveriesFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, services bootstrap.ServiceContainer) error {
		rows, listErr := services.Deliveries.List(ctx, model.ListDeliveriesOptions{Status: opts.Status, Limit: opts.Limit})
		if listErr != nil {
			return fmt.Errorf("list deliveries: %w", listErr)
		}
		return printDeliveries(cmdCtx.Out, rows)
	})
}

func runListDeadLetters(cmdCtx *commandContext, args []string) error {
	opts, err := parseListDeadLettersFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, services bootstrap.ServiceContainer) error {
		rows, listErr := services.DeadLetters.List(ctx, opts.Limit)
		if listErr != nil {
			return fmt.Errorf("list dead letters: %w", listErr)
		}
		return printDeadLetters(cmdCtx.Out, rows)
	})
}

func printSeedSummary(w io.Writer, ds devseed.Dataset) error {
	if err := writef(w, "Seeded property %s (%s)\n", ds.Property.Name, ds.Property.ID); err != nil {
		return err
	}
	t := newTable(w)
	if err := writeln(t, "Resident\tName\tUnit\tLease Ends"); err != nil {
		return fmt.Errorf("write seed header: %w", err)
	}
	units := make(map[string]string, len(ds.Units))
	for _, u := range ds.Units {
		units[u.ID] = u.Number
	}
	for i, r := range ds.Residents {
		lease := ds.Leases[i]
		if err := writef(t, "%s\t%s\t%s\t%s\n",
			r.ID, r.DisplayName(), units[r.UnitID], lease.LeaseEndDate.Format(time.DateOnly)); err != nil {
			return fmt.Errorf("write seed row: %w", err)
		}
	}
	return t.Flush()
}

func printJob(w io.Writer, job *model.CalculationJob) error {
	if err := writef(w, "Job %s: %s (property %s, as of %s)\n",
		job.ID, job.Status, job.PropertyID, job.AsOfDate); err != nil {
		return err
	}
	if job.Error != nil {
		return writef(w, "Error: %s\n", *job.Error)
	}
	return nil
}

func printScores(w io.Writer, scores []model.ResidentRisk) error {
	if len(scores) == 0 {
		return writeln(w, "No residents flagged.")
	}
	t := newTable(w)
	if err := writeln(t, "Resident\tName\tUnit\tScore\tTier\tDays\tDelinquent\tNo Offer\tAbove Market"); err != nil {
		return fmt.Errorf("write scores header: %w", err)
	}
	for _, s := range scores {
		if err := writef(t, "%s\t%s\t%s\t%d\t%s\t%d\t%t\t%t\t%t\n",
			s.ResidentID, s.Name, s.UnitID, s.RiskScore, s.RiskTier, s.DaysToExpiry,
			s.Signals.PaymentHistoryDelinquent, s.Signals.NoRenewalOfferYet, s.Signals.RentGrowthAboveMarket,
		); err != nil {
			return fmt.Errorf("write score row: %w", err)
		}
	}
	return t.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printDeliveries(w io.Writer, rows []*model.WebhookDelivery) error {
	if len(rows) == 0 {
		return writeln(w, "No deliveries found.")
	}
	t := newTable(w)
	if err := writeln(t, "Event\tResident\tStatus\tAttempts\tLast Attempt\tNext Retry"); err != nil {
		return fmt.Errorf("write deliveries header: %w", err)
	}
	for _, d := range rows {
		if err := writef(t, "%s\t%s\t%s\t%d\t%s\t%s\n",
			d.EventID, d.ResidentID, d.Status, d.AttemptCount,
			formatTime(d.LastAttemptAt), formatTime(d.NextRetryAt),
		); err != nil {
			return fmt.Errorf("write delivery row: %w", err)
		}
	}
	return t.Flush()
}

func printDeadLetters(w io.Writer, rows []*model.DeadLetterEntry) error {
	if len(rows) == 0 {
		return writeln(w, "Dead-letter queue is empty.")
	}
	t := newTable(w)
	if err := writeln(t, "Event\tDelivery\tReason\tCreated"); err != nil {
		return fmt.Errorf("write dlq header: %w", err)
	}
	for _, e := range rows {
		created := e.CreatedAt
		if err := writef(t, "%s\t%s\t%s\t%s\n", e.EventID, e.DeliveryID, e.Reason, formatTime(&created)); err != nil {
			return fmt.Errorf("write dlq row: %w", err)
		}
	}
	return t.Flush()
}
