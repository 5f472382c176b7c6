// backfill runs gap recovery for one distributor over a date range, then
// sweeps expired grace-period balances. Intended for cron or manual runs
// after an outage leaves summary dates missing.
//
// Usage: go run ./cmd/backfill -distributor 1 -from 2026-03-01 -to 2026-03-31
package main

import (
	"context"
	"flag"
	"os"

	"gaslink/internal/core"
	"gaslink/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	distributorID := flag.Int("distributor", 0, "distributor ID (required)")
	from := flag.String("from", "", "range start, YYYY-MM-DD (required)")
	to := flag.String("to", "", "range end, YYYY-MM-DD (required)")
	workers := flag.Int("workers", 4, "concurrent cylinder-type workers")
	skipGrace := flag.Bool("skip-grace", false, "skip the grace expiry sweep")
	flag.Parse()

	logger := logrus.New()

	if *distributorID <= 0 || *from == "" || *to == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	gaps := core.NewGapRecoveryService(pool, summaries, logger, *workers)

	result, err := gaps.RecoverRange(ctx, *distributorID, *from, *to)
	if err != nil {
		logger.Fatalf("gap recovery: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"missing_dates": len(result.MissingDates),
		"filled":        result.Filled,
		"failures":      len(result.Failures),
	}).Info("backfill finished")
	for _, f := range result.Failures {
		logger.WithFields(logrus.Fields{
			"date":             f.Date,
			"cylinder_type_id": f.CylinderTypeID,
		}).Warn(f.Error)
	}

	if !*skipGrace {
		grace := core.NewGracePolicy(pool, logger)
		escalated, err := grace.SweepExpired(ctx, *distributorID)
		if err != nil {
			logger.Fatalf("grace sweep: %v", err)
		}
		logger.WithField("escalated", escalated).Info("grace sweep finished")
	}

	if len(result.Failures) > 0 {
		os.Exit(1)
	}
}
