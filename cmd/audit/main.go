// audit runs a read-only drift check over a distributor's recorded daily
// summaries and prints the report as JSON. Exit code 1 means mismatches
// were found, so it can gate a nightly cron alert.
//
// Usage: go run ./cmd/audit -distributor 1 -from 2026-03-01 -to 2026-03-31
package main

import (
	"context"
	"encoding/json"
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

	auditor := core.NewDriftAuditor(pool, logger)
	report, err := auditor.Audit(ctx, *distributorID, *from, *to)
	if err != nil {
		logger.Fatalf("drift audit: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatalf("encode report: %v", err)
	}

	if len(report.Mismatches) > 0 {
		os.Exit(1)
	}
}
