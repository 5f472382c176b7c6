package main

import (
	"context"
	"net/http"
	"os"
	"strconv"

	webAdapter "gaslink/internal/adapters/web"
	"gaslink/internal/app"
	"gaslink/internal/core"
	"gaslink/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)
	adjustments := core.NewAdjustmentService(pool)
	audit := core.NewAuditService(pool)
	operators := core.NewOperatorService(pool)
	grace := core.NewGracePolicy(pool, logger)

	gapWorkers := 4
	if v := os.Getenv("GAP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			logger.Fatalf("invalid GAP_WORKERS %q", v)
		}
		gapWorkers = n
	}
	gaps := core.NewGapRecoveryService(pool, summaries, logger, gapWorkers)
	drift := core.NewDriftAuditor(pool, logger)

	svc := app.NewAppService(pool, summaries, ledger, adjustments, audit, operators, grace, gaps, drift)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable not set")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, logger, allowedOrigins, jwtSecret)

	logger.WithField("port", port).Info("server starting")
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatalf("server: %v", err)
	}
}
