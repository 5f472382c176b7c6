package core_test

import (
	"context"
	"testing"

	"gaslink/internal/core"
)

func TestGapRecovery_BackfillsMissingDates(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	gaps := core.NewGapRecoveryService(pool, summaries, nil, 2)

	// Day 1 has stock movement and a summary; days 2-4 were never calculated.
	if _, err := summaries.RecordSupplierReceipt(ctx, core.SummaryKey{Date: "2026-03-01", CylinderTypeID: 1, DistributorID: 1}, 60, "GRN-1", "tester"); err != nil {
		t.Fatalf("RecordSupplierReceipt failed: %v", err)
	}

	result, err := gaps.RecoverRange(ctx, 1, "2026-03-01", "2026-03-04")
	if err != nil {
		t.Fatalf("RecoverRange failed: %v", err)
	}
	if len(result.MissingDates) != 3 {
		t.Errorf("Expected 3 missing dates, got %d (%v)", len(result.MissingDates), result.MissingDates)
	}
	// Two active cylinder types recover each missing date.
	if result.Filled != 6 {
		t.Errorf("Expected 6 rows filled (3 dates x 2 types), got %d", result.Filled)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Expected no failures, got %v", result.Failures)
	}

	// Carry-forward must hold through the backfilled run.
	rows, err := summaries.GetDailySummary(ctx, "2026-03-04", 1)
	if err != nil {
		t.Fatalf("GetDailySummary failed: %v", err)
	}
	for _, row := range rows {
		if row.CylinderTypeID == 1 {
			if row.OpeningFulls != 60 || row.ClosingFulls != 60 {
				t.Errorf("Expected 60 fulls carried to day 4, got opening=%d closing=%d",
					row.OpeningFulls, row.ClosingFulls)
			}
		}
	}
}

func TestGapRecovery_RerunIsNoOp(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	gaps := core.NewGapRecoveryService(pool, summaries, nil, 2)

	if _, err := gaps.RecoverRange(ctx, 1, "2026-03-01", "2026-03-03"); err != nil {
		t.Fatalf("First RecoverRange failed: %v", err)
	}

	countRows := func() int {
		var n int
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM daily_summaries").Scan(&n); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		return n
	}
	before := countRows()

	second, err := gaps.RecoverRange(ctx, 1, "2026-03-01", "2026-03-03")
	if err != nil {
		t.Fatalf("Second RecoverRange failed: %v", err)
	}
	if len(second.MissingDates) != 0 {
		t.Errorf("Expected no missing dates on rerun, got %v", second.MissingDates)
	}
	if second.Filled != 0 {
		t.Errorf("Expected 0 filled on rerun, got %d", second.Filled)
	}
	if after := countRows(); after != before {
		t.Errorf("Rerun changed row count: %d -> %d", before, after)
	}
}

func TestGapRecovery_SkipsLockedRows(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	gaps := core.NewGapRecoveryService(pool, summaries, nil, 2)

	// Lock day 2 for one cylinder type only; the other type's row is fair game.
	if _, err := summaries.Calculate(ctx, core.SummaryKey{Date: "2026-03-02", CylinderTypeID: 1, DistributorID: 1}, "tester"); err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if _, err := pool.Exec(ctx, "UPDATE daily_summaries SET status = 'locked' WHERE summary_date = '2026-03-02'"); err != nil {
		t.Fatalf("Failed to lock row: %v", err)
	}

	result, err := gaps.RecoverRange(ctx, 1, "2026-03-01", "2026-03-03")
	if err != nil {
		t.Fatalf("RecoverRange failed: %v", err)
	}
	// Day 2 already has a row so only days 1 and 3 are missing; locked rows
	// never surface as failures.
	if len(result.MissingDates) != 2 {
		t.Errorf("Expected 2 missing dates, got %v", result.MissingDates)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Expected no failures, got %v", result.Failures)
	}

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM daily_summaries WHERE summary_date = '2026-03-02' AND cylinder_type_id = 1").Scan(&status); err != nil {
		t.Fatalf("status query failed: %v", err)
	}
	if status != "locked" {
		t.Errorf("Locked row must stay locked, got %q", status)
	}
}

func TestGapRecovery_ValidatesRange(t *testing.T) {
	pool, _ := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	gaps := core.NewGapRecoveryService(pool, summaries, nil, 2)
	ctx := context.Background()

	if _, err := gaps.RecoverRange(ctx, 1, "2026-03-05", "2026-03-01"); err == nil {
		t.Error("Expected error for inverted range, got nil")
	}
	if _, err := gaps.RecoverRange(ctx, 0, "2026-03-01", "2026-03-05"); err == nil {
		t.Error("Expected error for missing distributor, got nil")
	}
	if _, err := gaps.RecoverRange(ctx, 1, "bad-date", "2026-03-05"); err == nil {
		t.Error("Expected error for malformed date, got nil")
	}
}
