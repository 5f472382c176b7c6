package core_test

import (
	"testing"

	"gaslink/internal/core"
)

// The auditor's expected closings are derived purely from customer-movement
// deltas: fulls = opening + delivered - collected, empties = the mirror.
// These tests seed rows that satisfy or violate those identities directly.

func TestDrift_ConsistentRowsPassClean(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	auditor := core.NewDriftAuditor(pool, nil)

	_, err := pool.Exec(ctx, `
		INSERT INTO daily_summaries (summary_date, cylinder_type_id, distributor_id,
			opening_fulls, opening_empties, delivered_qty, collected_empties_qty,
			closing_fulls, closing_empties)
		VALUES
		('2026-03-01', 1, 1, 20, 10, 5, 3, 22, 8),
		('2026-03-02', 1, 1, 22, 8, 0, 0, 22, 8)
	`)
	if err != nil {
		t.Fatalf("Failed to seed summaries: %v", err)
	}

	report, err := auditor.Audit(ctx, 1, "2026-03-01", "2026-03-02")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if report.RowsChecked != 2 {
		t.Errorf("Expected 2 rows checked, got %d", report.RowsChecked)
	}
	if len(report.Mismatches) != 0 {
		t.Errorf("Expected no mismatches, got %v", report.Mismatches)
	}
}

func TestDrift_DetectsHandEditedClosing(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	auditor := core.NewDriftAuditor(pool, nil)

	// Consistent row, then a hand edit pushing closing_fulls from 22 to 30.
	_, err := pool.Exec(ctx, `
		INSERT INTO daily_summaries (summary_date, cylinder_type_id, distributor_id,
			opening_fulls, opening_empties, delivered_qty, collected_empties_qty,
			closing_fulls, closing_empties)
		VALUES ('2026-03-01', 1, 1, 20, 10, 5, 3, 22, 8)
	`)
	if err != nil {
		t.Fatalf("Failed to seed summary: %v", err)
	}
	if _, err := pool.Exec(ctx,
		"UPDATE daily_summaries SET closing_fulls = 30 WHERE summary_date = '2026-03-01'",
	); err != nil {
		t.Fatalf("Failed to hand-edit summary: %v", err)
	}

	report, err := auditor.Audit(ctx, 1, "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("Expected 1 mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.ExpectedClosingFulls != 22 || m.RecordedClosingFulls != 30 {
		t.Errorf("Expected expected=22 recorded=30, got expected=%d recorded=%d",
			m.ExpectedClosingFulls, m.RecordedClosingFulls)
	}
	// Drift is signed: recorded minus expected.
	if m.FullsDrift != 8 {
		t.Errorf("Expected fulls_drift=+8, got %d", m.FullsDrift)
	}
	if m.EmptiesDrift != 0 {
		t.Errorf("Expected empties_drift=0, got %d", m.EmptiesDrift)
	}

	// Editing downward yields a negative drift.
	if _, err := pool.Exec(ctx,
		"UPDATE daily_summaries SET closing_fulls = 17 WHERE summary_date = '2026-03-01'",
	); err != nil {
		t.Fatalf("Failed to hand-edit summary: %v", err)
	}
	report, err = auditor.Audit(ctx, 1, "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(report.Mismatches) != 1 || report.Mismatches[0].FullsDrift != -5 {
		t.Errorf("Expected fulls_drift=-5, got %v", report.Mismatches)
	}
}

func TestDrift_AuditDoesNotMutate(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	auditor := core.NewDriftAuditor(pool, nil)

	_, err := pool.Exec(ctx, `
		INSERT INTO daily_summaries (summary_date, cylinder_type_id, distributor_id,
			opening_fulls, delivered_qty, collected_empties_qty, closing_fulls, closing_empties)
		VALUES ('2026-03-01', 1, 1, 20, 0, 0, 33, 0)
	`)
	if err != nil {
		t.Fatalf("Failed to seed summary: %v", err)
	}

	if _, err := auditor.Audit(ctx, 1, "2026-03-01", "2026-03-01"); err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	var closing int
	if err := pool.QueryRow(ctx,
		"SELECT closing_fulls FROM daily_summaries WHERE summary_date = '2026-03-01'",
	).Scan(&closing); err != nil {
		t.Fatalf("summary query failed: %v", err)
	}
	if closing != 33 {
		t.Errorf("Drift audit mutated the summary: closing_fulls=%d", closing)
	}

	var auditRows int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&auditRows); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if auditRows != 0 {
		t.Errorf("Drift audit is read-only and must not write audit entries, got %d", auditRows)
	}
}

func TestDrift_CandidateCauseAttribution(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	auditor := core.NewDriftAuditor(pool, nil)

	// Fulls drift magnitude (5) matches the row's soft-blocked quantity.
	_, err := pool.Exec(ctx, `
		INSERT INTO daily_summaries (summary_date, cylinder_type_id, distributor_id,
			opening_fulls, opening_empties, delivered_qty, collected_empties_qty,
			soft_blocked_qty, closing_fulls, closing_empties)
		VALUES ('2026-03-01', 1, 1, 20, 0, 0, 0, 5, 15, 0)
	`)
	if err != nil {
		t.Fatalf("Failed to seed summary: %v", err)
	}

	report, err := auditor.Audit(ctx, 1, "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("Expected 1 mismatch, got %d", len(report.Mismatches))
	}
	if len(report.Mismatches[0].CandidateCauses) == 0 {
		t.Error("Expected soft_blocked_qty to be attributed as a candidate cause")
	}
}
