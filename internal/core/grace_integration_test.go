package core_test

import (
	"testing"

	"gaslink/internal/core"
)

func TestGrace_SweepEscalatesStalePending(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	grace := core.NewGracePolicy(pool, nil)

	// Customer 1 has grace enabled with a 3 day window; the balance was last
	// touched 5 days ago with 4 pending returns.
	_, err := pool.Exec(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns, last_updated)
		VALUES (1, 1, 4, NOW() - INTERVAL '5 days')
	`)
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	escalated, err := grace.SweepExpired(ctx, 1)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if escalated != 1 {
		t.Errorf("Expected 1 balance escalated, got %d", escalated)
	}

	var pending, missing int
	err = pool.QueryRow(ctx,
		"SELECT pending_returns, missing_qty FROM customer_balances WHERE customer_id = 1 AND cylinder_type_id = 1",
	).Scan(&pending, &missing)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if pending != 0 || missing != 4 {
		t.Errorf("Expected pending=0 missing=4 after expiry, got pending=%d missing=%d", pending, missing)
	}

	// The escalation is audited under the system actor.
	audit := core.NewAuditService(pool)
	entries, err := audit.GetAuditHistory(ctx, "customer:1:type:1")
	if err != nil {
		t.Fatalf("GetAuditHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Action != core.ActionGraceExpiry {
		t.Errorf("Expected grace_expiry action, got %s", entries[0].Action)
	}
	if entries[0].Actor != "system" {
		t.Errorf("Expected actor 'system', got %q", entries[0].Actor)
	}
}

func TestGrace_SweepSkipsDisabledAndFresh(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	grace := core.NewGracePolicy(pool, nil)

	_, err := pool.Exec(ctx, `
		-- Customer 2 has grace disabled; staleness does not matter.
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns, last_updated)
		VALUES (2, 1, 7, NOW() - INTERVAL '30 days');
		-- Customer 1 has grace enabled but the balance is inside the window.
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns, last_updated)
		VALUES (1, 2, 3, NOW() - INTERVAL '1 day');
	`)
	if err != nil {
		t.Fatalf("Failed to seed balances: %v", err)
	}

	escalated, err := grace.SweepExpired(ctx, 1)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if escalated != 0 {
		t.Errorf("Expected no escalations, got %d", escalated)
	}

	var missing int
	if err := pool.QueryRow(ctx, "SELECT COALESCE(SUM(missing_qty), 0) FROM customer_balances").Scan(&missing); err != nil {
		t.Fatalf("sum query failed: %v", err)
	}
	if missing != 0 {
		t.Errorf("Expected missing_qty untouched, got sum %d", missing)
	}
}

func TestGrace_ReturnConfirmationTriggersExpiry(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewCustomerLedgerService(pool)
	grace := core.NewGracePolicy(pool, nil)

	// 10 pending, stale for 5 days against a 3 day window. A return of 6
	// settles 6, and the reactive grace check escalates the 4 that remain.
	_, err := pool.Exec(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns, last_updated)
		VALUES (1, 1, 10, NOW() - INTERVAL '5 days')
	`)
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	b, err := ledger.ConfirmReturn(ctx, 1, 1, 6, "clerk", grace)
	if err != nil {
		t.Fatalf("ConfirmReturn failed: %v", err)
	}
	if b.PendingReturns != 0 {
		t.Errorf("Expected pending_returns=0 after reactive expiry, got %d", b.PendingReturns)
	}
	if b.MissingQty != 4 {
		t.Errorf("Expected missing_qty=4, got %d", b.MissingQty)
	}

	audit := core.NewAuditService(pool)
	entries, err := audit.GetAuditHistory(ctx, "customer:1:type:1")
	if err != nil {
		t.Fatalf("GetAuditHistory failed: %v", err)
	}
	var sawSystemExpiry bool
	for _, e := range entries {
		if e.Action == core.ActionGraceExpiry && e.Actor == "system" {
			sawSystemExpiry = true
		}
	}
	if !sawSystemExpiry {
		t.Error("Expected a grace_expiry audit entry with actor 'system'")
	}
}

func TestGrace_FreshBalanceNotEscalatedOnReturn(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewCustomerLedgerService(pool)
	grace := core.NewGracePolicy(pool, nil)

	_, err := pool.Exec(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns, last_updated)
		VALUES (1, 1, 10, NOW() - INTERVAL '1 day')
	`)
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	b, err := ledger.ConfirmReturn(ctx, 1, 1, 6, "clerk", grace)
	if err != nil {
		t.Fatalf("ConfirmReturn failed: %v", err)
	}
	if b.PendingReturns != 4 || b.MissingQty != 0 {
		t.Errorf("Expected pending=4 missing=0 inside the grace window, got pending=%d missing=%d",
			b.PendingReturns, b.MissingQty)
	}
}
