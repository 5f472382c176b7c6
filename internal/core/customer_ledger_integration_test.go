package core_test

import (
	"testing"

	"gaslink/internal/core"
)

func TestLedger_DeliveryCreatesPendingReturns(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)

	balances, err := ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          "2026-03-01",
		CustomerID:    2,
		DistributorID: 1,
		Lines:         []core.DeliveryLine{{CylinderTypeID: 1, DeliveredQty: 10, CollectedEmptiesQty: 4}},
		Actor:         "driver",
	}, summaries)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("Expected 1 balance, got %d", len(balances))
	}
	// Net 6 delivered beyond collections: all of it becomes owed empties.
	if balances[0].PendingReturns != 6 {
		t.Errorf("Expected pending_returns=6, got %d", balances[0].PendingReturns)
	}
	if balances[0].WithCustomerQty != 0 {
		t.Errorf("Expected with_customer_qty=0, got %d", balances[0].WithCustomerQty)
	}
}

func TestLedger_CollectionAbsorbsBeforeBalance(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)

	// Seed a balance where the customer holds 8 cylinders.
	_, err := pool.Exec(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id, with_customer_qty)
		VALUES (2, 1, 8)
	`)
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	// Collect 5 more than delivered: with_customer absorbs the shortfall.
	balances, err := ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          "2026-03-01",
		CustomerID:    2,
		DistributorID: 1,
		Lines:         []core.DeliveryLine{{CylinderTypeID: 1, DeliveredQty: 2, CollectedEmptiesQty: 7}},
		Actor:         "driver",
	}, summaries)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}
	if balances[0].WithCustomerQty != 3 {
		t.Errorf("Expected with_customer_qty=3 (8-5), got %d", balances[0].WithCustomerQty)
	}
	if balances[0].PendingReturns != 0 {
		t.Errorf("Expected pending_returns=0, got %d", balances[0].PendingReturns)
	}
}

func TestLedger_BatchIsAtomic(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)

	// Second line references a cylinder type that does not exist, so the
	// whole batch must roll back including the valid first line.
	_, err := ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          "2026-03-01",
		CustomerID:    2,
		DistributorID: 1,
		Lines: []core.DeliveryLine{
			{CylinderTypeID: 1, DeliveredQty: 5},
			{CylinderTypeID: 99, DeliveredQty: 5},
		},
		Actor: "driver",
	}, summaries)
	if err == nil {
		t.Fatal("Expected batch with invalid cylinder type to fail, got nil")
	}

	var confs, bals int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM delivery_confirmations").Scan(&confs); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM customer_balances").Scan(&bals); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if confs != 0 || bals != 0 {
		t.Errorf("Expected full rollback, got %d confirmations and %d balances", confs, bals)
	}
}

func TestLedger_DeliveryRefreshesSummary(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)

	if _, err := summaries.RecordSupplierReceipt(ctx, core.SummaryKey{Date: "2026-03-01", CylinderTypeID: 1, DistributorID: 1}, 50, "GRN-1", "tester"); err != nil {
		t.Fatalf("RecordSupplierReceipt failed: %v", err)
	}

	_, err := ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          "2026-03-01",
		CustomerID:    2,
		DistributorID: 1,
		Lines:         []core.DeliveryLine{{CylinderTypeID: 1, DeliveredQty: 12, CollectedEmptiesQty: 9}},
		Actor:         "driver",
	}, summaries)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}

	rows, err := summaries.GetDailySummary(ctx, "2026-03-01", 1)
	if err != nil {
		t.Fatalf("GetDailySummary failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 summary row, got %d", len(rows))
	}
	if rows[0].DeliveredQty != 12 || rows[0].CollectedEmptiesQty != 9 {
		t.Errorf("Expected delivered=12 collected=9 on summary, got %d/%d",
			rows[0].DeliveredQty, rows[0].CollectedEmptiesQty)
	}
	if rows[0].ClosingFulls != 38 {
		t.Errorf("Expected closing_fulls=38 (50-12), got %d", rows[0].ClosingFulls)
	}
	if rows[0].ClosingEmpties != 9 {
		t.Errorf("Expected closing_empties=9, got %d", rows[0].ClosingEmpties)
	}
}

func TestLedger_DeliveryMarksOrderDelivered(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	summaries := core.NewSummaryService(pool)
	ledger := core.NewCustomerLedgerService(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO orders (id, distributor_id, customer_id, delivery_date, status)
		VALUES (1, 1, 2, '2026-03-01', 'pending');
		INSERT INTO order_items (order_id, cylinder_type_id, quantity) VALUES (1, 1, 6);
		SELECT setval('orders_id_seq', 1);
	`)
	if err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}

	orderID := 1
	_, err = ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          "2026-03-01",
		OrderID:       &orderID,
		CustomerID:    2,
		DistributorID: 1,
		Lines:         []core.DeliveryLine{{CylinderTypeID: 1, DeliveredQty: 6, CollectedEmptiesQty: 6}},
		Actor:         "driver",
	}, summaries)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM orders WHERE id = 1").Scan(&status); err != nil {
		t.Fatalf("order query failed: %v", err)
	}
	if status != "delivered" {
		t.Errorf("Expected order status 'delivered', got %q", status)
	}

	// Once delivered, the order no longer counts as soft-blocked.
	rows, err := summaries.GetDailySummary(ctx, "2026-03-01", 1)
	if err != nil {
		t.Fatalf("GetDailySummary failed: %v", err)
	}
	if rows[0].SoftBlockedQty != 0 {
		t.Errorf("Expected soft_blocked_qty=0 after delivery, got %d", rows[0].SoftBlockedQty)
	}
}

func TestLedger_ReturnShortfall(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewCustomerLedgerService(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id, pending_returns)
		VALUES (2, 1, 10)
	`)
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	// Confirming 6 of 10 pending: remainder stays pending, nothing missing.
	b, err := ledger.ConfirmReturn(ctx, 2, 1, 6, "clerk", nil)
	if err != nil {
		t.Fatalf("ConfirmReturn failed: %v", err)
	}
	if b.PendingReturns != 4 || b.MissingQty != 0 {
		t.Errorf("Expected pending=4 missing=0, got pending=%d missing=%d", b.PendingReturns, b.MissingQty)
	}

	// Confirming 9 against 4 pending: pending floors at 0, overage of 5 is missing.
	b, err = ledger.ConfirmReturn(ctx, 2, 1, 9, "clerk", nil)
	if err != nil {
		t.Fatalf("ConfirmReturn failed: %v", err)
	}
	if b.PendingReturns != 0 || b.MissingQty != 5 {
		t.Errorf("Expected pending=0 missing=5, got pending=%d missing=%d", b.PendingReturns, b.MissingQty)
	}
}

func TestLedger_ReturnRequiresExistingBalance(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewCustomerLedgerService(pool)

	_, err := ledger.ConfirmReturn(ctx, 2, 1, 3, "clerk", nil)
	if err == nil {
		t.Fatal("Expected error confirming a return for a customer with no balance, got nil")
	}
}

func TestLedger_OverrideBalance(t *testing.T) {
	pool, ctx := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewCustomerLedgerService(pool)
	audit := core.NewAuditService(pool)

	b, err := ledger.OverrideBalance(ctx, 2, 1,
		core.BalanceValues{WithCustomerQty: 5, PendingReturns: 2, MissingQty: 1},
		"physical stocktake correction", "supervisor")
	if err != nil {
		t.Fatalf("OverrideBalance failed: %v", err)
	}
	if b.WithCustomerQty != 5 || b.PendingReturns != 2 || b.MissingQty != 1 {
		t.Errorf("Override not applied: got %+v", b)
	}

	// Negative values, missing reason, and the system actor are all rejected.
	if _, err := ledger.OverrideBalance(ctx, 2, 1, core.BalanceValues{WithCustomerQty: -1}, "reason", "supervisor"); err == nil {
		t.Error("Expected error for negative override value")
	}
	if _, err := ledger.OverrideBalance(ctx, 2, 1, core.BalanceValues{}, "", "supervisor"); err == nil {
		t.Error("Expected error for empty reason")
	}
	if _, err := ledger.OverrideBalance(ctx, 2, 1, core.BalanceValues{}, "reason", "system"); err == nil {
		t.Error("Expected error for system actor on manual override")
	}

	entries, err := audit.GetAuditHistory(ctx, "customer:2:type:1")
	if err != nil {
		t.Fatalf("GetAuditHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected exactly 1 audit entry (rejections write nothing), got %d", len(entries))
	}
	if entries[0].Action != core.ActionBalanceOverride {
		t.Errorf("Expected balance_override action, got %s", entries[0].Action)
	}
}
