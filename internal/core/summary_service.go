package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SummaryService derives and maintains the depot-level daily balance sheet.
// Each (date, cylinder type, distributor) combination has exactly one row;
// opening balances carry forward from the prior date's closing balances.
type SummaryService interface {
	// Calculate recomputes one daily summary from its sources and upserts it.
	// A locked row is rejected with ErrSummaryLocked and left untouched.
	Calculate(ctx context.Context, key SummaryKey, actor string) (*DailySummary, error)

	// CalculateInTx is Calculate scoped to a caller-provided transaction.
	// Used by the customer ledger to keep summary refreshes atomic with
	// delivery confirmations.
	CalculateInTx(ctx context.Context, tx pgx.Tx, key SummaryKey, actor string) (*DailySummary, error)

	// RecordSupplierReceipt appends an inbound stock event and recomputes the
	// day's summary in the same transaction.
	RecordSupplierReceipt(ctx context.Context, key SummaryKey, quantity int, reference, actor string) (*DailySummary, error)

	// RecordSupplierReturn appends an outbound stock event (empties picked up
	// by the supplier) and recomputes the day's summary in the same transaction.
	RecordSupplierReturn(ctx context.Context, key SummaryKey, quantity int, reference, actor string) (*DailySummary, error)

	// LockSummary marks every summary row on a date for a distributor as
	// locked (period close). Returns the number of rows locked.
	LockSummary(ctx context.Context, date string, distributorID int, actor string) (int, error)

	// UnlockSummary reverts locked rows on a date to calculated so they can
	// be recomputed. Manual operator action, always audited.
	UnlockSummary(ctx context.Context, date string, distributorID int, actor string) (int, error)

	// GetDailySummary returns all summary rows for a date and distributor.
	GetDailySummary(ctx context.Context, date string, distributorID int) ([]DailySummary, error)

	// GetUnaccountedSummary returns the logged shrinkage per cylinder type
	// for a date and distributor.
	GetUnaccountedSummary(ctx context.Context, date string, distributorID int) ([]UnaccountedLine, error)
}

// UnaccountedLine reports logged shrinkage for one cylinder type on one date.
type UnaccountedLine struct {
	CylinderTypeID       int    `json:"cylinder_type_id"`
	CylinderTypeName     string `json:"cylinder_type_name"`
	CustomerUnaccounted  int    `json:"customer_unaccounted"`
	InventoryUnaccounted int    `json:"inventory_unaccounted"`
}

type summaryService struct {
	pool *pgxpool.Pool
}

func NewSummaryService(pool *pgxpool.Pool) SummaryService {
	return &summaryService{pool: pool}
}

func (s *summaryService) Calculate(ctx context.Context, key SummaryKey, actor string) (*DailySummary, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	summary, err := s.CalculateInTx(ctx, tx, key, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit summary %s: %w", key, err)
	}
	return summary, nil
}

// CalculateInTx recomputes the summary for key from the source tables:
// prior-day closings become openings (zero when no prior row exists),
// inbound/outbound/delivery movements are summed for the date, soft-blocked
// quantity is summed from undelivered orders, previously logged unaccounted
// quantities are preserved, and the clamped closing balances are upserted.
func (s *summaryService) CalculateInTx(ctx context.Context, tx pgx.Tx, key SummaryKey, actor string) (*DailySummary, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	// Existing row: lock it, reject locked status, preserve logged shrinkage.
	var status SummaryStatus = SummaryCalculated
	var in SummaryInputs
	err := tx.QueryRow(ctx, `
		SELECT status, customer_unaccounted, inventory_unaccounted
		FROM daily_summaries
		WHERE summary_date = $1 AND cylinder_type_id = $2 AND distributor_id = $3
		FOR UPDATE
	`, key.Date, key.CylinderTypeID, key.DistributorID).Scan(&status, &in.CustomerUnaccounted, &in.InventoryUnaccounted)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to inspect summary %s: %w", key, err)
	}
	if status == SummaryLocked {
		return nil, fmt.Errorf("summary %s: %w", key, ErrSummaryLocked)
	}

	// Opening balances carry forward from the most recent prior date.
	err = tx.QueryRow(ctx, `
		SELECT closing_fulls, closing_empties
		FROM daily_summaries
		WHERE cylinder_type_id = $1 AND distributor_id = $2 AND summary_date < $3
		ORDER BY summary_date DESC
		LIMIT 1
	`, key.CylinderTypeID, key.DistributorID, key.Date).Scan(&in.OpeningFulls, &in.OpeningEmpties)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to fetch prior closing balances for %s: %w", key, err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM supplier_receipts
		WHERE distributor_id = $1 AND cylinder_type_id = $2 AND receipt_date = $3
	`, key.DistributorID, key.CylinderTypeID, key.Date).Scan(&in.InboundQty)
	if err != nil {
		return nil, fmt.Errorf("failed to sum inbound receipts for %s: %w", key, err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM supplier_returns
		WHERE distributor_id = $1 AND cylinder_type_id = $2 AND return_date = $3
	`, key.DistributorID, key.CylinderTypeID, key.Date).Scan(&in.OutboundQty)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outbound returns for %s: %w", key, err)
	}

	// Soft-blocked stock: reserved by orders due that day and not yet
	// delivered. Informational only, never part of the closing formula.
	var softBlocked int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.distributor_id = $1
		  AND oi.cylinder_type_id = $2
		  AND o.delivery_date = $3
		  AND o.status IN ('pending', 'processing')
	`, key.DistributorID, key.CylinderTypeID, key.Date).Scan(&softBlocked)
	if err != nil {
		return nil, fmt.Errorf("failed to sum soft-blocked quantity for %s: %w", key, err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(delivered_qty), 0), COALESCE(SUM(collected_empties_qty), 0)
		FROM delivery_confirmations
		WHERE distributor_id = $1 AND cylinder_type_id = $2 AND delivery_date = $3
	`, key.DistributorID, key.CylinderTypeID, key.Date).Scan(&in.DeliveredQty, &in.CollectedEmptiesQty)
	if err != nil {
		return nil, fmt.Errorf("failed to sum delivery movements for %s: %w", key, err)
	}

	summary := &DailySummary{
		SummaryDate:          key.Date,
		CylinderTypeID:       key.CylinderTypeID,
		DistributorID:        key.DistributorID,
		OpeningFulls:         in.OpeningFulls,
		OpeningEmpties:       in.OpeningEmpties,
		InboundQty:           in.InboundQty,
		OutboundQty:          in.OutboundQty,
		SoftBlockedQty:       softBlocked,
		DeliveredQty:         in.DeliveredQty,
		CollectedEmptiesQty:  in.CollectedEmptiesQty,
		CustomerUnaccounted:  in.CustomerUnaccounted,
		InventoryUnaccounted: in.InventoryUnaccounted,
		ClosingFulls:         in.ClosingFulls(),
		ClosingEmpties:       in.ClosingEmpties(),
		Status:               status,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO daily_summaries (
			summary_date, cylinder_type_id, distributor_id,
			opening_fulls, opening_empties, inbound_qty, outbound_qty,
			soft_blocked_qty, delivered_qty, collected_empties_qty,
			customer_unaccounted, inventory_unaccounted,
			closing_fulls, closing_empties, status, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (summary_date, cylinder_type_id, distributor_id) DO UPDATE SET
			opening_fulls = EXCLUDED.opening_fulls,
			opening_empties = EXCLUDED.opening_empties,
			inbound_qty = EXCLUDED.inbound_qty,
			outbound_qty = EXCLUDED.outbound_qty,
			soft_blocked_qty = EXCLUDED.soft_blocked_qty,
			delivered_qty = EXCLUDED.delivered_qty,
			collected_empties_qty = EXCLUDED.collected_empties_qty,
			closing_fulls = EXCLUDED.closing_fulls,
			closing_empties = EXCLUDED.closing_empties,
			updated_at = NOW()
		RETURNING id, updated_at
	`, key.Date, key.CylinderTypeID, key.DistributorID,
		summary.OpeningFulls, summary.OpeningEmpties, summary.InboundQty, summary.OutboundQty,
		summary.SoftBlockedQty, summary.DeliveredQty, summary.CollectedEmptiesQty,
		summary.CustomerUnaccounted, summary.InventoryUnaccounted,
		summary.ClosingFulls, summary.ClosingEmpties, string(status),
	).Scan(&summary.ID, &summary.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert summary %s: %w", key, err)
	}

	err = appendAuditTx(ctx, tx, ActionSummaryCalculated, "daily_summary", summaryEntityID(key), map[string]any{
		"opening_fulls":   summary.OpeningFulls,
		"opening_empties": summary.OpeningEmpties,
		"closing_fulls":   summary.ClosingFulls,
		"closing_empties": summary.ClosingEmpties,
	}, actor)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *summaryService) RecordSupplierReceipt(ctx context.Context, key SummaryKey, quantity int, reference, actor string) (*DailySummary, error) {
	return s.recordSupplierMovement(ctx, key, quantity, reference, actor, false)
}

func (s *summaryService) RecordSupplierReturn(ctx context.Context, key SummaryKey, quantity int, reference, actor string) (*DailySummary, error) {
	return s.recordSupplierMovement(ctx, key, quantity, reference, actor, true)
}

func (s *summaryService) recordSupplierMovement(ctx context.Context, key SummaryKey, quantity int, reference, actor string, outbound bool) (*DailySummary, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("supplier movement quantity must be positive, got %d", quantity)
	}
	// Every movement carries a reference so audit entries stay traceable
	// even when the caller supplies none.
	if reference == "" {
		reference = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	table, dateColumn, action := "supplier_receipts", "receipt_date", ActionSupplierReceipt
	if outbound {
		table, dateColumn, action = "supplier_returns", "return_date", ActionSupplierReturn
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (distributor_id, cylinder_type_id, %s, quantity, reference)
		VALUES ($1, $2, $3, $4, $5)
	`, table, dateColumn), key.DistributorID, key.CylinderTypeID, key.Date, quantity, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to record supplier movement for %s: %w", key, err)
	}

	summary, err := s.CalculateInTx(ctx, tx, key, actor)
	if err != nil {
		return nil, err
	}

	err = appendAuditTx(ctx, tx, action, "daily_summary", summaryEntityID(key), map[string]any{
		"quantity":  quantity,
		"reference": reference,
	}, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit supplier movement for %s: %w", key, err)
	}
	return summary, nil
}

func (s *summaryService) LockSummary(ctx context.Context, date string, distributorID int, actor string) (int, error) {
	return s.setLockStatus(ctx, date, distributorID, actor, true)
}

func (s *summaryService) UnlockSummary(ctx context.Context, date string, distributorID int, actor string) (int, error) {
	return s.setLockStatus(ctx, date, distributorID, actor, false)
}

func (s *summaryService) setLockStatus(ctx context.Context, date string, distributorID int, actor string, lock bool) (int, error) {
	if date == "" {
		return 0, fmt.Errorf("date is required")
	}
	if distributorID <= 0 {
		return 0, fmt.Errorf("distributor is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	action := ActionSummaryUnlocked
	if lock {
		action = ActionSummaryLocked
		err = tx.QueryRow(ctx, `
			WITH updated AS (
				UPDATE daily_summaries
				SET status = 'locked', updated_at = NOW()
				WHERE summary_date = $1 AND distributor_id = $2 AND status <> 'locked'
				RETURNING id
			)
			SELECT COUNT(*) FROM updated
		`, date, distributorID).Scan(&count)
	} else {
		err = tx.QueryRow(ctx, `
			WITH updated AS (
				UPDATE daily_summaries
				SET status = 'calculated', updated_at = NOW()
				WHERE summary_date = $1 AND distributor_id = $2 AND status = 'locked'
				RETURNING id
			)
			SELECT COUNT(*) FROM updated
		`, date, distributorID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update lock status for %s: %w", date, err)
	}

	tag := fmt.Sprintf("summary:%s:distributor:%d", date, distributorID)
	err = appendAuditTx(ctx, tx, action, "daily_summary", tag, map[string]any{
		"rows": count,
	}, actor)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit lock change for %s: %w", date, err)
	}
	return count, nil
}

func (s *summaryService) GetDailySummary(ctx context.Context, date string, distributorID int) ([]DailySummary, error) {
	if date == "" {
		return nil, fmt.Errorf("date is required")
	}
	if distributorID <= 0 {
		return nil, fmt.Errorf("distributor is required")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, summary_date::text, cylinder_type_id, distributor_id,
		       opening_fulls, opening_empties, inbound_qty, outbound_qty,
		       soft_blocked_qty, delivered_qty, collected_empties_qty,
		       customer_unaccounted, inventory_unaccounted,
		       closing_fulls, closing_empties, status, updated_at
		FROM daily_summaries
		WHERE summary_date = $1 AND distributor_id = $2
		ORDER BY cylinder_type_id
	`, date, distributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var d DailySummary
		if err := rows.Scan(
			&d.ID, &d.SummaryDate, &d.CylinderTypeID, &d.DistributorID,
			&d.OpeningFulls, &d.OpeningEmpties, &d.InboundQty, &d.OutboundQty,
			&d.SoftBlockedQty, &d.DeliveredQty, &d.CollectedEmptiesQty,
			&d.CustomerUnaccounted, &d.InventoryUnaccounted,
			&d.ClosingFulls, &d.ClosingEmpties, &d.Status, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, d)
	}
	return summaries, rows.Err()
}

func (s *summaryService) GetUnaccountedSummary(ctx context.Context, date string, distributorID int) ([]UnaccountedLine, error) {
	if date == "" {
		return nil, fmt.Errorf("date is required")
	}
	if distributorID <= 0 {
		return nil, fmt.Errorf("distributor is required")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ds.cylinder_type_id, ct.name, ds.customer_unaccounted, ds.inventory_unaccounted
		FROM daily_summaries ds
		JOIN cylinder_types ct ON ct.id = ds.cylinder_type_id
		WHERE ds.summary_date = $1 AND ds.distributor_id = $2
		ORDER BY ds.cylinder_type_id
	`, date, distributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unaccounted summary: %w", err)
	}
	defer rows.Close()

	var lines []UnaccountedLine
	for rows.Next() {
		var l UnaccountedLine
		if err := rows.Scan(&l.CylinderTypeID, &l.CylinderTypeName, &l.CustomerUnaccounted, &l.InventoryUnaccounted); err != nil {
			return nil, fmt.Errorf("failed to scan unaccounted line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
