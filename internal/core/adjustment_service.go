package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdjustmentService is the approval gate for manual summary corrections.
// Requesting records intent; approving is the only path that folds the new
// value into the summary and recomputes its closing balances.
type AdjustmentService interface {
	RequestAdjustment(ctx context.Context, summaryID int, field string, requestedValue int, requestedBy string) (*AdjustmentRequest, error)
	ApproveAdjustment(ctx context.Context, adjustmentID int, approver string) (*DailySummary, error)
}

type adjustmentService struct {
	pool *pgxpool.Pool
}

func NewAdjustmentService(pool *pgxpool.Pool) AdjustmentService {
	return &adjustmentService{pool: pool}
}

func (s *adjustmentService) RequestAdjustment(ctx context.Context, summaryID int, field string, requestedValue int, requestedBy string) (*AdjustmentRequest, error) {
	if summaryID <= 0 {
		return nil, errors.New("adjustment must reference a summary")
	}
	if field != FieldCustomerUnaccounted && field != FieldInventoryUnaccounted {
		return nil, fmt.Errorf("field %q is not adjustable", field)
	}
	if requestedValue < 0 {
		return nil, fmt.Errorf("requested value cannot be negative, got %d", requestedValue)
	}
	if requestedBy == "" {
		return nil, errors.New("adjustment must identify the requester")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous int
	var status SummaryStatus
	query := fmt.Sprintf("SELECT %s, status FROM daily_summaries WHERE id = $1", field)
	err = tx.QueryRow(ctx, query, summaryID).Scan(&previous, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("summary %d not found", summaryID)
		}
		return nil, fmt.Errorf("failed to fetch summary %d: %w", summaryID, err)
	}
	if status == SummaryLocked {
		return nil, fmt.Errorf("summary %d: %w", summaryID, ErrSummaryLocked)
	}

	req := &AdjustmentRequest{
		SummaryID:      summaryID,
		Field:          field,
		RequestedValue: requestedValue,
		PreviousValue:  previous,
		Status:         AdjustmentPending,
		RequestedBy:    requestedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO adjustment_requests (summary_id, field, requested_value, previous_value, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, summaryID, field, requestedValue, previous, requestedBy).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert adjustment request: %w", err)
	}

	err = appendAuditTx(ctx, tx, ActionAdjustmentRequested, "adjustment_request",
		fmt.Sprintf("adjustment:%d", req.ID), map[string]any{
			"summary_id":      summaryID,
			"field":           field,
			"requested_value": requestedValue,
			"previous_value":  previous,
		}, requestedBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment request: %w", err)
	}
	return req, nil
}

func (s *adjustmentService) ApproveAdjustment(ctx context.Context, adjustmentID int, approver string) (*DailySummary, error) {
	if adjustmentID <= 0 {
		return nil, errors.New("adjustment id is required")
	}
	if approver == "" {
		return nil, errors.New("approval must identify the approver")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var req AdjustmentRequest
	err = tx.QueryRow(ctx, `
		SELECT id, summary_id, field, requested_value, previous_value, status
		FROM adjustment_requests
		WHERE id = $1
		FOR UPDATE
	`, adjustmentID).Scan(&req.ID, &req.SummaryID, &req.Field, &req.RequestedValue, &req.PreviousValue, &req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("adjustment %d not found", adjustmentID)
		}
		return nil, fmt.Errorf("failed to lock adjustment %d: %w", adjustmentID, err)
	}
	if req.Status != AdjustmentPending {
		return nil, fmt.Errorf("adjustment %d is already %s", adjustmentID, req.Status)
	}

	// Lock the summary, reject locked periods, and fold in the new value.
	var d DailySummary
	err = tx.QueryRow(ctx, `
		SELECT id, summary_date::text, cylinder_type_id, distributor_id,
		       opening_fulls, opening_empties, inbound_qty, outbound_qty,
		       soft_blocked_qty, delivered_qty, collected_empties_qty,
		       customer_unaccounted, inventory_unaccounted, status
		FROM daily_summaries
		WHERE id = $1
		FOR UPDATE
	`, req.SummaryID).Scan(
		&d.ID, &d.SummaryDate, &d.CylinderTypeID, &d.DistributorID,
		&d.OpeningFulls, &d.OpeningEmpties, &d.InboundQty, &d.OutboundQty,
		&d.SoftBlockedQty, &d.DeliveredQty, &d.CollectedEmptiesQty,
		&d.CustomerUnaccounted, &d.InventoryUnaccounted, &d.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock summary %d: %w", req.SummaryID, err)
	}
	if d.Status == SummaryLocked {
		return nil, fmt.Errorf("summary %d: %w", req.SummaryID, ErrSummaryLocked)
	}

	switch req.Field {
	case FieldCustomerUnaccounted:
		d.CustomerUnaccounted = req.RequestedValue
	case FieldInventoryUnaccounted:
		d.InventoryUnaccounted = req.RequestedValue
	default:
		return nil, fmt.Errorf("field %q is not adjustable", req.Field)
	}

	in := SummaryInputs{
		OpeningFulls:         d.OpeningFulls,
		OpeningEmpties:       d.OpeningEmpties,
		InboundQty:           d.InboundQty,
		OutboundQty:          d.OutboundQty,
		DeliveredQty:         d.DeliveredQty,
		CollectedEmptiesQty:  d.CollectedEmptiesQty,
		CustomerUnaccounted:  d.CustomerUnaccounted,
		InventoryUnaccounted: d.InventoryUnaccounted,
	}
	d.ClosingFulls = in.ClosingFulls()
	d.ClosingEmpties = in.ClosingEmpties()

	err = tx.QueryRow(ctx, `
		UPDATE daily_summaries
		SET customer_unaccounted = $1, inventory_unaccounted = $2,
		    closing_fulls = $3, closing_empties = $4,
		    status = 'approved', updated_at = NOW()
		WHERE id = $5
		RETURNING status, updated_at
	`, d.CustomerUnaccounted, d.InventoryUnaccounted, d.ClosingFulls, d.ClosingEmpties, d.ID).
		Scan(&d.Status, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to apply adjustment to summary %d: %w", req.SummaryID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE adjustment_requests
		SET status = 'approved', approved_by = $1, approved_at = NOW()
		WHERE id = $2
	`, approver, adjustmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark adjustment %d approved: %w", adjustmentID, err)
	}

	key := SummaryKey{Date: d.SummaryDate, CylinderTypeID: d.CylinderTypeID, DistributorID: d.DistributorID}
	err = appendAuditTx(ctx, tx, ActionAdjustmentApproved, "daily_summary", summaryEntityID(key), map[string]any{
		"adjustment_id":   adjustmentID,
		"field":           req.Field,
		"previous_value":  req.PreviousValue,
		"requested_value": req.RequestedValue,
		"closing_fulls":   d.ClosingFulls,
		"closing_empties": d.ClosingEmpties,
	}, approver)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment approval: %w", err)
	}
	return &d, nil
}
