package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryLine is one cylinder-type movement within a delivery confirmation.
type DeliveryLine struct {
	CylinderTypeID      int `json:"cylinder_type_id"`
	DeliveredQty        int `json:"delivered_qty"`
	CollectedEmptiesQty int `json:"collected_empties_qty"`
}

// DeliveryConfirmation is a batch of line items delivered to one customer on
// one date. The whole batch commits or rolls back as a unit.
type DeliveryConfirmation struct {
	Date          string
	OrderID       *int
	CustomerID    int
	DistributorID int
	Lines         []DeliveryLine
	Actor         string
}

func (c DeliveryConfirmation) Validate() error {
	if c.Date == "" {
		return errors.New("delivery confirmation must specify a date")
	}
	if c.CustomerID <= 0 {
		return errors.New("delivery confirmation must specify a customer")
	}
	if c.DistributorID <= 0 {
		return errors.New("delivery confirmation must specify a distributor")
	}
	if len(c.Lines) == 0 {
		return errors.New("delivery confirmation must have at least one line")
	}
	for _, line := range c.Lines {
		if line.CylinderTypeID <= 0 {
			return errors.New("delivery line must specify a cylinder type")
		}
		if line.DeliveredQty < 0 || line.CollectedEmptiesQty < 0 {
			return fmt.Errorf("delivery line quantities cannot be negative for cylinder type %d", line.CylinderTypeID)
		}
	}
	return nil
}

// CustomerLedgerService maintains the per-customer "cylinders in the field"
// ledger. Every mutation appends an audit entry in the same transaction.
type CustomerLedgerService interface {
	// ConfirmDelivery records delivered and collected quantities for a batch
	// of line items, adjusts the customer balances, and refreshes the day's
	// summaries, all inside one transaction. A failure on any line rolls back
	// the entire batch.
	ConfirmDelivery(ctx context.Context, conf DeliveryConfirmation, summaries SummaryService) ([]CustomerBalance, error)

	// ConfirmReturn applies a confirmed returned quantity against the
	// customer's pending returns and then evaluates the grace policy for the
	// same pair within the same transaction.
	ConfirmReturn(ctx context.Context, customerID, cylinderTypeID, confirmedQty int, actor string, grace *GracePolicy) (*CustomerBalance, error)

	// OverrideBalance replaces a customer's balance values directly.
	// Administrative correction; always audited with before and after.
	OverrideBalance(ctx context.Context, customerID, cylinderTypeID int, newValues BalanceValues, reason, actor string) (*CustomerBalance, error)

	// GetCustomerBalance returns all balance rows for a customer.
	GetCustomerBalance(ctx context.Context, customerID int) ([]CustomerBalance, error)
}

// BalanceValues are the three tracked quantities of a customer balance row.
type BalanceValues struct {
	WithCustomerQty int `json:"with_customer_qty"`
	PendingReturns  int `json:"pending_returns"`
	MissingQty      int `json:"missing_qty"`
}

type customerLedgerService struct {
	pool *pgxpool.Pool
}

func NewCustomerLedgerService(pool *pgxpool.Pool) CustomerLedgerService {
	return &customerLedgerService{pool: pool}
}

// lockBalanceTx upserts the balance row for (customerID, cylinderTypeID) and
// locks it for update, returning the current values.
func lockBalanceTx(ctx context.Context, tx pgx.Tx, customerID, cylinderTypeID int) (*CustomerBalance, error) {
	var b CustomerBalance
	err := tx.QueryRow(ctx, `
		INSERT INTO customer_balances (customer_id, cylinder_type_id)
		VALUES ($1, $2)
		ON CONFLICT (customer_id, cylinder_type_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id
	`, customerID, cylinderTypeID).Scan(&b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer balance %d/%d: %w", customerID, cylinderTypeID, err)
	}

	err = tx.QueryRow(ctx, `
		SELECT id, customer_id, cylinder_type_id, with_customer_qty, pending_returns, missing_qty, last_updated
		FROM customer_balances
		WHERE id = $1
		FOR UPDATE
	`, b.ID).Scan(&b.ID, &b.CustomerID, &b.CylinderTypeID, &b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to lock customer balance %d/%d: %w", customerID, cylinderTypeID, err)
	}
	return &b, nil
}

func (s *customerLedgerService) ConfirmDelivery(ctx context.Context, conf DeliveryConfirmation, summaries SummaryService) ([]CustomerBalance, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Customer must belong to the distributor the delivery is scoped to.
	var customerDistributor int
	err = tx.QueryRow(ctx,
		"SELECT distributor_id FROM customers WHERE id = $1 AND is_active = true",
		conf.CustomerID,
	).Scan(&customerDistributor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %d not found", conf.CustomerID)
		}
		return nil, fmt.Errorf("failed to resolve customer %d: %w", conf.CustomerID, err)
	}
	if customerDistributor != conf.DistributorID {
		return nil, fmt.Errorf("customer %d does not belong to distributor %d", conf.CustomerID, conf.DistributorID)
	}

	var balances []CustomerBalance
	for _, line := range conf.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO delivery_confirmations (order_id, distributor_id, customer_id, cylinder_type_id, delivery_date, delivered_qty, collected_empties_qty)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, conf.OrderID, conf.DistributorID, conf.CustomerID, line.CylinderTypeID, conf.Date, line.DeliveredQty, line.CollectedEmptiesQty)
		if err != nil {
			return nil, fmt.Errorf("failed to insert delivery confirmation for cylinder type %d: %w", line.CylinderTypeID, err)
		}

		b, err := lockBalanceTx(ctx, tx, conf.CustomerID, line.CylinderTypeID)
		if err != nil {
			return nil, err
		}

		withDelta, pendingAdd := DeliveryDelta(line.DeliveredQty, line.CollectedEmptiesQty)
		newWith := clampNonNegative(b.WithCustomerQty + withDelta)
		newPending := b.PendingReturns + pendingAdd

		err = tx.QueryRow(ctx, `
			UPDATE customer_balances
			SET with_customer_qty = $1, pending_returns = $2, last_updated = NOW()
			WHERE id = $3
			RETURNING with_customer_qty, pending_returns, missing_qty, last_updated
		`, newWith, newPending, b.ID).Scan(&b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to update customer balance %d/%d: %w", conf.CustomerID, line.CylinderTypeID, err)
		}

		err = appendAuditTx(ctx, tx, ActionDeliveryConfirmed, "customer_balance",
			balanceEntityID(conf.CustomerID, line.CylinderTypeID), map[string]any{
				"delivered_qty":         line.DeliveredQty,
				"collected_empties_qty": line.CollectedEmptiesQty,
				"with_customer_delta":   withDelta,
				"pending_add":           pendingAdd,
				"with_customer_qty":     b.WithCustomerQty,
				"pending_returns":       b.PendingReturns,
			}, conf.Actor)
		if err != nil {
			return nil, err
		}

		balances = append(balances, *b)
	}

	// If the delivery settles an order, mark it delivered so its quantity
	// stops counting as soft-blocked.
	if conf.OrderID != nil {
		_, err = tx.Exec(ctx,
			"UPDATE orders SET status = 'delivered' WHERE id = $1 AND status IN ('pending', 'processing')",
			*conf.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order %d delivered: %w", *conf.OrderID, err)
		}
	}

	// Refresh the day's summary for every cylinder type touched.
	seen := make(map[int]bool)
	for _, line := range conf.Lines {
		if seen[line.CylinderTypeID] {
			continue
		}
		seen[line.CylinderTypeID] = true
		key := SummaryKey{Date: conf.Date, CylinderTypeID: line.CylinderTypeID, DistributorID: conf.DistributorID}
		if _, err := summaries.CalculateInTx(ctx, tx, key, conf.Actor); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delivery confirmation: %w", err)
	}
	return balances, nil
}

func (s *customerLedgerService) ConfirmReturn(ctx context.Context, customerID, cylinderTypeID, confirmedQty int, actor string, grace *GracePolicy) (*CustomerBalance, error) {
	if customerID <= 0 {
		return nil, errors.New("return confirmation must specify a customer")
	}
	if cylinderTypeID <= 0 {
		return nil, errors.New("return confirmation must specify a cylinder type")
	}
	if confirmedQty <= 0 {
		return nil, fmt.Errorf("confirmed return quantity must be positive, got %d", confirmedQty)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Returns require an existing balance: a customer we never delivered to
	// cannot owe cylinders.
	var b CustomerBalance
	err = tx.QueryRow(ctx, `
		SELECT id, customer_id, cylinder_type_id, with_customer_qty, pending_returns, missing_qty, last_updated
		FROM customer_balances
		WHERE customer_id = $1 AND cylinder_type_id = $2
		FOR UPDATE
	`, customerID, cylinderTypeID).Scan(&b.ID, &b.CustomerID, &b.CylinderTypeID, &b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no balance found for customer %d cylinder type %d", customerID, cylinderTypeID)
		}
		return nil, fmt.Errorf("failed to lock customer balance %d/%d: %w", customerID, cylinderTypeID, err)
	}

	beforePending, beforeMissing := b.PendingReturns, b.MissingQty
	staleSince := b.LastUpdated
	newPending, toMissing := ReturnApplication(b.PendingReturns, confirmedQty)

	err = tx.QueryRow(ctx, `
		UPDATE customer_balances
		SET pending_returns = $1, missing_qty = missing_qty + $2, last_updated = NOW()
		WHERE id = $3
		RETURNING with_customer_qty, pending_returns, missing_qty, last_updated
	`, newPending, toMissing, b.ID).Scan(&b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to apply return for customer %d: %w", customerID, err)
	}

	err = appendAuditTx(ctx, tx, ActionReturnConfirmed, "customer_balance",
		balanceEntityID(customerID, cylinderTypeID), map[string]any{
			"confirmed_qty":   confirmedQty,
			"pending_before":  beforePending,
			"pending_after":   b.PendingReturns,
			"missing_before":  beforeMissing,
			"missing_after":   b.MissingQty,
		}, actor)
	if err != nil {
		return nil, err
	}

	// Grace recovery is evaluated reactively after every return confirmation,
	// against the balance's pre-event timestamp.
	if grace != nil {
		escalated, err := grace.ApplyTx(ctx, tx, customerID, cylinderTypeID, staleSince)
		if err != nil {
			return nil, err
		}
		if escalated != nil {
			b = *escalated
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit return confirmation: %w", err)
	}
	return &b, nil
}

func (s *customerLedgerService) OverrideBalance(ctx context.Context, customerID, cylinderTypeID int, newValues BalanceValues, reason, actor string) (*CustomerBalance, error) {
	if customerID <= 0 || cylinderTypeID <= 0 {
		return nil, errors.New("override must specify a customer and cylinder type")
	}
	if newValues.WithCustomerQty < 0 || newValues.PendingReturns < 0 || newValues.MissingQty < 0 {
		return nil, errors.New("override values cannot be negative")
	}
	if reason == "" {
		return nil, errors.New("override must specify a reason")
	}
	if actor == "" || actor == "system" {
		return nil, errors.New("override must identify a human actor")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBalanceTx(ctx, tx, customerID, cylinderTypeID)
	if err != nil {
		return nil, err
	}
	before := BalanceValues{WithCustomerQty: b.WithCustomerQty, PendingReturns: b.PendingReturns, MissingQty: b.MissingQty}

	err = tx.QueryRow(ctx, `
		UPDATE customer_balances
		SET with_customer_qty = $1, pending_returns = $2, missing_qty = $3, last_updated = NOW()
		WHERE id = $4
		RETURNING with_customer_qty, pending_returns, missing_qty, last_updated
	`, newValues.WithCustomerQty, newValues.PendingReturns, newValues.MissingQty, b.ID).
		Scan(&b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to override balance %d/%d: %w", customerID, cylinderTypeID, err)
	}

	err = appendAuditTx(ctx, tx, ActionBalanceOverride, "customer_balance",
		balanceEntityID(customerID, cylinderTypeID), map[string]any{
			"before": before,
			"after":  newValues,
			"reason": reason,
		}, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit balance override: %w", err)
	}
	return b, nil
}

func (s *customerLedgerService) GetCustomerBalance(ctx context.Context, customerID int) ([]CustomerBalance, error) {
	if customerID <= 0 {
		return nil, errors.New("customer id is required")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, customer_id, cylinder_type_id, with_customer_qty, pending_returns, missing_qty, last_updated
		FROM customer_balances
		WHERE customer_id = $1
		ORDER BY cylinder_type_id
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer balances: %w", err)
	}
	defer rows.Close()

	var balances []CustomerBalance
	for rows.Next() {
		var b CustomerBalance
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.CylinderTypeID, &b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan customer balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
