package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// GracePolicy escalates stale pending returns to missing quantity once a
// customer's configured grace window has elapsed. It is evaluated reactively
// after return-confirmation events; SweepExpired provides the periodic pass
// for balances no event ever touches again.
type GracePolicy struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewGracePolicy(pool *pgxpool.Pool, logger *logrus.Logger) *GracePolicy {
	return &GracePolicy{pool: pool, logger: logger}
}

// ApplyTx evaluates the policy for one customer / cylinder type pair inside
// the caller's transaction. lastTouched must be the balance's last_updated
// as it stood before the triggering event mutated the row; the event's own
// write would otherwise always reset the window. Finding nothing to do is a
// successful no-op and returns (nil, nil).
func (g *GracePolicy) ApplyTx(ctx context.Context, tx pgx.Tx, customerID, cylinderTypeID int, lastTouched time.Time) (*CustomerBalance, error) {
	var enabled bool
	var graceDays int
	var b CustomerBalance
	err := tx.QueryRow(ctx, `
		SELECT c.enable_grace_recovery, c.grace_period_days,
		       b.id, b.customer_id, b.cylinder_type_id,
		       b.with_customer_qty, b.pending_returns, b.missing_qty, b.last_updated
		FROM customer_balances b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.customer_id = $1 AND b.cylinder_type_id = $2
		FOR UPDATE OF b
	`, customerID, cylinderTypeID).Scan(&enabled, &graceDays,
		&b.ID, &b.CustomerID, &b.CylinderTypeID,
		&b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load balance for grace evaluation %d/%d: %w", customerID, cylinderTypeID, err)
	}

	if !enabled || graceDays <= 0 || b.PendingReturns <= 0 {
		return nil, nil
	}
	if time.Since(lastTouched) <= time.Duration(graceDays)*24*time.Hour {
		return nil, nil
	}

	expired := b.PendingReturns
	beforeMissing := b.MissingQty

	err = tx.QueryRow(ctx, `
		UPDATE customer_balances
		SET pending_returns = 0, missing_qty = missing_qty + $1, last_updated = NOW()
		WHERE id = $2
		RETURNING with_customer_qty, pending_returns, missing_qty, last_updated
	`, expired, b.ID).Scan(&b.WithCustomerQty, &b.PendingReturns, &b.MissingQty, &b.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate expired pending returns %d/%d: %w", customerID, cylinderTypeID, err)
	}

	err = appendAuditTx(ctx, tx, ActionGraceExpiry, "customer_balance",
		balanceEntityID(customerID, cylinderTypeID), map[string]any{
			"reason":            fmt.Sprintf("automatic grace period expiry after %d days", graceDays),
			"expired_qty":       expired,
			"missing_before":    beforeMissing,
			"missing_after":     b.MissingQty,
			"stale_since":       lastTouched,
			"grace_period_days": graceDays,
		}, "system")
	if err != nil {
		return nil, err
	}

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"customer_id":      customerID,
			"cylinder_type_id": cylinderTypeID,
			"expired_qty":      expired,
		}).Info("grace period expired, pending returns escalated to missing")
	}

	return &b, nil
}

// SweepExpired applies the policy to every eligible balance of a distributor.
// Each pair escalates in its own transaction so one failure does not abort
// the sweep. Returns the number of balances escalated.
func (g *GracePolicy) SweepExpired(ctx context.Context, distributorID int) (int, error) {
	if distributorID <= 0 {
		return 0, errors.New("distributor is required")
	}

	rows, err := g.pool.Query(ctx, `
		SELECT b.customer_id, b.cylinder_type_id, b.last_updated
		FROM customer_balances b
		JOIN customers c ON c.id = b.customer_id
		WHERE c.distributor_id = $1
		  AND c.enable_grace_recovery = true
		  AND c.grace_period_days > 0
		  AND b.pending_returns > 0
		  AND b.last_updated < NOW() - (c.grace_period_days || ' days')::interval
	`, distributorID)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired balances: %w", err)
	}

	type pair struct {
		customerID     int
		cylinderTypeID int
		lastUpdated    time.Time
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.customerID, &p.cylinderTypeID, &p.lastUpdated); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired balance: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating expired balances: %w", err)
	}

	escalated := 0
	for _, p := range pairs {
		err := func() error {
			tx, err := g.pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}
			defer tx.Rollback(ctx)

			applied, err := g.ApplyTx(ctx, tx, p.customerID, p.cylinderTypeID, p.lastUpdated)
			if err != nil {
				return err
			}
			if applied == nil {
				return nil
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("failed to commit grace escalation: %w", err)
			}
			escalated++
			return nil
		}()
		if err != nil && g.logger != nil {
			g.logger.WithFields(logrus.Fields{
				"customer_id":      p.customerID,
				"cylinder_type_id": p.cylinderTypeID,
			}).WithError(err).Warn("grace sweep failed for balance, continuing")
		}
	}

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"distributor_id": distributorID,
			"eligible":       len(pairs),
			"escalated":      escalated,
		}).Info("grace sweep complete")
	}
	return escalated, nil
}
