package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService reads the append-only mutation log. Writes happen only
// through appendAuditTx so every entry lands in the same transaction as the
// mutation it describes.
type AuditService interface {
	// GetAuditHistory returns all entries for an entity ID, oldest first.
	GetAuditHistory(ctx context.Context, entityID string) ([]AuditLogEntry, error)
}

type auditService struct {
	pool *pgxpool.Pool
}

func NewAuditService(pool *pgxpool.Pool) AuditService {
	return &auditService{pool: pool}
}

// appendAuditTx inserts one audit entry inside the caller's transaction.
// details is marshalled to JSON; pass a map or struct holding the
// before/after values of the mutation.
func appendAuditTx(ctx context.Context, tx pgx.Tx, action AuditAction, entity, entityID string, details any, actor string) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_logs (action, entity, entity_id, details, actor)
		VALUES ($1, $2, $3, $4, $5)
	`, string(action), entity, entityID, payload, actor)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *auditService) GetAuditHistory(ctx context.Context, entityID string) ([]AuditLogEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, action, entity, entity_id, details, actor, created_at
		FROM audit_logs
		WHERE entity_id = $1
		ORDER BY created_at ASC, id ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &e.Details, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// balanceEntityID is the audit entity_id convention for customer balance rows.
func balanceEntityID(customerID, cylinderTypeID int) string {
	return fmt.Sprintf("customer:%d:type:%d", customerID, cylinderTypeID)
}

// summaryEntityID is the audit entity_id convention for daily summary rows.
func summaryEntityID(key SummaryKey) string {
	return fmt.Sprintf("summary:%s:type:%d:distributor:%d", key.Date, key.CylinderTypeID, key.DistributorID)
}
