package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OperatorService looks up login identities for the ledger API.
type OperatorService interface {
	GetByUsername(ctx context.Context, username string) (*Operator, error)
	GetByID(ctx context.Context, operatorID int) (*Operator, error)
}

type operatorService struct {
	pool *pgxpool.Pool
}

// NewOperatorService constructs an OperatorService backed by PostgreSQL.
func NewOperatorService(pool *pgxpool.Pool) OperatorService {
	return &operatorService{pool: pool}
}

func (s *operatorService) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	o := &Operator{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, is_active, created_at
		FROM operators
		WHERE username = $1 AND is_active = true
		LIMIT 1`,
		username,
	).Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.IsActive, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("operator %q not found: %w", username, err)
	}
	return o, nil
}

func (s *operatorService) GetByID(ctx context.Context, operatorID int) (*Operator, error) {
	o := &Operator{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, is_active, created_at
		FROM operators
		WHERE id = $1`,
		operatorID,
	).Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.IsActive, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("operator id=%d not found: %w", operatorID, err)
	}
	return o, nil
}
