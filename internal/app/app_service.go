package app

import (
	"context"
	"errors"
	"fmt"

	"gaslink/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type appService struct {
	pool        *pgxpool.Pool
	summaries   core.SummaryService
	ledger      core.CustomerLedgerService
	adjustments core.AdjustmentService
	audit       core.AuditService
	operators   core.OperatorService
	grace       *core.GracePolicy
	gaps        *core.GapRecoveryService
	drift       *core.DriftAuditor
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	summaries core.SummaryService,
	ledger core.CustomerLedgerService,
	adjustments core.AdjustmentService,
	audit core.AuditService,
	operators core.OperatorService,
	grace *core.GracePolicy,
	gaps *core.GapRecoveryService,
	drift *core.DriftAuditor,
) ApplicationService {
	return &appService{
		pool:        pool,
		summaries:   summaries,
		ledger:      ledger,
		adjustments: adjustments,
		audit:       audit,
		operators:   operators,
		grace:       grace,
		gaps:        gaps,
		drift:       drift,
	}
}

func (s *appService) RecordSupplierReceipt(ctx context.Context, req SupplierMovementRequest) (*core.DailySummary, error) {
	key := core.SummaryKey{Date: req.Date, CylinderTypeID: req.CylinderTypeID, DistributorID: req.DistributorID}
	return s.summaries.RecordSupplierReceipt(ctx, key, req.Quantity, req.Reference, req.Actor)
}

func (s *appService) RecordSupplierReturn(ctx context.Context, req SupplierMovementRequest) (*core.DailySummary, error) {
	key := core.SummaryKey{Date: req.Date, CylinderTypeID: req.CylinderTypeID, DistributorID: req.DistributorID}
	return s.summaries.RecordSupplierReturn(ctx, key, req.Quantity, req.Reference, req.Actor)
}

func (s *appService) RecordDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	balances, err := s.ledger.ConfirmDelivery(ctx, core.DeliveryConfirmation{
		Date:          req.Date,
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		DistributorID: req.DistributorID,
		Lines:         req.Lines,
		Actor:         req.Actor,
	}, s.summaries)
	if err != nil {
		return nil, err
	}
	return &DeliveryResult{Balances: balances}, nil
}

func (s *appService) RecordReturnConfirmation(ctx context.Context, req ReturnRequest) (*core.CustomerBalance, error) {
	return s.ledger.ConfirmReturn(ctx, req.CustomerID, req.CylinderTypeID, req.ConfirmedQty, req.Actor, s.grace)
}

func (s *appService) CalculateSummary(ctx context.Context, date string, cylinderTypeID, distributorID int, actor string) (*core.DailySummary, error) {
	key := core.SummaryKey{Date: date, CylinderTypeID: cylinderTypeID, DistributorID: distributorID}
	return s.summaries.Calculate(ctx, key, actor)
}

func (s *appService) RecoverGaps(ctx context.Context, distributorID int, fromDate, toDate string) (*core.GapRecoveryResult, error) {
	return s.gaps.RecoverRange(ctx, distributorID, fromDate, toDate)
}

func (s *appService) RunDriftAudit(ctx context.Context, distributorID int, fromDate, toDate string) (*core.DriftReport, error) {
	return s.drift.Audit(ctx, distributorID, fromDate, toDate)
}

func (s *appService) SweepGraceExpiry(ctx context.Context, distributorID int) (int, error) {
	return s.grace.SweepExpired(ctx, distributorID)
}

func (s *appService) RequestAdjustment(ctx context.Context, req AdjustmentRequestInput) (*core.AdjustmentRequest, error) {
	return s.adjustments.RequestAdjustment(ctx, req.SummaryID, req.Field, req.RequestedValue, req.RequestedBy)
}

func (s *appService) ApproveAdjustment(ctx context.Context, adjustmentID int, approver string) (*core.DailySummary, error) {
	return s.adjustments.ApproveAdjustment(ctx, adjustmentID, approver)
}

func (s *appService) OverrideBalance(ctx context.Context, req OverrideRequest) (*core.CustomerBalance, error) {
	return s.ledger.OverrideBalance(ctx, req.CustomerID, req.CylinderTypeID, req.Values, req.Reason, req.Actor)
}

func (s *appService) LockSummaries(ctx context.Context, date string, distributorID int, actor string) (int, error) {
	return s.summaries.LockSummary(ctx, date, distributorID, actor)
}

func (s *appService) UnlockSummaries(ctx context.Context, date string, distributorID int, actor string) (int, error) {
	return s.summaries.UnlockSummary(ctx, date, distributorID, actor)
}

func (s *appService) ListDistributors(ctx context.Context) ([]core.Distributor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, is_active
		FROM distributors
		WHERE is_active = true
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributors: %w", err)
	}
	defer rows.Close()

	var out []core.Distributor
	for rows.Next() {
		var d core.Distributor
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan distributor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *appService) ListCylinderTypes(ctx context.Context) ([]core.CylinderType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, capacity_kg, is_active
		FROM cylinder_types
		WHERE is_active = true
		ORDER BY capacity_kg`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cylinder types: %w", err)
	}
	defer rows.Close()

	var out []core.CylinderType
	for rows.Next() {
		var ct core.CylinderType
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.CapacityKg, &ct.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan cylinder type: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (s *appService) GetDailySummary(ctx context.Context, date string, distributorID int) ([]core.DailySummary, error) {
	return s.summaries.GetDailySummary(ctx, date, distributorID)
}

func (s *appService) GetCustomerBalance(ctx context.Context, customerID int) ([]core.CustomerBalance, error) {
	return s.ledger.GetCustomerBalance(ctx, customerID)
}

func (s *appService) GetUnaccountedSummary(ctx context.Context, date string, distributorID int) ([]core.UnaccountedLine, error) {
	return s.summaries.GetUnaccountedSummary(ctx, date, distributorID)
}

func (s *appService) GetAuditHistory(ctx context.Context, entityID string) ([]core.AuditLogEntry, error) {
	return s.audit.GetAuditHistory(ctx, entityID)
}

// AuthenticateOperator verifies credentials against the stored bcrypt hash.
// Lookup failure and hash mismatch return the same error so callers cannot
// probe for valid usernames.
func (s *appService) AuthenticateOperator(ctx context.Context, username, password string) (*OperatorSession, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	op, err := s.operators.GetByUsername(ctx, username)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	return &OperatorSession{
		OperatorID: op.ID,
		Username:   op.Username,
		Role:       op.Role,
	}, nil
}

func (s *appService) GetOperator(ctx context.Context, operatorID int) (*core.Operator, error) {
	if operatorID <= 0 {
		return nil, fmt.Errorf("invalid operator id %d", operatorID)
	}
	return s.operators.GetByID(ctx, operatorID)
}
