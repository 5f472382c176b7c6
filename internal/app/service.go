package app

import (
	"context"

	"gaslink/internal/core"
)

// ApplicationService is the single interface the transport adapters call.
// It decouples presentation from ledger logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// RecordSupplierReceipt records inbound stock from the supplier and
	// returns the refreshed daily summary.
	RecordSupplierReceipt(ctx context.Context, req SupplierMovementRequest) (*core.DailySummary, error)

	// RecordSupplierReturn records empties picked up by the supplier and
	// returns the refreshed daily summary.
	RecordSupplierReturn(ctx context.Context, req SupplierMovementRequest) (*core.DailySummary, error)

	// RecordDelivery confirms a delivery batch to one customer,
	// adjusting customer balances and daily summaries atomically.
	RecordDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error)

	// RecordReturnConfirmation applies a confirmed return and evaluates the
	// grace policy for the touched pair.
	RecordReturnConfirmation(ctx context.Context, req ReturnRequest) (*core.CustomerBalance, error)

	// CalculateSummary recomputes one daily summary row on demand.
	CalculateSummary(ctx context.Context, date string, cylinderTypeID, distributorID int, actor string) (*core.DailySummary, error)

	// RecoverGaps backfills missing summary dates for a distributor.
	RecoverGaps(ctx context.Context, distributorID int, fromDate, toDate string) (*core.GapRecoveryResult, error)

	// RunDriftAudit checks recorded closings against expected values.
	RunDriftAudit(ctx context.Context, distributorID int, fromDate, toDate string) (*core.DriftReport, error)

	// SweepGraceExpiry escalates every stale pending-return balance of a
	// distributor. Returns the number of balances escalated.
	SweepGraceExpiry(ctx context.Context, distributorID int) (int, error)

	// RequestAdjustment proposes a change to a summary's unaccounted field.
	RequestAdjustment(ctx context.Context, req AdjustmentRequestInput) (*core.AdjustmentRequest, error)

	// ApproveAdjustment folds an approved adjustment into its summary.
	ApproveAdjustment(ctx context.Context, adjustmentID int, approver string) (*core.DailySummary, error)

	// OverrideBalance replaces a customer balance outright. Always audited.
	OverrideBalance(ctx context.Context, req OverrideRequest) (*core.CustomerBalance, error)

	// LockSummaries closes a date for a distributor; rows become immutable.
	LockSummaries(ctx context.Context, date string, distributorID int, actor string) (int, error)

	// UnlockSummaries reopens a locked date for recalculation.
	UnlockSummaries(ctx context.Context, date string, distributorID int, actor string) (int, error)

	// ListDistributors returns all active distributors.
	ListDistributors(ctx context.Context) ([]core.Distributor, error)

	// ListCylinderTypes returns all active cylinder types.
	ListCylinderTypes(ctx context.Context) ([]core.CylinderType, error)

	// GetDailySummary returns the summary rows for a date and distributor.
	GetDailySummary(ctx context.Context, date string, distributorID int) ([]core.DailySummary, error)

	// GetCustomerBalance returns every balance row for a customer.
	GetCustomerBalance(ctx context.Context, customerID int) ([]core.CustomerBalance, error)

	// GetUnaccountedSummary returns logged shrinkage per cylinder type.
	GetUnaccountedSummary(ctx context.Context, date string, distributorID int) ([]core.UnaccountedLine, error)

	// GetAuditHistory returns the mutation log for one entity, oldest first.
	GetAuditHistory(ctx context.Context, entityID string) ([]core.AuditLogEntry, error)

	// AuthenticateOperator verifies credentials and returns a session on success.
	AuthenticateOperator(ctx context.Context, username, password string) (*OperatorSession, error)

	// GetOperator returns an operator profile by ID.
	GetOperator(ctx context.Context, operatorID int) (*core.Operator, error)
}
