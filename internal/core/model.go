package core

import (
	"encoding/json"
	"time"
)

// SummaryStatus is the lifecycle state of a daily summary row.
// Rows progress calculated → pending → approved; locked rows are immutable
// until explicitly unlocked by an operator.
type SummaryStatus string

const (
	SummaryCalculated SummaryStatus = "calculated"
	SummaryPending    SummaryStatus = "pending"
	SummaryApproved   SummaryStatus = "approved"
	SummaryLocked     SummaryStatus = "locked"
)

type Distributor struct {
	ID       int    `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type CylinderType struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	CapacityKg int    `json:"capacity_kg"`
	IsActive   bool   `json:"is_active"`
}

// Customer is a gas customer of one distributor. GracePeriodDays only has
// effect when EnableGraceRecovery is set.
type Customer struct {
	ID                  int    `json:"id"`
	DistributorID       int    `json:"distributor_id"`
	Code                string `json:"code"`
	Name                string `json:"name"`
	EnableGraceRecovery bool   `json:"enable_grace_recovery"`
	GracePeriodDays     int    `json:"grace_period_days"`
	IsActive            bool   `json:"is_active"`
}

// DailySummary is the depot-level balance sheet for one
// (date, cylinder type, distributor) combination. Opening balances carry
// forward from the prior date's closing balances; closing balances are
// derived, clamped at zero, and never stored negative.
type DailySummary struct {
	ID                   int           `json:"id"`
	SummaryDate          string        `json:"summary_date"` // YYYY-MM-DD
	CylinderTypeID       int           `json:"cylinder_type_id"`
	DistributorID        int           `json:"distributor_id"`
	OpeningFulls         int           `json:"opening_fulls"`
	OpeningEmpties       int           `json:"opening_empties"`
	InboundQty           int           `json:"inbound_qty"`
	OutboundQty          int           `json:"outbound_qty"`
	SoftBlockedQty       int           `json:"soft_blocked_qty"`
	DeliveredQty         int           `json:"delivered_qty"`
	CollectedEmptiesQty  int           `json:"collected_empties_qty"`
	CustomerUnaccounted  int           `json:"customer_unaccounted"`
	InventoryUnaccounted int           `json:"inventory_unaccounted"`
	ClosingFulls         int           `json:"closing_fulls"`
	ClosingEmpties       int           `json:"closing_empties"`
	Status               SummaryStatus `json:"status"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// CustomerBalance is the "cylinders in the field" ledger row for one
// customer / cylinder type pair. All quantities are non-negative;
// PendingReturns only decreases through return confirmation or grace expiry.
type CustomerBalance struct {
	ID              int       `json:"id"`
	CustomerID      int       `json:"customer_id"`
	CylinderTypeID  int       `json:"cylinder_type_id"`
	WithCustomerQty int       `json:"with_customer_qty"`
	PendingReturns  int       `json:"pending_returns"`
	MissingQty      int       `json:"missing_qty"`
	LastUpdated     time.Time `json:"last_updated"`
}

type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "pending"
	AdjustmentApproved AdjustmentStatus = "approved"
)

// Adjustable summary fields. Approval is the only path by which these are
// folded into a summary.
const (
	FieldCustomerUnaccounted  = "customer_unaccounted"
	FieldInventoryUnaccounted = "inventory_unaccounted"
)

// AdjustmentRequest is an approval-gated proposal to change one unaccounted
// field on a daily summary.
type AdjustmentRequest struct {
	ID             int              `json:"id"`
	SummaryID      int              `json:"summary_id"`
	Field          string           `json:"field"`
	RequestedValue int              `json:"requested_value"`
	PreviousValue  int              `json:"previous_value"`
	Status         AdjustmentStatus `json:"status"`
	RequestedBy    string           `json:"requested_by"`
	ApprovedBy     *string          `json:"approved_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ApprovedAt     *time.Time       `json:"approved_at,omitempty"`
}

// AuditAction enumerates the kinds of ledger mutation recorded in the audit log.
type AuditAction string

const (
	ActionSummaryCalculated   AuditAction = "summary_calculated"
	ActionSupplierReceipt     AuditAction = "supplier_receipt"
	ActionSupplierReturn      AuditAction = "supplier_return"
	ActionDeliveryConfirmed   AuditAction = "delivery_confirmed"
	ActionReturnConfirmed     AuditAction = "return_confirmed"
	ActionGraceExpiry         AuditAction = "grace_expiry"
	ActionBalanceOverride     AuditAction = "balance_override"
	ActionAdjustmentRequested AuditAction = "adjustment_requested"
	ActionAdjustmentApproved  AuditAction = "adjustment_approved"
	ActionSummaryLocked       AuditAction = "summary_locked"
	ActionSummaryUnlocked     AuditAction = "summary_unlocked"
)

// AuditLogEntry is one immutable record of a ledger mutation. Entries are
// inserted in the same transaction as the mutation they describe and are
// never updated or deleted.
type AuditLogEntry struct {
	ID        int64           `json:"id"`
	Action    AuditAction     `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Details   json.RawMessage `json:"details"`
	Actor     string          `json:"actor"`
	CreatedAt time.Time       `json:"created_at"`
}

// Operator is a login identity for the ledger API.
type Operator struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
