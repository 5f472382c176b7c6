package app

import "gaslink/internal/core"

// SupplierMovementRequest is the input for inbound receipts and outbound
// returns against the supplier.
type SupplierMovementRequest struct {
	Date           string // YYYY-MM-DD
	CylinderTypeID int
	DistributorID  int
	Quantity       int
	Reference      string
	Actor          string
}

// DeliveryRequest is the input for confirming a delivery batch.
type DeliveryRequest struct {
	Date          string // YYYY-MM-DD
	OrderID       *int
	CustomerID    int
	DistributorID int
	Lines         []core.DeliveryLine
	Actor         string
}

// ReturnRequest is the input for confirming returned empties.
type ReturnRequest struct {
	CustomerID     int
	CylinderTypeID int
	ConfirmedQty   int
	Actor          string
}

// AdjustmentRequestInput proposes a value for one unaccounted field.
type AdjustmentRequestInput struct {
	SummaryID      int
	Field          string
	RequestedValue int
	RequestedBy    string
}

// OverrideRequest replaces a customer balance with explicit values.
type OverrideRequest struct {
	CustomerID     int
	CylinderTypeID int
	Values         core.BalanceValues
	Reason         string
	Actor          string
}
