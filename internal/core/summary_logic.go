package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrSummaryLocked is returned when a mutation targets a locked daily
// summary. Callers that treat a locked row as a no-op (gap recovery)
// match it with errors.Is; everyone else propagates it.
var ErrSummaryLocked = errors.New("summary is locked")

const dateLayout = "2006-01-02"

// SummaryKey identifies one daily summary row. DistributorID is mandatory
// on every ledger operation; there is no implicit default distributor.
type SummaryKey struct {
	Date           string
	CylinderTypeID int
	DistributorID  int
}

func (k SummaryKey) Validate() error {
	if k.Date == "" {
		return errors.New("summary key must specify a date")
	}
	if _, err := time.Parse(dateLayout, k.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", k.Date, err)
	}
	if k.CylinderTypeID <= 0 {
		return errors.New("summary key must specify a cylinder type")
	}
	if k.DistributorID <= 0 {
		return errors.New("summary key must specify a distributor")
	}
	return nil
}

func (k SummaryKey) String() string {
	return fmt.Sprintf("%s/type=%d/distributor=%d", k.Date, k.CylinderTypeID, k.DistributorID)
}

// SummaryInputs are the movement totals feeding one daily summary.
type SummaryInputs struct {
	OpeningFulls         int
	OpeningEmpties       int
	InboundQty           int
	OutboundQty          int
	DeliveredQty         int
	CollectedEmptiesQty  int
	CustomerUnaccounted  int
	InventoryUnaccounted int
}

// ClosingFulls computes the closing full-cylinder balance, clamped at zero.
// The clamp is deliberate: a day whose negative net movement exceeds the
// opening balance floors at zero rather than erroring, and the drift
// auditor surfaces the discrepancy after the fact.
func (in SummaryInputs) ClosingFulls() int {
	return clampNonNegative(in.OpeningFulls + in.InboundQty - in.OutboundQty - in.DeliveredQty - in.CustomerUnaccounted)
}

// ClosingEmpties computes the closing empty-cylinder balance, clamped at zero.
func (in SummaryInputs) ClosingEmpties() int {
	return clampNonNegative(in.OpeningEmpties + in.CollectedEmptiesQty + in.OutboundQty)
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// DeliveryDelta splits a delivery's net cylinder movement into the two
// customer-ledger components. Delivering more than collecting creates a
// pending return; collecting more than delivering absorbs the surplus out
// of with_customer_qty (withCustomerDelta is always ≤ 0).
func DeliveryDelta(delivered, collected int) (withCustomerDelta, pendingAdd int) {
	netChange := delivered - collected
	pendingAdd = netChange
	if pendingAdd < 0 {
		pendingAdd = 0
	}
	return netChange - pendingAdd, pendingAdd
}

// ReturnApplication applies a confirmed return against the pending-return
// balance. Confirming less than is pending leaves the remainder pending;
// confirming more than is pending floors pending at zero and classifies the
// unmatched overage as missing, since those cylinders were never tracked as
// owed by this customer.
func ReturnApplication(pending, confirmed int) (newPending, toMissing int) {
	newPending = pending - confirmed
	if newPending < 0 {
		newPending = 0
	}
	toMissing = confirmed - pending
	if toMissing < 0 {
		toMissing = 0
	}
	return newPending, toMissing
}
