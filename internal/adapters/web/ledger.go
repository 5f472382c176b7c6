package web

import (
	"errors"
	"net/http"
	"strconv"

	"gaslink/internal/app"
	"gaslink/internal/core"

	"github.com/go-chi/chi/v5"
)

// urlInt extracts a positive integer URL parameter, writing a 400 on failure.
func urlInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// actor returns the authenticated operator's username for audit attribution.
func actor(r *http.Request) string {
	if claims := authFromContext(r.Context()); claims != nil {
		return claims.Username
	}
	return ""
}

// writeServiceError maps ledger errors to HTTP statuses: locked summaries
// conflict, everything else from the service layer is a bad request.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrSummaryLocked) {
		writeError(w, r, err.Error(), "SUMMARY_LOCKED", http.StatusConflict)
		return
	}
	writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
}

func (h *Handler) apiListDistributors(w http.ResponseWriter, r *http.Request) {
	distributors, err := h.svc.ListDistributors(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, distributors)
}

func (h *Handler) apiListCylinderTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListCylinderTypes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, types)
}

func (h *Handler) apiSupplierReceipt(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	var req struct {
		Date           string `json:"date"`
		CylinderTypeID int    `json:"cylinder_type_id"`
		Quantity       int    `json:"quantity"`
		Reference      string `json:"reference"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.svc.RecordSupplierReceipt(r.Context(), app.SupplierMovementRequest{
		Date:           req.Date,
		CylinderTypeID: req.CylinderTypeID,
		DistributorID:  distributorID,
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		Actor:          actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) apiSupplierReturn(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	var req struct {
		Date           string `json:"date"`
		CylinderTypeID int    `json:"cylinder_type_id"`
		Quantity       int    `json:"quantity"`
		Reference      string `json:"reference"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.svc.RecordSupplierReturn(r.Context(), app.SupplierMovementRequest{
		Date:           req.Date,
		CylinderTypeID: req.CylinderTypeID,
		DistributorID:  distributorID,
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		Actor:          actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) apiRecordDelivery(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	var req struct {
		Date       string              `json:"date"`
		OrderID    *int                `json:"order_id,omitempty"`
		CustomerID int                 `json:"customer_id"`
		Lines      []core.DeliveryLine `json:"lines"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.RecordDelivery(r.Context(), app.DeliveryRequest{
		Date:          req.Date,
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		DistributorID: distributorID,
		Lines:         req.Lines,
		Actor:         actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiReturnConfirmation(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlInt(w, r, "customerID")
	if !ok {
		return
	}
	var req struct {
		CylinderTypeID int `json:"cylinder_type_id"`
		ConfirmedQty   int `json:"confirmed_qty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.svc.RecordReturnConfirmation(r.Context(), app.ReturnRequest{
		CustomerID:     customerID,
		CylinderTypeID: req.CylinderTypeID,
		ConfirmedQty:   req.ConfirmedQty,
		Actor:          actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, balance)
}

func (h *Handler) apiGetDailySummary(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	summaries, err := h.svc.GetDailySummary(r.Context(), chi.URLParam(r, "date"), distributorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summaries)
}

func (h *Handler) apiCalculateSummary(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	var req struct {
		CylinderTypeID int `json:"cylinder_type_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.svc.CalculateSummary(r.Context(), chi.URLParam(r, "date"), req.CylinderTypeID, distributorID, actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) apiLockSummaries(w http.ResponseWriter, r *http.Request) {
	h.setLockState(w, r, true)
}

func (h *Handler) apiUnlockSummaries(w http.ResponseWriter, r *http.Request) {
	h.setLockState(w, r, false)
}

func (h *Handler) setLockState(w http.ResponseWriter, r *http.Request, lock bool) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}

	var count int
	var err error
	if lock {
		count, err = h.svc.LockSummaries(r.Context(), chi.URLParam(r, "date"), distributorID, actor(r))
	} else {
		count, err = h.svc.UnlockSummaries(r.Context(), chi.URLParam(r, "date"), distributorID, actor(r))
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type response struct {
		Rows int `json:"rows"`
	}
	writeJSON(w, response{Rows: count})
}

func (h *Handler) apiUnaccountedSummary(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	lines, err := h.svc.GetUnaccountedSummary(r.Context(), chi.URLParam(r, "date"), distributorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lines)
}

func (h *Handler) apiRecoverGaps(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	var req struct {
		FromDate string `json:"from_date"`
		ToDate   string `json:"to_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.RecoverGaps(r.Context(), distributorID, req.FromDate, req.ToDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiDriftReport(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	report, err := h.svc.RunDriftAudit(r.Context(), distributorID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) apiGraceSweep(w http.ResponseWriter, r *http.Request) {
	distributorID, ok := urlInt(w, r, "distributorID")
	if !ok {
		return
	}
	escalated, err := h.svc.SweepGraceExpiry(r.Context(), distributorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type response struct {
		Escalated int `json:"escalated"`
	}
	writeJSON(w, response{Escalated: escalated})
}

func (h *Handler) apiRequestAdjustment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SummaryID      int    `json:"summary_id"`
		Field          string `json:"field"`
		RequestedValue int    `json:"requested_value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	adjustment, err := h.svc.RequestAdjustment(r.Context(), app.AdjustmentRequestInput{
		SummaryID:      req.SummaryID,
		Field:          req.Field,
		RequestedValue: req.RequestedValue,
		RequestedBy:    actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, adjustment)
}

func (h *Handler) apiApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	adjustmentID, ok := urlInt(w, r, "adjustmentID")
	if !ok {
		return
	}
	summary, err := h.svc.ApproveAdjustment(r.Context(), adjustmentID, actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) apiCustomerBalances(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlInt(w, r, "customerID")
	if !ok {
		return
	}
	balances, err := h.svc.GetCustomerBalance(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, balances)
}

func (h *Handler) apiOverrideBalance(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlInt(w, r, "customerID")
	if !ok {
		return
	}
	var req struct {
		CylinderTypeID int                `json:"cylinder_type_id"`
		Values         core.BalanceValues `json:"values"`
		Reason         string             `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.svc.OverrideBalance(r.Context(), app.OverrideRequest{
		CustomerID:     customerID,
		CylinderTypeID: req.CylinderTypeID,
		Values:         req.Values,
		Reason:         req.Reason,
		Actor:          actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, balance)
}

func (h *Handler) apiAuditHistory(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	entries, err := h.svc.GetAuditHistory(r.Context(), entityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entries)
}
