package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"gaslink/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, logger *logrus.Logger, allowedOrigins, jwtSecret string) http.Handler {
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	// Health (public)
	r.Get("/api/health", h.health)

	// Auth (public)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// Protected API routes (return 401 JSON if unauthenticated).
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// Reference data
		r.Get("/api/distributors", h.apiListDistributors)
		r.Get("/api/cylinder-types", h.apiListCylinderTypes)

		// Stock events
		r.Post("/api/distributors/{distributorID}/receipts", h.apiSupplierReceipt)
		r.Post("/api/distributors/{distributorID}/returns", h.apiSupplierReturn)
		r.Post("/api/distributors/{distributorID}/deliveries", h.apiRecordDelivery)
		r.Post("/api/customers/{customerID}/returns", h.apiReturnConfirmation)

		// Summaries
		r.Get("/api/distributors/{distributorID}/summaries/{date}", h.apiGetDailySummary)
		r.Post("/api/distributors/{distributorID}/summaries/{date}/calculate", h.apiCalculateSummary)
		r.Post("/api/distributors/{distributorID}/summaries/{date}/lock", h.apiLockSummaries)
		r.Post("/api/distributors/{distributorID}/summaries/{date}/unlock", h.apiUnlockSummaries)
		r.Get("/api/distributors/{distributorID}/summaries/{date}/unaccounted", h.apiUnaccountedSummary)

		// Batch passes
		r.Post("/api/distributors/{distributorID}/gaps/recover", h.apiRecoverGaps)
		r.Get("/api/distributors/{distributorID}/drift", h.apiDriftReport)
		r.Post("/api/distributors/{distributorID}/grace/sweep", h.apiGraceSweep)

		// Adjustments
		r.Post("/api/adjustments", h.apiRequestAdjustment)
		r.Post("/api/adjustments/{adjustmentID}/approve", h.apiApproveAdjustment)

		// Customer balances
		r.Get("/api/customers/{customerID}/balances", h.apiCustomerBalances)
		r.Post("/api/customers/{customerID}/balances/override", h.apiOverrideBalance)

		// Audit history
		r.Get("/api/audit/{entityID}", h.apiAuditHistory)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
