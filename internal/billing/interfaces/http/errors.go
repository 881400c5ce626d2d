package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"hostel-billing/internal/auth"
	billing "hostel-billing/internal/billing/domain"
)

// statusFor maps billing errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, billing.ErrPaymentNotFound),
		errors.Is(err, billing.ErrRoomNotFound),
		errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrLandlordMismatch):
		return http.StatusForbidden
	case errors.Is(err, billing.ErrOverpayment),
		errors.Is(err, billing.ErrConcurrentModification),
		errors.Is(err, billing.ErrInvoiceSuperseded),
		errors.Is(err, billing.ErrInvoiceHasPayments),
		errors.Is(err, billing.ErrPaymentAlreadyReversed),
		errors.Is(err, billing.ErrIdempotencyKeyReused),
		errors.Is(err, billing.ErrDuplicatePayment),
		errors.Is(err, billing.ErrPeriodAlreadyBilled):
		return http.StatusConflict
	case errors.Is(err, billing.ErrInvoiceBuild),
		errors.Is(err, billing.ErrNoApplicablePrice),
		errors.Is(err, billing.ErrNegativeConsumption),
		errors.Is(err, billing.ErrMissingOccupancy),
		errors.Is(err, billing.ErrNoActiveContract):
		return http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidPeriod),
		errors.Is(err, billing.ErrNegativeValue),
		errors.Is(err, billing.ErrInvalidPriceChange),
		errors.Is(err, billing.ErrInvalidReading),
		errors.Is(err, billing.ErrUnknownChargingMethod),
		errors.Is(err, billing.ErrEmptyID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("billing request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func respondValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
