package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/cart"
	"github.com/emmanuel-nwafor/foremade/internal/checkout"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Base().Error("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body of at most maxBodyBytes. It writes the 400
// itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleServiceError maps a service error to a status, a code and a message
// the buyer can act on. Unexpected errors are logged and reported as 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		perr *payment.PaymentError
	)

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  checkout.UserMessage(err),
			Code:   "invalid_shipping",
			Fields: verr.Fields,
		})
		return
	case errors.As(err, &perr):
		respondJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:   checkout.UserMessage(err),
			Code:    "payment_failed",
			Details: perr.Code,
		})
		return
	}

	var (
		httpStatus int
		code       string
		message    = checkout.UserMessage(err)
	)
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		httpStatus, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, checkout.ErrMissingIdempotencyKey):
		httpStatus, code = http.StatusBadRequest, "missing_idempotency_key"
	case errors.Is(err, checkout.ErrCheckoutNotFound):
		httpStatus, code = http.StatusNotFound, "checkout_not_found"
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		httpStatus, code = http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, checkout.ErrCheckoutClosed):
		httpStatus, code = http.StatusConflict, "checkout_closed"
	case errors.Is(err, checkout.ErrPaymentNotStarted):
		httpStatus, code = http.StatusConflict, "payment_not_started"
	case errors.Is(err, checkout.ErrCannotCancel):
		httpStatus, code = http.StatusConflict, "cannot_cancel"
	case errors.Is(err, checkout.ErrPaymentNotRecorded):
		httpStatus, code = http.StatusConflict, "payment_not_recorded"
	case errors.Is(err, orders.ErrInsufficientStock):
		httpStatus, code = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, orders.ErrEmptyCart):
		httpStatus, code = http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, orders.ErrMissingSeller):
		httpStatus, code = http.StatusUnprocessableEntity, "missing_seller"
	case errors.Is(err, payment.ErrUnsupportedCountry):
		httpStatus, code = http.StatusBadRequest, "unsupported_country"
	case payment.IsTransient(err):
		httpStatus, code = http.StatusGatewayTimeout, "payment_timeout"
	case errors.Is(err, cart.ErrInvalidQuantity):
		httpStatus, code, message = http.StatusBadRequest, "invalid_quantity", err.Error()
	case errors.Is(err, cart.ErrProductNotFound):
		httpStatus, code, message = http.StatusNotFound, "product_not_found", err.Error()
	case errors.Is(err, cart.ErrQuantityExceedsStock):
		httpStatus, code, message = http.StatusConflict, "insufficient_stock", err.Error()
	case errors.Is(err, store.ErrPermissionDenied):
		httpStatus, code = http.StatusForbidden, "permission_denied"
	case errors.Is(err, store.ErrConflict):
		httpStatus, code = http.StatusServiceUnavailable, "store_busy"
	case errors.Is(err, store.ErrNotFound):
		httpStatus, code, message = http.StatusNotFound, "not_found", "not found"
	default:
		logging.FromCtx(r.Context()).ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		httpStatus, code = http.StatusInternalServerError, "internal_error"
	}
	respondError(w, httpStatus, code, message)
}
