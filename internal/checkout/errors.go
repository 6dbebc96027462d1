package checkout

import (
	"errors"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

var (
	ErrUnauthenticated       = errors.New("sign in to continue")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrCheckoutNotFound      = errors.New("checkout not found")
	ErrCheckoutInProgress    = errors.New("checkout is already being confirmed")
	ErrCheckoutClosed        = errors.New("checkout is no longer open")
	ErrPaymentNotStarted     = errors.New("payment has not been started for this checkout")
	ErrCannotCancel          = errors.New("checkout can no longer be cancelled")
	ErrPaymentNotRecorded    = errors.New("payment was taken but could not be recorded")
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// terminalOrderError reports whether placing orders can never succeed for
// this checkout, as opposed to an outage worth recovering from later.
func terminalOrderError(err error) bool {
	return errors.Is(err, orders.ErrEmptyCart) ||
		errors.Is(err, orders.ErrMissingSeller) ||
		errors.Is(err, orders.ErrInsufficientStock) ||
		errors.Is(err, store.ErrPermissionDenied)
}

// UserMessage turns an error into text for the buyer. Internal details stay
// in the logs.
func UserMessage(err error) string {
	var (
		verr *domain.ValidationError
		ise  *orders.InsufficientStockError
		perr *payment.PaymentError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPaymentNotRecorded):
		return "Your payment went through but the checkout was closed. The charge will be refunded."
	case errors.As(err, &verr):
		return "Please correct the highlighted shipping details."
	case errors.As(err, &ise):
		return "Sorry, " + ise.Name + " does not have enough stock left. Reduce the quantity and try again."
	case errors.Is(err, orders.ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, orders.ErrMissingSeller):
		return "An item in your cart is not available for purchase right now. Remove it and try again."
	case errors.Is(err, store.ErrPermissionDenied):
		return "Your order could not be saved. Please sign in again and retry."
	case errors.Is(err, store.ErrConflict):
		return "The store is busy right now. Please try again in a moment."
	case errors.As(err, &perr):
		if perr.Message != "" {
			return perr.Message
		}
		return "Your payment was declined."
	case payment.IsTransient(err):
		return "The payment provider is not responding. Please try again."
	case errors.Is(err, payment.ErrUnsupportedCountry):
		return "We only ship to Nigeria and the United Kingdom."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrMissingIdempotencyKey):
		return "Something went wrong starting checkout. Please refresh and try again."
	case errors.Is(err, ErrCheckoutNotFound):
		return "We could not find that checkout."
	case errors.Is(err, ErrCheckoutInProgress):
		return "Your payment is already being processed."
	case errors.Is(err, ErrCheckoutClosed):
		return "This checkout has ended. Please start again from your cart."
	case errors.Is(err, ErrPaymentNotStarted):
		return "Payment has not started yet for this checkout."
	case errors.Is(err, ErrCannotCancel):
		return "This checkout can no longer be cancelled."
	}
	return "Something went wrong. Please try again."
}
