// Package payment adapts the card and mobile-money gateways to one
// normalized "payment succeeded" result.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCountry = errors.New("no payment method for shipping country")
	ErrUnknownGateway     = errors.New("unknown payment gateway")
)

// Strategy is one payment gateway. A checkout picks a Strategy once and uses
// it for both initiation and confirmation.
type Strategy interface {
	Gateway() domain.Gateway
	Currency() string
	Initiate(ctx context.Context, req Request) (*Intent, error)
	Confirm(ctx context.Context, intent Intent, c Confirmation) (*domain.PaymentResult, error)
}

// Request is a charge for Amount in the strategy's currency.
type Request struct {
	CheckoutID string
	UserID     string
	Email      string
	Amount     decimal.Decimal
	Currency   string
	Metadata   map[string]string
}

// Intent is what the buyer's client needs to finish the payment.
type Intent struct {
	Gateway      domain.Gateway  `json:"gateway"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}

// Confirmation carries what the buyer's client returned: a card payment
// method or the popup callback reference.
type Confirmation struct {
	PaymentMethodID string
	Reference       string
}

// PaymentError is a gateway-reported failure such as a decline. It is never
// retried. Message is safe to show to the buyer.
type PaymentError struct {
	Gateway    domain.Gateway
	StatusCode int
	Code       string
	Message    string
}

func (e *PaymentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s payment failed (HTTP %d, %s): %s", e.Gateway, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s payment failed (%s): %s", e.Gateway, e.Code, e.Message)
}

// TransientNetworkError is a timeout talking to a gateway.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: gateway timed out: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}
