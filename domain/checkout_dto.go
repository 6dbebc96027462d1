package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	IdempotencyKey string
	Shipping       ShippingDetails
}

type CheckoutResponse struct {
	CheckoutID   string
	Status       CheckoutStatus
	Gateway      Gateway
	Currency     string
	TotalAmount  decimal.Decimal
	ClientSecret string
	Reference    string
	Warnings     []string
}

// ConfirmRequest carries the gateway callback data. Card payments send the
// payment method id, mobile money payments the popup reference.
type ConfirmRequest struct {
	CheckoutID      string
	PaymentMethodID string
	Reference       string
}

type ConfirmResponse struct {
	CheckoutID string
	Status     CheckoutStatus
	OrderIDs   []string
	Warnings   []string
}

// CheckoutSession is the persisted state of one checkout attempt.
type CheckoutSession struct {
	ID             string
	UserID         string
	IdempotencyKey string
	Status         CheckoutStatus
	Snapshot       CartSnapshot
	Shipping       ShippingDetails
	Gateway        Gateway
	Currency       string
	ExchangeRate   decimal.Decimal
	TotalAmount    decimal.Decimal
	PaymentRef     string
	PaymentID      string
	OrderIDs       []string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
