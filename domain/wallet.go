package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	SellerID         string          `json:"seller_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	Currency         string          `json:"currency"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

const (
	LedgerTypeSale      = "Sale"
	LedgerStatusPending = "pending"
)

type LedgerTransaction struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	SellerID  string          `json:"seller_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
