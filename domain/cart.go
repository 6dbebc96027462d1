package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// ProductSnapshot is the product state captured when a cart line is priced.
type ProductSnapshot struct {
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	Category  string          `json:"category"`
	SellerID  string          `json:"seller_id"`
	Stock     int             `json:"stock"`
	ImageURLs []string        `json:"image_urls,omitempty"`
}

// FeeRates are the fractional fees added on top of a base price.
type FeeRates struct {
	Tax             decimal.Decimal `json:"tax"`
	BuyerProtection decimal.Decimal `json:"buyer_protection"`
	Handling        decimal.Decimal `json:"handling"`
}

// CartLine is a cart item enriched with its product and fee-adjusted price.
// UnitPrice and LineTotal are in the catalog base currency.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   ProductSnapshot `json:"product"`
	Fees      FeeRates        `json:"fees"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartSnapshot represents the full cart state at checkout time
type CartSnapshot struct {
	Lines      []CartLine      `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Currency   string          `json:"currency"`
	CapturedAt time.Time       `json:"captured_at"`
}

func (s *CartSnapshot) IsEmpty() bool {
	return s == nil || len(s.Lines) == 0
}
