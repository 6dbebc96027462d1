package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingApproval OrderStatus = "pending-approval"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// Order is the record of one seller's share of a checkout.
type Order struct {
	ID             string          `json:"id"`
	CheckoutID     string          `json:"checkout_id"`
	UserID         string          `json:"user_id"`
	SellerID       string          `json:"seller_id"`
	Items          []OrderItem     `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         OrderStatus     `json:"status"`
	PaymentGateway Gateway         `json:"payment_gateway"`
	PaymentID      string          `json:"payment_id"`
	Shipping       ShippingDetails `json:"shipping_details"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ItemsTotal sums price × quantity over the order items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
