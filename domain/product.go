package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string
	Name      string
	Category  string
	SellerID  string
	BasePrice decimal.Decimal
	Stock     int
	ImageURLs []string
	UpdatedAt time.Time
}

func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Name:      p.Name,
		BasePrice: p.BasePrice,
		Category:  p.Category,
		SellerID:  p.SellerID,
		Stock:     p.Stock,
		ImageURLs: p.ImageURLs,
	}
}
