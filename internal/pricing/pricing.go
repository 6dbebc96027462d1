// Package pricing computes fee-adjusted prices and settlement-currency amounts.
package pricing

import (
	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
)

// DefaultFeeRates apply to every category without its own fee configuration.
var DefaultFeeRates = domain.FeeRates{
	Tax:             decimal.RequireFromString("0.075"),
	BuyerProtection: decimal.RequireFromString("0.02"),
	Handling:        decimal.RequireFromString("0.05"),
}

// PriceBreakdown shows how a unit price is derived from its base price.
type PriceBreakdown struct {
	BasePrice           decimal.Decimal `json:"base_price"`
	TaxRate             decimal.Decimal `json:"tax_rate"`
	BuyerProtectionRate decimal.Decimal `json:"buyer_protection_rate"`
	HandlingRate        decimal.Decimal `json:"handling_rate"`
	TotalPrice          decimal.Decimal `json:"total_price"`
}

// UnitPrice returns base × (1 + tax + buyerProtection + handling) rounded to
// two decimal places. Negative inputs count as zero.
func UnitPrice(base decimal.Decimal, rates domain.FeeRates) decimal.Decimal {
	r := sanitize(rates)
	multiplier := decimal.NewFromInt(1).Add(r.Tax).Add(r.BuyerProtection).Add(r.Handling)
	return nonNegative(base).Mul(multiplier).Round(2)
}

// ComputeLineTotal returns the fee-adjusted unit price times quantity.
// A quantity below one yields zero.
func ComputeLineTotal(base decimal.Decimal, quantity int, rates domain.FeeRates) decimal.Decimal {
	if quantity < 1 {
		return decimal.Zero
	}
	return UnitPrice(base, rates).Mul(decimal.NewFromInt(int64(quantity)))
}

func Breakdown(base decimal.Decimal, rates domain.FeeRates) PriceBreakdown {
	r := sanitize(rates)
	return PriceBreakdown{
		BasePrice:           nonNegative(base),
		TaxRate:             r.Tax,
		BuyerProtectionRate: r.BuyerProtection,
		HandlingRate:        r.Handling,
		TotalPrice:          UnitPrice(base, r),
	}
}

// Price fills in UnitPrice and LineTotal on a cart line from its product and fees.
func Price(line domain.CartLine) domain.CartLine {
	line.UnitPrice = UnitPrice(line.Product.BasePrice, line.Fees)
	line.LineTotal = ComputeLineTotal(line.Product.BasePrice, line.Quantity, line.Fees)
	return line
}

// Subtotal sums the base-currency line totals.
func Subtotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}

func sanitize(r domain.FeeRates) domain.FeeRates {
	return domain.FeeRates{
		Tax:             nonNegative(r.Tax),
		BuyerProtection: nonNegative(r.BuyerProtection),
		Handling:        nonNegative(r.Handling),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
