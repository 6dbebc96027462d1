package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("no conversion rate for currency")

// RateProvider returns how many units of `to` one unit of `from` buys.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticRates is a fixed rate table keyed by target currency, quoted against
// a single base currency.
type StaticRates struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticRates parses a table like {"GBP": "0.00048"} quoted against base.
func NewStaticRates(base string, table map[string]string) (*StaticRates, error) {
	base = strings.ToUpper(base)
	rates := map[string]decimal.Decimal{base: decimal.NewFromInt(1)}
	for currency, raw := range table {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", currency, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive, got %s", currency, raw)
		}
		rates[strings.ToUpper(currency)] = rate
	}
	return &StaticRates{base: base, rates: rates}, nil
}

func (s *StaticRates) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	fromRate, ok := s.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	toRate, ok := s.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	return toRate.Div(fromRate), nil
}

// Convert applies a rate and rounds to minor units.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// SettlementUnitPrice is the unit price a buyer is charged in the settlement currency.
func SettlementUnitPrice(line domain.CartLine, rate decimal.Decimal) decimal.Decimal {
	return Convert(line.UnitPrice, rate)
}

// SettlementTotal is the amount charged for a set of lines. It equals the sum
// of the order totals produced for the same lines and rate.
func SettlementTotal(lines []domain.CartLine, rate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		total = total.Add(SettlementUnitPrice(l, rate).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// MinorUnits converts an amount with two decimal places to kobo/pence.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
