package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeLineTotal_DefaultFees(t *testing.T) {
	total := ComputeLineTotal(dec("1000"), 2, DefaultFeeRates)
	assert.Equal(t, "2290.00", total.StringFixed(2))
}

func TestComputeLineTotal_Deterministic(t *testing.T) {
	a := ComputeLineTotal(dec("49.99"), 3, DefaultFeeRates)
	b := ComputeLineTotal(dec("49.99"), 3, DefaultFeeRates)
	assert.True(t, a.Equal(b))
}

func TestComputeLineTotal_IsUnitPriceTimesQuantity(t *testing.T) {
	base := dec("333.33")
	unit := UnitPrice(base, DefaultFeeRates)
	for q := 1; q <= 5; q++ {
		total := ComputeLineTotal(base, q, DefaultFeeRates)
		assert.True(t, total.Equal(unit.Mul(decimal.NewFromInt(int64(q)))), "quantity %d", q)
	}
}

// Unit prices are rounded to the cent before multiplying, so a line always
// equals the displayed unit price times quantity.
func TestComputeLineTotal_RoundsUnitPriceBeforeQuantity(t *testing.T) {
	tests := []struct {
		base, unit, total string
		qty               int
	}{
		{base: "0.01", qty: 100, unit: "0.01", total: "1.00"},
		{base: "0.07", qty: 3, unit: "0.08", total: "0.24"},
		{base: "19.99", qty: 7, unit: "22.89", total: "160.23"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.unit, UnitPrice(dec(tt.base), DefaultFeeRates).StringFixed(2))
			assert.Equal(t, tt.total, ComputeLineTotal(dec(tt.base), tt.qty, DefaultFeeRates).StringFixed(2))
		})
	}
}

func TestComputeLineTotal_ClampsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		base     decimal.Decimal
		quantity int
		rates    domain.FeeRates
		want     string
	}{
		{"negative base", dec("-10"), 2, DefaultFeeRates, "0.00"},
		{"zero quantity", dec("10"), 0, DefaultFeeRates, "0.00"},
		{"negative quantity", dec("10"), -3, DefaultFeeRates, "0.00"},
		{"negative rate", dec("100"), 1, domain.FeeRates{Tax: dec("-0.5")}, "100.00"},
		{"no fees", dec("100"), 1, domain.FeeRates{}, "100.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeLineTotal(tt.base, tt.quantity, tt.rates).StringFixed(2))
		})
	}
}

func TestBreakdown_TotalNeverBelowBase(t *testing.T) {
	for _, base := range []string{"0", "0.01", "1", "999.99", "125000"} {
		b := Breakdown(dec(base), DefaultFeeRates)
		assert.True(t, b.TotalPrice.GreaterThanOrEqual(b.BasePrice), "base %s", base)
		assert.Equal(t, "0.075", b.TaxRate.String())
	}
}

func TestPrice_FillsLine(t *testing.T) {
	line := Price(domain.CartLine{
		ProductID: "p1",
		Quantity:  2,
		Product:   domain.ProductSnapshot{BasePrice: dec("1000")},
		Fees:      DefaultFeeRates,
	})
	assert.Equal(t, "1145.00", line.UnitPrice.StringFixed(2))
	assert.Equal(t, "2290.00", line.LineTotal.StringFixed(2))
	assert.Equal(t, "2290.00", Subtotal([]domain.CartLine{line}).StringFixed(2))
}

func TestStaticRates(t *testing.T) {
	rates, err := NewStaticRates("NGN", map[string]string{"gbp": "0.00048"})
	require.NoError(t, err)
	ctx := context.Background()

	r, err := rates.Rate(ctx, "NGN", "GBP")
	require.NoError(t, err)
	assert.Equal(t, "0.00048", r.String())

	r, err = rates.Rate(ctx, "NGN", "NGN")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))

	_, err = rates.Rate(ctx, "NGN", "USD")
	assert.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestNewStaticRates_RejectsBadRates(t *testing.T) {
	_, err := NewStaticRates("NGN", map[string]string{"GBP": "abc"})
	assert.Error(t, err)
	_, err = NewStaticRates("NGN", map[string]string{"GBP": "0"})
	assert.Error(t, err)
}

func TestSettlementTotal_MatchesPerLineSum(t *testing.T) {
	lines := []domain.CartLine{
		Price(domain.CartLine{ProductID: "a", Quantity: 3, Product: domain.ProductSnapshot{BasePrice: dec("15000")}, Fees: DefaultFeeRates}),
		Price(domain.CartLine{ProductID: "b", Quantity: 1, Product: domain.ProductSnapshot{BasePrice: dec("2750.50")}, Fees: DefaultFeeRates}),
	}
	rate := dec("0.00048")

	total := SettlementTotal(lines, rate)

	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(SettlementUnitPrice(l, rate).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, total.Equal(sum))
	assert.Equal(t, "26.23", total.StringFixed(2))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(229000), MinorUnits(dec("2290")))
	assert.Equal(t, int64(1999), MinorUnits(dec("19.99")))
	assert.Equal(t, "19.99", FromMinorUnits(1999).StringFixed(2))
}

type stubFees struct {
	rates domain.FeeRates
	ok    bool
	err   error
}

func (s stubFees) CategoryFees(context.Context, string) (domain.FeeRates, bool, error) {
	return s.rates, s.ok, s.err
}

func TestFeeTable_Resolve(t *testing.T) {
	custom := domain.FeeRates{Tax: dec("0.1"), BuyerProtection: dec("0"), Handling: dec("0")}
	ctx := context.Background()

	rates, err := NewFeeTable(stubFees{rates: custom, ok: true}).Resolve(ctx, "shoes")
	require.NoError(t, err)
	assert.True(t, rates.Tax.Equal(dec("0.1")))

	rates, err = NewFeeTable(stubFees{}).Resolve(ctx, "shoes")
	require.NoError(t, err)
	assert.True(t, rates.Tax.Equal(DefaultFeeRates.Tax))

	rates, err = NewFeeTable(stubFees{err: errors.New("boom")}).Resolve(ctx, "shoes")
	assert.Error(t, err)
	assert.True(t, rates.Handling.Equal(DefaultFeeRates.Handling))
}
