package pricing

import (
	"context"
	"strings"

	"github.com/emmanuel-nwafor/foremade/domain"
)

// FeeSource loads the fee configuration stored for a category.
// ok is false when the category has no configuration of its own.
type FeeSource interface {
	CategoryFees(ctx context.Context, category string) (rates domain.FeeRates, ok bool, err error)
}

// FeeTable resolves fees per category with DefaultFeeRates as fallback.
type FeeTable struct {
	source FeeSource
}

func NewFeeTable(source FeeSource) *FeeTable {
	return &FeeTable{source: source}
}

// Resolve never fails: on a lookup error it returns the defaults along with
// the error so callers can report it.
func (t *FeeTable) Resolve(ctx context.Context, category string) (domain.FeeRates, error) {
	category = strings.TrimSpace(category)
	if t == nil || t.source == nil || category == "" {
		return DefaultFeeRates, nil
	}
	rates, ok, err := t.source.CategoryFees(ctx, category)
	if err != nil {
		return DefaultFeeRates, err
	}
	if !ok {
		return DefaultFeeRates, nil
	}
	return rates, nil
}
