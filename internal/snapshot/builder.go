package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadTimeout = 3 * time.Second
	defaultConcurrency = 8
)

type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Builder struct {
	products    ProductReader
	fees        *pricing.FeeTable
	currency    string
	readTimeout time.Duration
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

type Option func(*Builder)

func WithReadTimeout(d time.Duration) Option {
	return func(b *Builder) { b.readTimeout = d }
}

func WithConcurrency(n int) Option {
	return func(b *Builder) { b.concurrency = n }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a Builder that prices lines in the catalog base currency.
func NewBuilder(products ProductReader, fees *pricing.FeeTable, baseCurrency string, opts ...Option) *Builder {
	b := &Builder{
		products:    products,
		fees:        fees,
		currency:    baseCurrency,
		readTimeout: defaultReadTimeout,
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         logging.New("snapshot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	return b
}

// Build resolves every cart item against the live catalog. Lines that cannot
// be resolved are left out and reported as diagnostics; a single failed read
// never aborts the snapshot. Surviving lines keep their cart order.
func (b *Builder) Build(ctx context.Context, items []domain.CartItem) (*domain.CartSnapshot, []Diagnostic) {
	lines := make([]*domain.CartLine, len(items))
	diags := make([][]Diagnostic, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, item := range items {
		g.Go(func() error {
			lines[i], diags[i] = b.ResolveLine(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	snap := &domain.CartSnapshot{
		Lines:      make([]domain.CartLine, 0, len(items)),
		Currency:   b.currency,
		CapturedAt: b.now().UTC(),
	}
	var all []Diagnostic
	for i := range items {
		if lines[i] != nil {
			snap.Lines = append(snap.Lines, *lines[i])
		}
		all = append(all, diags[i]...)
	}
	snap.Subtotal = pricing.Subtotal(snap.Lines)

	for _, d := range all {
		b.log.WarnContext(ctx, "cart line diagnostic", "product_id", d.ProductID, "reason", d.Reason, "err", d.Err)
	}
	return snap, all
}

// ResolveLine enriches one cart item. It returns a nil line when the item
// cannot be priced.
func (b *Builder) ResolveLine(ctx context.Context, item domain.CartItem) (*domain.CartLine, []Diagnostic) {
	if item.Quantity < 1 {
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonInvalidQuantity}}
	}

	readCtx, cancel := context.WithTimeout(ctx, b.readTimeout)
	defer cancel()
	p, err := b.products.GetProduct(readCtx, item.ProductID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonProductMissing}}
	case err != nil:
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonFetchFailed, Err: err}}
	case p == nil:
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonProductMissing}}
	}

	if strings.TrimSpace(p.Name) == "" {
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonIncomplete}}
	}
	if p.BasePrice.IsNegative() {
		return nil, []Diagnostic{{ProductID: item.ProductID, Reason: ReasonInvalidPrice}}
	}

	var diags []Diagnostic
	fees, err := b.fees.Resolve(ctx, p.Category)
	if err != nil {
		diags = append(diags, Diagnostic{ProductID: item.ProductID, Reason: ReasonFeeLookupFailed, Err: err})
	}

	line := pricing.Price(domain.CartLine{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Product:   p.Snapshot(),
		Fees:      fees,
	})
	return &line, diags
}
