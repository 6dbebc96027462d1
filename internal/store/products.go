package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
)

const productColumns = `SELECT id, name, category, seller_id, base_price_minor, stock, image_urls, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p          domain.Product
		priceMinor int64
		imagesJSON []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.SellerID, &priceMinor, &p.Stock, &imagesJSON, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BasePrice = pricing.FromMinorUnits(priceMinor)
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &p.ImageURLs); err != nil {
			return nil, fmt.Errorf("unmarshal image urls: %w", err)
		}
	}
	return &p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(productColumns+` FROM products WHERE id = ?`), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query product by id: %w", err))
	}
	return p, nil
}

// UpsertProduct creates or replaces a catalog product.
func (r *Repository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal image urls: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO products (id, name, category, seller_id, base_price_minor, stock, image_urls, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     name = excluded.name,
		     category = excluded.category,
		     seller_id = excluded.seller_id,
		     base_price_minor = excluded.base_price_minor,
		     stock = excluded.stock,
		     image_urls = excluded.image_urls,
		     updated_at = excluded.updated_at`),
		p.ID, p.Name, p.Category, p.SellerID, pricing.MinorUnits(p.BasePrice), p.Stock, string(imagesJSON), p.UpdatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("upsert product: %w", err))
	}
	return nil
}

// CategoryFees implements pricing.FeeSource.
func (r *Repository) CategoryFees(ctx context.Context, category string) (domain.FeeRates, bool, error) {
	var rates domain.FeeRates
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT tax_rate, buyer_protection_rate, handling_rate FROM category_fees WHERE category = ?`), category).
		Scan(&rates.Tax, &rates.BuyerProtection, &rates.Handling)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeeRates{}, false, nil
	}
	if err != nil {
		return domain.FeeRates{}, false, classify(fmt.Errorf("query category fees: %w", err))
	}
	return rates, true, nil
}

func (r *Repository) UpsertCategoryFees(ctx context.Context, category string, rates domain.FeeRates) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO category_fees (category, tax_rate, buyer_protection_rate, handling_rate)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (category) DO UPDATE SET
		     tax_rate = excluded.tax_rate,
		     buyer_protection_rate = excluded.buyer_protection_rate,
		     handling_rate = excluded.handling_rate`),
		category, rates.Tax.String(), rates.BuyerProtection.String(), rates.Handling.String())
	if err != nil {
		return classify(fmt.Errorf("upsert category fees: %w", err))
	}
	return nil
}

var _ pricing.FeeSource = (*Repository)(nil)
