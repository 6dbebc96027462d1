package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
)

func (r *Repository) GetShippingProfile(ctx context.Context, userID string) (*domain.ShippingDetails, error) {
	var detailsJSON []byte
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT details FROM shipping_profiles WHERE user_id = ?`), userID).Scan(&detailsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: shipping profile for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query shipping profile: %w", err))
	}
	var d domain.ShippingDetails
	if err := json.Unmarshal(detailsJSON, &d); err != nil {
		return nil, fmt.Errorf("unmarshal shipping profile: %w", err)
	}
	return &d, nil
}

func (r *Repository) SaveShippingProfile(ctx context.Context, userID string, d domain.ShippingDetails) error {
	d.SaveInfo = true
	detailsJSON, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal shipping profile: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO shipping_profiles (user_id, details, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET details = excluded.details, updated_at = excluded.updated_at`),
		userID, string(detailsJSON), time.Now().UTC())
	if err != nil {
		return classify(fmt.Errorf("upsert shipping profile: %w", err))
	}
	return nil
}
