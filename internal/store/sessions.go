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

const sessionColumns = `SELECT id, user_id, idempotency_key, status, cart_snapshot, shipping, gateway, currency,
       exchange_rate, total_amount_minor, payment_ref, payment_id, order_ids, failure_reason, created_at, updated_at
       FROM checkout_sessions`

func scanSession(row rowScanner) (*domain.CheckoutSession, error) {
	var (
		s            domain.CheckoutSession
		status       string
		gateway      string
		snapshotJSON []byte
		shippingJSON []byte
		orderIDsJSON []byte
		totalMinor   int64
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.IdempotencyKey,
		&status,
		&snapshotJSON,
		&shippingJSON,
		&gateway,
		&s.Currency,
		&s.ExchangeRate,
		&totalMinor,
		&s.PaymentRef,
		&s.PaymentID,
		&orderIDsJSON,
		&s.FailureReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = domain.CheckoutStatus(status)
	s.Gateway = domain.Gateway(gateway)
	s.TotalAmount = pricing.FromMinorUnits(totalMinor)
	if err := json.Unmarshal(snapshotJSON, &s.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &s.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping details: %w", err)
	}
	if err := json.Unmarshal(orderIDsJSON, &s.OrderIDs); err != nil {
		return nil, fmt.Errorf("unmarshal order ids: %w", err)
	}
	return &s, nil
}

func (r *Repository) GetCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, r.rebind(sessionColumns+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: checkout %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query checkout session: %w", err))
	}
	return s, nil
}

func (r *Repository) GetCheckoutSessionByIdempotencyKey(ctx context.Context, userID, key string) (*domain.CheckoutSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		r.rebind(sessionColumns+` WHERE user_id = ? AND idempotency_key = ?`), userID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query checkout session by idempotency key: %w", err))
	}
	return s, nil
}

func (r *Repository) CreateCheckoutSession(ctx context.Context, s *domain.CheckoutSession) error {
	snapshotJSON, err := json.Marshal(s.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	shippingJSON, err := json.Marshal(s.Shipping)
	if err != nil {
		return fmt.Errorf("marshal shipping details: %w", err)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO checkout_sessions (id, user_id, idempotency_key, status, cart_snapshot, shipping, gateway, currency,
		                                exchange_rate, total_amount_minor, payment_ref, payment_id, order_ids,
		                                failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', '', ?, ?)`),
		s.ID,
		s.UserID,
		s.IdempotencyKey,
		string(s.Status),
		string(snapshotJSON),
		string(shippingJSON),
		string(s.Gateway),
		s.Currency,
		s.ExchangeRate.String(),
		pricing.MinorUnits(s.TotalAmount),
		s.PaymentRef,
		s.PaymentID,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert checkout session: %w", err))
	}
	return nil
}

// SetPaymentIntent records the gateway reference and moves the session to PAYMENT_PENDING.
func (r *Repository) SetPaymentIntent(ctx context.Context, id, paymentRef string) error {
	return r.transition(ctx, id, domain.CheckoutStatusPaymentPending, "payment_ref = ?", paymentRef)
}

// SetPayment records a confirmed payment and moves the session to PAYMENT_COMPLETED.
func (r *Repository) SetPayment(ctx context.Context, id, paymentID string) error {
	return r.transition(ctx, id, domain.CheckoutStatusPaymentCompleted, "payment_id = ?", paymentID)
}

func (r *Repository) CompleteCheckoutSession(ctx context.Context, id string, orderIDs []string) error {
	if orderIDs == nil {
		orderIDs = []string{}
	}
	idsJSON, err := json.Marshal(orderIDs)
	if err != nil {
		return fmt.Errorf("marshal order ids: %w", err)
	}
	return r.transition(ctx, id, domain.CheckoutStatusCompleted, "order_ids = ?", string(idsJSON))
}

func (r *Repository) FailCheckoutSession(ctx context.Context, id, reason string) error {
	return r.transition(ctx, id, domain.CheckoutStatusFailed, "failure_reason = ?", reason)
}

func (r *Repository) CancelCheckoutSession(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.CheckoutStatusCancelled, "")
}

// transition moves a session to `to` if the current status allows it. The
// status is compared-and-set so two concurrent transitions cannot both win.
func (r *Repository) transition(ctx context.Context, id string, to domain.CheckoutStatus, set string, setArg ...any) error {
	current, err := r.GetCheckoutSession(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanTransitionTo(current.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalStatusTransition, current.Status, to)
	}

	query := `UPDATE checkout_sessions SET status = ?, updated_at = ?`
	args := []any{string(to), time.Now().UTC()}
	if set != "" {
		query += ", " + set
		args = append(args, setArg...)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(current.Status))

	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return classify(fmt.Errorf("update checkout session status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: checkout %s changed status concurrently", ErrConflict, id)
	}
	return nil
}

// GetStuckSessions returns sessions whose payment completed before cutoff
// but which never reached a terminal status.
func (r *Repository) GetStuckSessions(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CheckoutSession, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(sessionColumns+` WHERE status = ? AND updated_at < ? ORDER BY updated_at LIMIT ?`),
		string(domain.CheckoutStatusPaymentCompleted), cutoff.UTC(), limit)
	if err != nil {
		return nil, classify(fmt.Errorf("query stuck sessions: %w", err))
	}
	defer rows.Close()

	var out []*domain.CheckoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
