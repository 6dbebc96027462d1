package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
)

type sqlUnitOfWork struct {
	r      *Repository
	tx     *sql.Tx
	writes []Write
	done   bool
}

// Begin opens a transaction. On Postgres it runs SERIALIZABLE so that stock
// read here cannot change underneath the commit.
func (r *Repository) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := r.db.BeginTx(ctx, r.txOptions())
	if err != nil {
		return nil, classify(fmt.Errorf("begin transaction: %w", err))
	}
	return &sqlUnitOfWork{r: r, tx: tx}, nil
}

func (u *sqlUnitOfWork) ReadProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if u.done {
		return nil, ErrTransactionDone
	}
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := u.r.rebind(productColumns + ` FROM products WHERE id IN (` + placeholders(len(ids)) + `)`)
	rows, err := u.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("read products: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (u *sqlUnitOfWork) StageWrite(w Write) {
	u.writes = append(u.writes, w)
}

func (u *sqlUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return ErrTransactionDone
	}
	u.done = true

	now := time.Now().UTC()
	for _, w := range u.writes {
		if err := u.apply(ctx, w, now); err != nil {
			_ = u.tx.Rollback()
			return err
		}
	}
	if err := u.tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (u *sqlUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

func (u *sqlUnitOfWork) apply(ctx context.Context, w Write, now time.Time) error {
	switch w := w.(type) {
	case StockUpdate:
		if w.New < 0 {
			return fmt.Errorf("%w: product %s", ErrNegativeStock, w.ProductID)
		}
		res, err := u.tx.ExecContext(ctx, u.r.rebind(
			`UPDATE products SET stock = ?, updated_at = ? WHERE id = ? AND stock = ?`),
			w.New, now, w.ProductID, w.Expected)
		if err != nil {
			return classify(fmt.Errorf("update stock for %s: %w", w.ProductID, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify(err)
		}
		if n == 0 {
			return fmt.Errorf("%w: stock of %s changed", ErrConflict, w.ProductID)
		}

	case WalletCredit:
		_, err := u.tx.ExecContext(ctx, u.r.rebind(
			`INSERT INTO wallets (seller_id, available_balance_minor, pending_balance_minor, currency, updated_at)
			 VALUES (?, 0, ?, ?, ?)
			 ON CONFLICT (seller_id) DO UPDATE
			 SET pending_balance_minor = wallets.pending_balance_minor + excluded.pending_balance_minor,
			     updated_at = excluded.updated_at`),
			w.SellerID, pricing.MinorUnits(w.Amount), w.Currency, now)
		if err != nil {
			return classify(fmt.Errorf("credit wallet %s: %w", w.SellerID, err))
		}

	case OrderInsert:
		if err := insertOrder(ctx, u.tx, u.r, w.Order); err != nil {
			return err
		}

	case OutboxInsert:
		if err := insertOutboxEvent(ctx, u.tx, u.r, w.Event); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported write %T", w)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOrder(ctx context.Context, ex execer, r *Repository, o *domain.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping details: %w", err)
	}

	_, err = ex.ExecContext(ctx, r.rebind(
		`INSERT INTO orders (id, checkout_id, user_id, seller_id, items, total_amount_minor, currency, status,
		                     payment_gateway, payment_id, shipping, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID,
		o.CheckoutID,
		o.UserID,
		o.SellerID,
		string(itemsJSON),
		pricing.MinorUnits(o.TotalAmount),
		o.Currency,
		string(o.Status),
		string(o.PaymentGateway),
		o.PaymentID,
		string(shippingJSON),
		o.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("insert order: %w", err))
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, ex execer, r *Repository, e OutboxEvent) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := ex.ExecContext(ctx, r.rebind(
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`),
		e.AggregateID, e.EventType, string(e.Payload), created.UTC())
	if err != nil {
		return classify(fmt.Errorf("insert outbox event: %w", err))
	}
	return nil
}
