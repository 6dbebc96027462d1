package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
)

const orderColumns = `SELECT id, checkout_id, user_id, seller_id, items, total_amount_minor, currency, status,
       payment_gateway, payment_id, shipping, created_at FROM orders`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o            domain.Order
		itemsJSON    []byte
		shippingJSON []byte
		totalMinor   int64
		status       string
		gateway      string
	)
	if err := row.Scan(
		&o.ID,
		&o.CheckoutID,
		&o.UserID,
		&o.SellerID,
		&itemsJSON,
		&totalMinor,
		&o.Currency,
		&status,
		&gateway,
		&o.PaymentID,
		&shippingJSON,
		&o.CreatedAt,
	); err != nil {
		return nil, err
	}
	o.TotalAmount = pricing.FromMinorUnits(totalMinor)
	o.Status = domain.OrderStatus(status)
	o.PaymentGateway = domain.Gateway(gateway)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping details: %w", err)
	}
	return &o, nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, r.rebind(orderColumns+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query order by id: %w", err))
	}
	return o, nil
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.listOrders(ctx, orderColumns+` WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

func (r *Repository) ListOrdersByCheckout(ctx context.Context, checkoutID string) ([]*domain.Order, error) {
	return r.listOrders(ctx, orderColumns+` WHERE checkout_id = ? ORDER BY seller_id`, checkoutID)
}

func (r *Repository) listOrders(ctx context.Context, query string, arg string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), arg)
	if err != nil {
		return nil, classify(fmt.Errorf("query orders: %w", err))
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *Repository) GetWallet(ctx context.Context, sellerID string) (*domain.Wallet, error) {
	var (
		w                      domain.Wallet
		available, pendingAmt int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT seller_id, available_balance_minor, pending_balance_minor, currency, updated_at FROM wallets WHERE seller_id = ?`),
		sellerID).Scan(&w.SellerID, &available, &pendingAmt, &w.Currency, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, sellerID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query wallet: %w", err))
	}
	w.AvailableBalance = pricing.FromMinorUnits(available)
	w.PendingBalance = pricing.FromMinorUnits(pendingAmt)
	return &w, nil
}

// AppendLedger records ledger transactions. It runs outside the order
// transaction.
func (r *Repository) AppendLedger(ctx context.Context, txs []domain.LedgerTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin ledger transaction: %w", err))
	}
	for _, t := range txs {
		_, err := tx.ExecContext(ctx, r.rebind(
			`INSERT INTO ledger_transactions (id, order_id, seller_id, type, amount_minor, currency, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID, t.OrderID, t.SellerID, t.Type, pricing.MinorUnits(t.Amount), t.Currency, t.Status, t.CreatedAt.UTC())
		if err != nil {
			_ = tx.Rollback()
			return classify(fmt.Errorf("insert ledger transaction: %w", err))
		}
	}
	return classify(tx.Commit())
}

func (r *Repository) ListLedgerBySeller(ctx context.Context, sellerID string) ([]domain.LedgerTransaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, order_id, seller_id, type, amount_minor, currency, status, created_at
		 FROM ledger_transactions WHERE seller_id = ? ORDER BY created_at DESC, id`), sellerID)
	if err != nil {
		return nil, classify(fmt.Errorf("query ledger: %w", err))
	}
	defer rows.Close()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var (
			t      domain.LedgerTransaction
			amount int64
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.SellerID, &t.Type, &amount, &t.Currency, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger transaction: %w", err)
		}
		t.Amount = pricing.FromMinorUnits(amount)
		out = append(out, t)
	}
	return out, rows.Err()
}
