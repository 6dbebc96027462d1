// Package orders turns a paid cart into per-seller orders, decrementing stock
// and crediting seller wallets in one atomic unit of work.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type LedgerWriter interface {
	AppendLedger(ctx context.Context, txs []domain.LedgerTransaction) error
}

type Orchestrator struct {
	tx           store.Transactor
	ledger       LedgerWriter
	maxAttempts  int
	baseCurrency string
	now          func() time.Time
	newID        func() string
	log          *slog.Logger
}

func NewOrchestrator(tx store.Transactor, ledger LedgerWriter, baseCurrency string, maxAttempts int) *Orchestrator {
	return &Orchestrator{
		tx:           tx,
		ledger:       ledger,
		maxAttempts:  maxAttempts,
		baseCurrency: baseCurrency,
		now:          time.Now,
		newID:        uuid.NewString,
		log:          logging.New("orders"),
	}
}

// PlaceOrdersInput is a paid checkout. Lines carry base-currency prices;
// Rate converts them to Currency, the currency the buyer was charged in.
type PlaceOrdersInput struct {
	CheckoutID string
	UserID     string
	Lines      []domain.CartLine
	Shipping   domain.ShippingDetails
	Currency   string
	Rate       decimal.Decimal
	Payment    domain.PaymentResult
}

type sellerGroup struct {
	sellerID string
	lines    []domain.CartLine
}

// PlaceOrders creates one order per seller. Stock decrements, wallet credits,
// orders and their outbox events commit together or not at all.
func (o *Orchestrator) PlaceOrders(ctx context.Context, in PlaceOrdersInput) ([]*domain.Order, error) {
	lines := make([]domain.CartLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.Quantity >= 1 {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range lines {
		if l.Product.SellerID == "" {
			return nil, &MissingSellerError{ProductID: l.ProductID, Name: l.Product.Name}
		}
	}
	if in.Rate.IsZero() {
		in.Rate = decimal.NewFromInt(1)
	}

	groups := groupBySeller(lines)
	productIDs, requested := aggregate(lines)

	var placed []*domain.Order
	var shares map[string]decimal.Decimal
	err := store.RunInTransaction(ctx, o.tx, o.maxAttempts, func(ctx context.Context, uow store.UnitOfWork) error {
		products, err := uow.ReadProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		updates := make([]store.StockUpdate, 0, len(productIDs))
		for _, id := range productIDs {
			p, ok := products[id]
			if !ok || p.Stock-requested[id] < 0 {
				return &InsufficientStockError{
					ProductID: id,
					Name:      nameOf(lines, id, p),
					Requested: requested[id],
					Available: p.Stock,
				}
			}
			updates = append(updates, store.StockUpdate{ProductID: id, Expected: p.Stock, New: p.Stock - requested[id]})
		}

		now := o.now().UTC()
		placed = make([]*domain.Order, 0, len(groups))
		shares = make(map[string]decimal.Decimal, len(groups))
		for _, g := range groups {
			order := o.buildOrder(in, g, now)
			share := pricing.Subtotal(g.lines)

			payload, err := json.Marshal(order)
			if err != nil {
				return fmt.Errorf("marshal order event: %w", err)
			}

			uow.StageWrite(store.OrderInsert{Order: order})
			uow.StageWrite(store.WalletCredit{SellerID: g.sellerID, Amount: share, Currency: o.baseCurrency})
			uow.StageWrite(store.OutboxInsert{Event: store.OutboxEvent{
				AggregateID: order.ID,
				EventType:   EventOrderPlaced,
				Payload:     payload,
				CreatedAt:   now,
			}})
			placed = append(placed, order)
			shares[order.ID] = share
		}
		for _, u := range updates {
			uow.StageWrite(u)
		}
		return nil
	})
	if err != nil {
		o.log.WarnContext(ctx, "place orders failed", "checkout_id", in.CheckoutID, "err", err)
		return nil, err
	}

	metrics.OrdersCreated(string(in.Payment.Gateway), len(placed))
	o.log.InfoContext(ctx, "orders placed", "checkout_id", in.CheckoutID, "orders", len(placed))
	o.recordSales(ctx, placed, shares)
	return placed, nil
}

func (o *Orchestrator) buildOrder(in PlaceOrdersInput, g sellerGroup, now time.Time) *domain.Order {
	order := &domain.Order{
		ID:             o.newID(),
		CheckoutID:     in.CheckoutID,
		UserID:         in.UserID,
		SellerID:       g.sellerID,
		Items:          make([]domain.OrderItem, 0, len(g.lines)),
		Currency:       in.Currency,
		Status:         domain.OrderStatusPendingApproval,
		PaymentGateway: in.Payment.Gateway,
		PaymentID:      in.Payment.ID,
		Shipping:       in.Shipping,
		CreatedAt:      now,
	}
	for _, l := range g.lines {
		var image string
		if len(l.Product.ImageURLs) > 0 {
			image = l.Product.ImageURLs[0]
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			Price:     pricing.SettlementUnitPrice(l, in.Rate),
			ImageURL:  image,
		})
	}
	order.TotalAmount = order.ItemsTotal()
	return order
}

// recordSales appends the ledger entries for committed orders. The orders
// stand even if this fails.
func (o *Orchestrator) recordSales(ctx context.Context, placed []*domain.Order, shares map[string]decimal.Decimal) {
	if o.ledger == nil {
		return
	}
	txs := make([]domain.LedgerTransaction, 0, len(placed))
	for _, order := range placed {
		txs = append(txs, domain.LedgerTransaction{
			ID:        o.newID(),
			OrderID:   order.ID,
			SellerID:  order.SellerID,
			Type:      domain.LedgerTypeSale,
			Amount:    shares[order.ID],
			Currency:  o.baseCurrency,
			Status:    domain.LedgerStatusPending,
			CreatedAt: order.CreatedAt,
		})
	}
	if err := o.ledger.AppendLedger(ctx, txs); err != nil {
		o.log.ErrorContext(ctx, "append sale ledger failed", "orders", len(placed), "err", err)
	}
}

func groupBySeller(lines []domain.CartLine) []sellerGroup {
	index := make(map[string]int)
	var groups []sellerGroup
	for _, l := range lines {
		i, ok := index[l.Product.SellerID]
		if !ok {
			i = len(groups)
			index[l.Product.SellerID] = i
			groups = append(groups, sellerGroup{sellerID: l.Product.SellerID})
		}
		groups[i].lines = append(groups[i].lines, l)
	}
	return groups
}

func aggregate(lines []domain.CartLine) ([]string, map[string]int) {
	var ids []string
	qty := make(map[string]int)
	for _, l := range lines {
		if _, ok := qty[l.ProductID]; !ok {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}
	return ids, qty
}

func nameOf(lines []domain.CartLine, id string, p domain.Product) string {
	if p.Name != "" {
		return p.Name
	}
	for _, l := range lines {
		if l.ProductID == id {
			return l.Product.Name
		}
	}
	return id
}
