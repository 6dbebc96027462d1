package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
)

type productRecord struct {
	product domain.Product
	version int64
}

// MemoryStore implements Transactor with in-memory storage. Transactions are
// optimistic: reads record a version and Commit fails with ErrConflict when
// any product read has changed since.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*productRecord
	wallets  map[string]*domain.Wallet
	orders   map[string]*domain.Order
	ledger   []domain.LedgerTransaction
	outbox   []OutboxEvent

	commitFailures []error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*productRecord),
		wallets:  make(map[string]*domain.Wallet),
		orders:   make(map[string]*domain.Order),
	}
}

// FailNextCommits makes the next len(errs) commits fail with the given errors
// without applying anything.
func (s *MemoryStore) FailNextCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFailures = append(s.commitFailures, errs...)
}

func (s *MemoryStore) UpsertProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.products[p.ID]
	if !ok {
		rec = &productRecord{}
		s.products[p.ID] = rec
	}
	rec.product = *p
	rec.version++
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	p := rec.product
	return &p, nil
}

func (s *MemoryStore) GetWallet(_ context.Context, sellerID string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[sellerID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, sellerID)
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListOrdersByCheckout(_ context.Context, checkoutID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.CheckoutID == checkoutID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out, nil
}

func (s *MemoryStore) AppendLedger(_ context.Context, txs []domain.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, txs...)
	return nil
}

func (s *MemoryStore) Ledger() []domain.LedgerTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LedgerTransaction(nil), s.ledger...)
}

func (s *MemoryStore) OutboxEvents() []OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OutboxEvent(nil), s.outbox...)
}

func (s *MemoryStore) Begin(_ context.Context) (UnitOfWork, error) {
	return &memoryUnitOfWork{s: s, reads: make(map[string]int64)}, nil
}

type memoryUnitOfWork struct {
	s      *MemoryStore
	reads  map[string]int64
	writes []Write
	done   bool
}

func (u *memoryUnitOfWork) ReadProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if u.done {
		return nil, ErrTransactionDone
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		rec, ok := u.s.products[id]
		if !ok {
			u.reads[id] = 0
			continue
		}
		out[id] = rec.product
		u.reads[id] = rec.version
	}
	return out, nil
}

func (u *memoryUnitOfWork) StageWrite(w Write) {
	u.writes = append(u.writes, w)
}

func (u *memoryUnitOfWork) Rollback() error {
	u.done = true
	return nil
}

// Commit validates everything first and only then applies, so a failed
// commit leaves no partial state behind.
func (u *memoryUnitOfWork) Commit(_ context.Context) error {
	if u.done {
		return ErrTransactionDone
	}
	u.done = true

	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commitFailures) > 0 {
		err := s.commitFailures[0]
		s.commitFailures = s.commitFailures[1:]
		return err
	}

	// First pass: validate
	for id, version := range u.reads {
		var current int64
		if rec, ok := s.products[id]; ok {
			current = rec.version
		}
		if current != version {
			return fmt.Errorf("%w: product %s changed", ErrConflict, id)
		}
	}
	newOrders := make(map[string]bool)
	for _, w := range u.writes {
		switch w := w.(type) {
		case StockUpdate:
			rec, ok := s.products[w.ProductID]
			if !ok || rec.product.Stock != w.Expected {
				return fmt.Errorf("%w: stock of %s changed", ErrConflict, w.ProductID)
			}
			if w.New < 0 {
				return fmt.Errorf("%w: product %s", ErrNegativeStock, w.ProductID)
			}
		case OrderInsert:
			if _, exists := s.orders[w.Order.ID]; exists || newOrders[w.Order.ID] {
				return fmt.Errorf("%w: order %s", ErrDuplicate, w.Order.ID)
			}
			for _, o := range s.orders {
				if o.CheckoutID == w.Order.CheckoutID && o.SellerID == w.Order.SellerID {
					return fmt.Errorf("%w: order for checkout %s seller %s", ErrDuplicate, o.CheckoutID, o.SellerID)
				}
			}
			newOrders[w.Order.ID] = true
		case WalletCredit, OutboxInsert:
		default:
			return fmt.Errorf("unsupported write %T", w)
		}
	}

	// Second pass: apply
	now := time.Now().UTC()
	for _, w := range u.writes {
		switch w := w.(type) {
		case StockUpdate:
			rec := s.products[w.ProductID]
			rec.product.Stock = w.New
			rec.product.UpdatedAt = now
			rec.version++
		case WalletCredit:
			wallet, ok := s.wallets[w.SellerID]
			if !ok {
				wallet = &domain.Wallet{
					SellerID:         w.SellerID,
					AvailableBalance: decimal.Zero,
					PendingBalance:   decimal.Zero,
					Currency:         w.Currency,
				}
				s.wallets[w.SellerID] = wallet
			}
			wallet.PendingBalance = wallet.PendingBalance.Add(w.Amount)
			wallet.UpdatedAt = now
		case OrderInsert:
			o := *w.Order
			s.orders[o.ID] = &o
		case OutboxInsert:
			e := w.Event
			e.ID = int64(len(s.outbox) + 1)
			s.outbox = append(s.outbox, e)
		}
	}
	return nil
}
