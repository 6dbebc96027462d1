// Package store persists catalog, order, wallet and checkout state and
// provides the atomic unit of work used to place orders.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/retry"
	"github.com/shopspring/decimal"
)

// Common errors returned by the store
var (
	ErrNotFound                = errors.New("record not found")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrConflict                = errors.New("concurrent modification, transaction aborted")
	ErrPermissionDenied        = errors.New("permission denied by data store")
	ErrDuplicate               = errors.New("duplicate record")
	ErrTransactionDone         = errors.New("transaction already committed or rolled back")
	ErrNegativeStock           = errors.New("stock update would make stock negative")
	ErrIllegalStatusTransition = errors.New("illegal transition of checkout status")
)

// Write is a mutation staged on a UnitOfWork and applied at commit.
type Write interface {
	staged()
}

// StockUpdate sets a product's stock, provided it still holds Expected.
type StockUpdate struct {
	ProductID string
	Expected  int
	New       int
}

// WalletCredit adds Amount to a seller's pending balance, creating the wallet
// when it does not exist yet.
type WalletCredit struct {
	SellerID string
	Amount   decimal.Decimal
	Currency string
}

type OrderInsert struct {
	Order *domain.Order
}

type OutboxInsert struct {
	Event OutboxEvent
}

func (StockUpdate) staged()  {}
func (WalletCredit) staged() {}
func (OrderInsert) staged()  {}
func (OutboxInsert) staged() {}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// UnitOfWork reads inside a transaction and buffers writes until Commit.
// Either every staged write is applied or none is.
type UnitOfWork interface {
	ReadProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	StageWrite(w Write)
	Commit(ctx context.Context) error
	Rollback() error
}

type Transactor interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// RunInTransaction runs fn inside a fresh unit of work and commits it. When
// the commit loses a race (ErrConflict) the whole unit, reads included, is
// retried up to maxAttempts times. Errors returned by fn abort immediately.
func RunInTransaction(ctx context.Context, t Transactor, maxAttempts int, fn func(ctx context.Context, uow UnitOfWork) error) error {
	policy := retry.Policy{
		MaxAttempts: maxAttempts,
		Retryable: func(err error) bool {
			if errors.Is(err, ErrConflict) {
				metrics.CommitConflict()
				return true
			}
			return false
		},
		Backoff: retry.Exponential(10*time.Millisecond, 200*time.Millisecond),
	}

	return policy.Do(ctx, func(ctx context.Context) error {
		uow, err := t.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, uow); err != nil {
			_ = uow.Rollback()
			return err
		}
		return uow.Commit(ctx)
	})
}
