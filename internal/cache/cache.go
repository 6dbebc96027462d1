// Package cache keeps hot cart reads and per-checkout locks in Redis.
package cache

import (
	"context"
	"errors"

	"github.com/emmanuel-nwafor/foremade/domain"
)

// ErrCacheMiss is returned by Get when no cart is cached for the user.
var ErrCacheMiss = errors.New("cart not cached")

// CartCache is a read-through copy of the cart store. Entries are dropped on
// every cart write rather than updated.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var _ CartCache = RedisCache{}
