package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/cache"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrQuantityExceedsStock = errors.New("requested quantity exceeds available stock")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
)

// ProductReader looks up catalog products for stock checks.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartService struct {
	repo     CartRepository
	cache    cache.CartCache
	products ProductReader
	sfg      singleflight.Group // Prevents cache stampede
	log      *slog.Logger
}

func NewCartService(repo CartRepository, cache cache.CartCache, products ProductReader) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cache,
		products: products,
		log:      logging.New("cart"),
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get failed", "user_id", userID, "err", err)
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, userID, cart); err != nil {
				s.log.Warn("cache set failed", "user_id", userID, "err", err)
			}
		}()
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *CartService) AddItem(ctx context.Context, userID string, item domain.CartItem) error {
	if err := s.checkStock(ctx, item.ProductID, item.Quantity); err != nil {
		return err
	}
	if err := s.repo.AddItem(ctx, userID, item); err != nil {
		s.log.ErrorContext(ctx, "repo add item failed", "user_id", userID, "err", err)
		return err
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID string, quantity int) error {
	if err := s.checkStock(ctx, productID, quantity); err != nil {
		return err
	}
	if err := s.repo.UpdateItemQuantity(ctx, userID, productID, quantity); err != nil {
		s.log.ErrorContext(ctx, "repo update item quantity failed", "user_id", userID, "err", err)
		return err
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID string) error {
	if err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		s.log.ErrorContext(ctx, "repo remove item failed", "user_id", userID, "err", err)
		return err
	}
	s.invalidateCache(userID)
	return nil
}

// ClearCart empties the cart. Clearing an absent cart is not an error.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.repo.DeleteCart(ctx, userID); err != nil && !errors.Is(err, ErrCartNotFound) {
		s.log.ErrorContext(ctx, "repo delete cart failed", "user_id", userID, "err", err)
		return err
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) checkStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return fmt.Errorf("stock check for %s: %w", productID, err)
	}
	if quantity > p.Stock {
		return fmt.Errorf("%w: %s has %d left", ErrQuantityExceedsStock, p.Name, p.Stock)
	}
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate failed", "user_id", userID, "err", err)
	}
}
