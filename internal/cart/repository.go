package cart

import (
	"context"

	"github.com/emmanuel-nwafor/foremade/domain"
)

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	AddItem(ctx context.Context, userID string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, userID string, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID string) error
	DeleteCart(ctx context.Context, userID string) error
}
