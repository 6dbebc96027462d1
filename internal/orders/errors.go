package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to order")
	ErrMissingSeller     = errors.New("cart item has no seller")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type MissingSellerError struct {
	ProductID string
	Name      string
}

func (e *MissingSellerError) Error() string {
	return fmt.Sprintf("%v: product %s (%s)", ErrMissingSeller, e.ProductID, e.Name)
}

func (e *MissingSellerError) Is(target error) bool { return target == ErrMissingSeller }

// InsufficientStockError names the first product that cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%v: product %s (%s) requested %d, available %d",
		ErrInsufficientStock, e.ProductID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
