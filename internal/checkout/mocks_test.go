package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/notification"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

type fakeCarts struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	cleared []string
}

func (f *fakeCarts) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return &domain.Cart{UserID: userID}, nil
	}
	return c, nil
}

func (f *fakeCarts) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, userID)
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeCarts) put(userID string, items ...domain.CartItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = &domain.Cart{UserID: userID, Items: items}
}

type fakeStrategy struct {
	mu         sync.Mutex
	gateway    domain.Gateway
	currency   string
	initErr    error
	confirmErr error
	initiated  []payment.Request
	confirmed  int
	// onConfirm runs while the gateway call is in flight.
	onConfirm func()
}

func (f *fakeStrategy) Gateway() domain.Gateway { return f.gateway }
func (f *fakeStrategy) Currency() string        { return f.currency }

func (f *fakeStrategy) Initiate(_ context.Context, req payment.Request) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.initiated = append(f.initiated, req)
	intent := &payment.Intent{Gateway: f.gateway, Currency: req.Currency, Amount: req.Amount}
	if f.gateway == domain.GatewayCard {
		intent.ClientSecret = fmt.Sprintf("pi_%s_secret", req.CheckoutID)
	} else {
		intent.Reference = fmt.Sprintf("ref_%s", req.CheckoutID)
	}
	return intent, nil
}

func (f *fakeStrategy) Confirm(_ context.Context, intent payment.Intent, c payment.Confirmation) (*domain.PaymentResult, error) {
	f.mu.Lock()
	hook := f.onConfirm
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.gateway == domain.GatewayMobileMoney {
		if c.Reference != intent.Reference {
			return nil, &payment.PaymentError{Gateway: f.gateway, Code: "reference_mismatch", Message: "the payment reference does not match this checkout"}
		}
		return &domain.PaymentResult{Gateway: f.gateway, ID: c.Reference}, nil
	}
	return &domain.PaymentResult{Gateway: f.gateway, ID: "pi_paid"}, nil
}

func (f *fakeStrategy) initiateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.initiated)
}

type fakeNotifier struct {
	mu       sync.Mutex
	calls    int
	email    string
	placed   []*domain.Order
	warnings []notification.Warning
}

func (f *fakeNotifier) NotifyOrderPlaced(_ context.Context, email string, placed []*domain.Order) []notification.Warning {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.email = email
	f.placed = placed
	return f.warnings
}

type conflictingPlacer struct{ calls int }

func (p *conflictingPlacer) PlaceOrders(context.Context, orders.PlaceOrdersInput) ([]*domain.Order, error) {
	p.calls++
	return nil, fmt.Errorf("%w: commit attempts exhausted", store.ErrConflict)
}
