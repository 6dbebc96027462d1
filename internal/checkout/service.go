// Package checkout runs the buyer-facing checkout workflow: initiate a
// payment for the current cart, confirm it, and place the orders.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/notification"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/snapshot"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

type SessionStore interface {
	GetCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error)
	GetCheckoutSessionByIdempotencyKey(ctx context.Context, userID, key string) (*domain.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, s *domain.CheckoutSession) error
	SetPaymentIntent(ctx context.Context, id, paymentRef string) error
	SetPayment(ctx context.Context, id, paymentID string) error
	CompleteCheckoutSession(ctx context.Context, id string, orderIDs []string) error
	FailCheckoutSession(ctx context.Context, id, reason string) error
	CancelCheckoutSession(ctx context.Context, id string) error
}

type ProfileStore interface {
	GetShippingProfile(ctx context.Context, userID string) (*domain.ShippingDetails, error)
	SaveShippingProfile(ctx context.Context, userID string, d domain.ShippingDetails) error
}

type OutboxWriter interface {
	InsertOutboxEvent(ctx context.Context, e store.OutboxEvent) error
}

type Carts interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type SnapshotBuilder interface {
	Build(ctx context.Context, items []domain.CartItem) (*domain.CartSnapshot, []snapshot.Diagnostic)
}

type PaymentSelector interface {
	ForCountry(c domain.Country) (payment.Strategy, error)
	ForGateway(g domain.Gateway) (payment.Strategy, error)
}

type OrderPlacer interface {
	PlaceOrders(ctx context.Context, in orders.PlaceOrdersInput) ([]*domain.Order, error)
}

type OrderLister interface {
	ListOrdersByCheckout(ctx context.Context, checkoutID string) ([]*domain.Order, error)
}

type Notifier interface {
	NotifyOrderPlaced(ctx context.Context, buyerEmail string, placed []*domain.Order) []notification.Warning
}

type Locker interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
}

type Dependencies struct {
	Sessions     SessionStore
	Profiles     ProfileStore
	Outbox       OutboxWriter
	Carts        Carts
	Snapshots    SnapshotBuilder
	Payments     PaymentSelector
	Orders       OrderPlacer
	Placed       OrderLister
	Notifier     Notifier
	Locker       Locker
	Rates        pricing.RateProvider
	BaseCurrency string
}

type Service struct {
	Dependencies
	now func() time.Time
	log *slog.Logger
}

func NewService(deps Dependencies) *Service {
	return &Service{
		Dependencies: deps,
		now:          time.Now,
		log:          logging.New("checkout"),
	}
}

// GetCheckout returns a checkout owned by the session's user.
func (s *Service) GetCheckout(ctx context.Context, sess session.Session, id string) (*domain.CheckoutSession, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	return s.ownedSession(ctx, sess, id)
}

// ShippingProfile returns the saved shipping details, or a blank form carrying
// the account email when nothing was saved yet.
func (s *Service) ShippingProfile(ctx context.Context, sess session.Session) (*domain.ShippingDetails, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	p, err := s.Profiles.GetShippingProfile(ctx, sess.UserID)
	if err == nil {
		return p, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return &domain.ShippingDetails{Email: sess.Email}, nil
}

func (s *Service) SaveShippingProfile(ctx context.Context, sess session.Session, d domain.ShippingDetails) (*domain.ShippingDetails, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.Profiles.SaveShippingProfile(ctx, sess.UserID, d); err != nil {
		return nil, err
	}
	d.SaveInfo = true
	return &d, nil
}

func (s *Service) ownedSession(ctx context.Context, sess session.Session, id string) (*domain.CheckoutSession, error) {
	cs, err := s.Sessions.GetCheckoutSession(ctx, id)
	if isNotFound(err) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		return nil, err
	}
	// someone else's checkout looks the same as a missing one
	if cs.UserID != sess.UserID {
		return nil, ErrCheckoutNotFound
	}
	return cs, nil
}
