package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/snapshot"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/google/uuid"
)

const droppedLineWarning = "An item in your cart is no longer available and was left out of this order."

// InitiateCheckout prices the cart, locks the conversion rate and opens a
// payment with the gateway for the shipping country. Repeating a request with
// the same idempotency key returns the checkout created the first time.
func (s *Service) InitiateCheckout(ctx context.Context, sess session.Session, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}
	log := s.log.With("user_id", sess.UserID, "idempotency_key", req.IdempotencyKey)

	existing, err := s.Sessions.GetCheckoutSessionByIdempotencyKey(ctx, sess.UserID, req.IdempotencyKey)
	if err != nil && !errors.Is(err, store.ErrIdempotencyKeyNotFound) {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		log.InfoContext(ctx, "duplicate checkout request", "checkout_id", existing.ID, "status", existing.Status)
		return responseFor(existing, nil), nil
	}

	shipping := req.Shipping.Normalize()
	if err := shipping.Validate(); err != nil {
		metrics.CheckoutResult("initiate", "invalid_shipping")
		return nil, err
	}

	cart, err := s.Carts.GetCart(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	snap, diags := s.Snapshots.Build(ctx, cart.Items)
	var warnings []string
	for _, d := range diags {
		if d.Dropped() {
			warnings = append(warnings, droppedLineWarning)
			break
		}
	}
	if snap.IsEmpty() {
		metrics.CheckoutResult("initiate", "empty_cart")
		return nil, orders.ErrEmptyCart
	}
	if err := checkSellers(snap); err != nil {
		metrics.CheckoutResult("initiate", "missing_seller")
		return nil, err
	}

	strategy, err := s.Payments.ForCountry(shipping.Country)
	if err != nil {
		return nil, err
	}
	rate, err := s.Rates.Rate(ctx, s.BaseCurrency, strategy.Currency())
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion rate: %w", err)
	}

	now := s.now().UTC()
	cs := &domain.CheckoutSession{
		ID:             uuid.NewString(),
		UserID:         sess.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         domain.CheckoutStatusInitiated,
		Snapshot:       *snap,
		Shipping:       shipping,
		Gateway:        strategy.Gateway(),
		Currency:       strategy.Currency(),
		ExchangeRate:   rate,
		TotalAmount:    pricing.SettlementTotal(snap.Lines, rate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Sessions.CreateCheckoutSession(ctx, cs); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race against the same request
			if existing, gerr := s.Sessions.GetCheckoutSessionByIdempotencyKey(ctx, sess.UserID, req.IdempotencyKey); gerr == nil {
				return responseFor(existing, nil), nil
			}
		}
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	log = log.With("checkout_id", cs.ID, "gateway", cs.Gateway)

	intent, err := strategy.Initiate(ctx, payment.Request{
		CheckoutID: cs.ID,
		UserID:     sess.UserID,
		Email:      shipping.Email,
		Amount:     cs.TotalAmount,
		Currency:   cs.Currency,
	})
	if err != nil {
		metrics.CheckoutResult("initiate", "payment_error")
		if ferr := s.Sessions.FailCheckoutSession(ctx, cs.ID, UserMessage(err)); ferr != nil {
			log.ErrorContext(ctx, "failed to mark checkout failed", "err", ferr)
		}
		return nil, err
	}

	ref := intent.Reference
	if cs.Gateway == domain.GatewayCard {
		ref = intent.ClientSecret
	}
	if err := s.Sessions.SetPaymentIntent(ctx, cs.ID, ref); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}
	cs.Status = domain.CheckoutStatusPaymentPending
	cs.PaymentRef = ref

	metrics.CheckoutResult("initiate", "ok")
	log.InfoContext(ctx, "checkout initiated", "total", cs.TotalAmount.String(), "currency", cs.Currency)
	return responseFor(cs, warnings), nil
}

// checkSellers refuses to charge for lines that could never become an order.
func checkSellers(snap *domain.CartSnapshot) error {
	for _, l := range snap.Lines {
		if l.Product.SellerID == "" {
			return &orders.MissingSellerError{ProductID: l.ProductID, Name: l.Product.Name}
		}
	}
	return nil
}

func responseFor(cs *domain.CheckoutSession, warnings []string) *domain.CheckoutResponse {
	resp := &domain.CheckoutResponse{
		CheckoutID:  cs.ID,
		Status:      cs.Status,
		Gateway:     cs.Gateway,
		Currency:    cs.Currency,
		TotalAmount: cs.TotalAmount,
		Warnings:    warnings,
	}
	if cs.Status == domain.CheckoutStatusPaymentPending {
		switch cs.Gateway {
		case domain.GatewayCard:
			resp.ClientSecret = cs.PaymentRef
		case domain.GatewayMobileMoney:
			resp.Reference = cs.PaymentRef
		}
	}
	return resp
}

var _ SnapshotBuilder = (*snapshot.Builder)(nil)
