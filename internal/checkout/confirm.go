package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

const (
	lockScope           = "checkout"
	EventRefundRequired = "CheckoutRefundRequired"
	postCommitTimeout   = 30 * time.Second
)

// ConfirmCheckout confirms the payment and places the orders. Once the
// gateway reports success the rest runs to completion even if the caller
// goes away.
func (s *Service) ConfirmCheckout(ctx context.Context, sess session.Session, req domain.ConfirmRequest) (*domain.ConfirmResponse, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	log := s.log.With("user_id", sess.UserID, "checkout_id", req.CheckoutID)

	ok, err := s.Locker.TryLock(ctx, lockScope, req.CheckoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock checkout: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer func() {
		if err := s.Locker.Unlock(context.WithoutCancel(ctx), lockScope, req.CheckoutID); err != nil {
			log.WarnContext(ctx, "failed to release checkout lock", "err", err)
		}
	}()

	cs, err := s.ownedSession(ctx, sess, req.CheckoutID)
	if err != nil {
		return nil, err
	}

	var result domain.PaymentResult
	switch cs.Status {
	case domain.CheckoutStatusCompleted:
		return &domain.ConfirmResponse{CheckoutID: cs.ID, Status: cs.Status, OrderIDs: cs.OrderIDs}, nil
	case domain.CheckoutStatusFailed, domain.CheckoutStatusCancelled:
		return nil, ErrCheckoutClosed
	case domain.CheckoutStatusInitiated:
		return nil, ErrPaymentNotStarted
	case domain.CheckoutStatusPaymentCompleted:
		// paid on an earlier attempt that never completed
		ids, err := s.adoptOrders(ctx, log, cs)
		if err != nil {
			return nil, err
		}
		if ids != nil {
			return &domain.ConfirmResponse{CheckoutID: cs.ID, Status: domain.CheckoutStatusCompleted, OrderIDs: ids}, nil
		}
		result = domain.PaymentResult{Gateway: cs.Gateway, ID: cs.PaymentID}
	case domain.CheckoutStatusPaymentPending:
		paid, err := s.confirmPayment(ctx, log, cs, req)
		if err != nil {
			metrics.CheckoutResult("confirm", "payment_error")
			log.WarnContext(ctx, "payment confirmation failed", "err", err)
			return nil, err
		}
		result = *paid
	default:
		return nil, fmt.Errorf("unexpected checkout status %s", cs.Status)
	}

	return s.placeOrders(context.WithoutCancel(ctx), log, sess, cs, result)
}

// placeOrders commits the orders of a paid checkout, completes the session
// and runs the follow-ups.
func (s *Service) placeOrders(ctx context.Context, log *slog.Logger, sess session.Session, cs *domain.CheckoutSession, paid domain.PaymentResult) (*domain.ConfirmResponse, error) {
	placed, err := s.Orders.PlaceOrders(ctx, orders.PlaceOrdersInput{
		CheckoutID: cs.ID,
		UserID:     cs.UserID,
		Lines:      cs.Snapshot.Lines,
		Shipping:   cs.Shipping,
		Currency:   cs.Currency,
		Rate:       cs.ExchangeRate,
		Payment:    paid,
	})
	if err != nil {
		return nil, s.handleOrderFailure(ctx, log, cs, paid, err)
	}

	ids := orderIDs(placed)
	if err := s.Sessions.CompleteCheckoutSession(ctx, cs.ID, ids); err != nil {
		log.ErrorContext(ctx, "failed to complete checkout session", "err", err)
	}
	metrics.CheckoutResult("confirm", "ok")
	log.InfoContext(ctx, "checkout completed", "orders", len(ids))

	resp := &domain.ConfirmResponse{CheckoutID: cs.ID, Status: domain.CheckoutStatusCompleted, OrderIDs: ids}
	s.afterCommit(ctx, log, sess, cs, placed, resp)
	return resp, nil
}

func orderIDs(placed []*domain.Order) []string {
	ids := make([]string, 0, len(placed))
	for _, o := range placed {
		ids = append(ids, o.ID)
	}
	return ids
}

func (s *Service) confirmPayment(ctx context.Context, log *slog.Logger, cs *domain.CheckoutSession, req domain.ConfirmRequest) (*domain.PaymentResult, error) {
	strategy, err := s.Payments.ForGateway(cs.Gateway)
	if err != nil {
		return nil, err
	}
	intent := payment.Intent{Gateway: cs.Gateway, Currency: cs.Currency, Amount: cs.TotalAmount}
	if cs.Gateway == domain.GatewayCard {
		intent.ClientSecret = cs.PaymentRef
	} else {
		intent.Reference = cs.PaymentRef
	}

	paid, err := strategy.Confirm(ctx, intent, payment.Confirmation{
		PaymentMethodID: req.PaymentMethodID,
		Reference:       req.Reference,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.SetPayment(context.WithoutCancel(ctx), cs.ID, paid.ID); err != nil {
		return nil, s.handleUnrecordedPayment(context.WithoutCancel(ctx), log, cs, *paid, err)
	}
	return paid, nil
}

// handleUnrecordedPayment refunds a charge the session could not take, for
// example because the checkout was cancelled while the gateway was working.
func (s *Service) handleUnrecordedPayment(ctx context.Context, log *slog.Logger, cs *domain.CheckoutSession, paid domain.PaymentResult, err error) error {
	err = fmt.Errorf("%w: payment %s: %w", ErrPaymentNotRecorded, paid.ID, err)
	metrics.CheckoutResult("confirm", "unrecorded_payment")
	log.ErrorContext(ctx, "payment succeeded but was not recorded", "payment_id", paid.ID, "err", err)

	if ferr := s.Sessions.FailCheckoutSession(ctx, cs.ID, UserMessage(err)); ferr != nil {
		log.WarnContext(ctx, "failed to mark checkout failed", "err", ferr)
	}
	if qerr := s.queueRefund(ctx, cs, paid, err); qerr != nil {
		log.ErrorContext(ctx, "failed to queue refund", "payment_id", paid.ID, "err", qerr)
	}
	return err
}

// handleOrderFailure closes a paid checkout whose orders can never be placed
// and queues a refund. Other failures leave the checkout PAYMENT_COMPLETED for
// the recovery loop.
func (s *Service) handleOrderFailure(ctx context.Context, log *slog.Logger, cs *domain.CheckoutSession, paid domain.PaymentResult, err error) error {
	if !terminalOrderError(err) {
		metrics.CheckoutResult("confirm", "order_error")
		log.ErrorContext(ctx, "placing orders failed, left for recovery", "err", err)
		return err
	}

	metrics.CheckoutResult("confirm", "rejected")
	log.WarnContext(ctx, "placing orders rejected", "err", err)
	if ferr := s.Sessions.FailCheckoutSession(ctx, cs.ID, UserMessage(err)); ferr != nil {
		log.ErrorContext(ctx, "failed to mark checkout failed", "err", ferr)
	}
	if qerr := s.queueRefund(ctx, cs, paid, err); qerr != nil {
		log.ErrorContext(ctx, "failed to queue refund", "err", qerr)
	}
	return err
}

type refundRequired struct {
	CheckoutID string         `json:"checkout_id"`
	UserID     string         `json:"user_id"`
	Gateway    domain.Gateway `json:"gateway"`
	PaymentID  string         `json:"payment_id"`
	Amount     string         `json:"amount"`
	Currency   string         `json:"currency"`
	Reason     string         `json:"reason"`
	At         time.Time      `json:"at"`
}

func (s *Service) queueRefund(ctx context.Context, cs *domain.CheckoutSession, paid domain.PaymentResult, cause error) error {
	if s.Outbox == nil {
		return nil
	}
	payload, err := json.Marshal(refundRequired{
		CheckoutID: cs.ID,
		UserID:     cs.UserID,
		Gateway:    paid.Gateway,
		PaymentID:  paid.ID,
		Amount:     cs.TotalAmount.StringFixed(2),
		Currency:   cs.Currency,
		Reason:     cause.Error(),
		At:         s.now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.Outbox.InsertOutboxEvent(ctx, store.OutboxEvent{
		AggregateID: cs.ID,
		EventType:   EventRefundRequired,
		Payload:     payload,
	})
}

// afterCommit runs the best-effort follow-ups of a completed checkout.
func (s *Service) afterCommit(ctx context.Context, log *slog.Logger, sess session.Session, cs *domain.CheckoutSession, placed []*domain.Order, resp *domain.ConfirmResponse) {
	ctx, cancel := context.WithTimeout(ctx, postCommitTimeout)
	defer cancel()

	email := cs.Shipping.Email
	if email == "" {
		email = sess.Email
	}
	for _, w := range s.Notifier.NotifyOrderPlaced(ctx, email, placed) {
		resp.Warnings = append(resp.Warnings, w.Message)
	}

	if err := s.Carts.ClearCart(ctx, cs.UserID); err != nil {
		log.WarnContext(ctx, "failed to clear cart", "err", err)
	}

	if cs.Shipping.SaveInfo {
		if err := s.Profiles.SaveShippingProfile(ctx, cs.UserID, cs.Shipping); err != nil {
			log.WarnContext(ctx, "failed to save shipping profile", "err", err)
		}
	}
}
