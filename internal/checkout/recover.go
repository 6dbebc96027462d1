package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/session"
)

// RecoverCheckout finishes a checkout that was paid but never completed,
// typically because the process died between payment and order placement.
// Orders already committed are adopted; otherwise placement is retried.
func (s *Service) RecoverCheckout(ctx context.Context, cs *domain.CheckoutSession) error {
	if cs.Status != domain.CheckoutStatusPaymentCompleted {
		return nil
	}
	log := s.log.With("user_id", cs.UserID, "checkout_id", cs.ID, "recovery", true)

	ok, err := s.Locker.TryLock(ctx, lockScope, cs.ID)
	if err != nil {
		return fmt.Errorf("failed to lock checkout: %w", err)
	}
	if !ok {
		return ErrCheckoutInProgress
	}
	defer func() {
		if err := s.Locker.Unlock(context.WithoutCancel(ctx), lockScope, cs.ID); err != nil {
			log.WarnContext(ctx, "failed to release checkout lock", "err", err)
		}
	}()

	ids, err := s.adoptOrders(ctx, log, cs)
	if err != nil {
		metrics.SessionRecovered("error")
		return err
	}
	if ids != nil {
		metrics.SessionRecovered("adopted")
		return nil
	}

	paid := domain.PaymentResult{Gateway: cs.Gateway, ID: cs.PaymentID}
	if _, err := s.placeOrders(ctx, log, session.Session{UserID: cs.UserID}, cs, paid); err != nil {
		if terminalOrderError(err) {
			metrics.SessionRecovered("refunded")
		} else {
			metrics.SessionRecovered("error")
		}
		return err
	}
	metrics.SessionRecovered("placed")
	return nil
}

// adoptOrders completes a paid checkout whose orders were already committed.
// It returns nil ids when there is nothing to adopt.
func (s *Service) adoptOrders(ctx context.Context, log *slog.Logger, cs *domain.CheckoutSession) ([]string, error) {
	existing, err := s.Placed.ListOrdersByCheckout(ctx, cs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of checkout: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	ids := orderIDs(existing)
	if err := s.Sessions.CompleteCheckoutSession(ctx, cs.ID, ids); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "adopted committed orders of checkout", "orders", len(ids))
	return ids, nil
}
