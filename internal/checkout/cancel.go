package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/store"
)

// CancelCheckout abandons a checkout before its payment is confirmed. The
// cart, stock and wallets are untouched.
func (s *Service) CancelCheckout(ctx context.Context, sess session.Session, id string) (*domain.CheckoutResponse, error) {
	if sess.IsZero() {
		return nil, ErrUnauthenticated
	}
	cs, err := s.ownedSession(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if cs.Status == domain.CheckoutStatusCancelled {
		return responseFor(cs, nil), nil
	}

	// A confirmation holding the lock may be charging the buyer right now.
	ok, err := s.Locker.TryLock(ctx, lockScope, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock checkout: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer func() {
		if err := s.Locker.Unlock(context.WithoutCancel(ctx), lockScope, id); err != nil {
			s.log.WarnContext(ctx, "failed to release checkout lock", "checkout_id", id, "err", err)
		}
	}()

	if err := s.Sessions.CancelCheckoutSession(ctx, id); err != nil {
		if errors.Is(err, store.ErrIllegalStatusTransition) || errors.Is(err, store.ErrConflict) {
			return nil, ErrCannotCancel
		}
		return nil, err
	}
	metrics.CheckoutResult("cancel", "ok")
	s.log.InfoContext(ctx, "checkout cancelled", "checkout_id", id, "user_id", sess.UserID)

	cs.Status = domain.CheckoutStatusCancelled
	return responseFor(cs, nil), nil
}
