package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/cache"
	"github.com/emmanuel-nwafor/foremade/internal/notification"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/snapshot"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	repo     *store.Repository
	carts    *fakeCarts
	card     *fakeStrategy
	mobile   *fakeStrategy
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
}

var buyer = session.Session{UserID: "buyer-1", Email: "account@example.com"}

func nigeria() domain.ShippingDetails {
	return domain.ShippingDetails{
		Name:    "Ada Obi",
		Email:   "ada@example.com",
		Phone:   "+2348000000000",
		Address: "12 Marina",
		City:    "Lagos",
		Country: "nigeria",
	}
}

func uk() domain.ShippingDetails {
	d := nigeria()
	d.City = "London"
	d.Country = "United Kingdom"
	return d
}

func newFixture(t *testing.T) *fixture {
	repo, err := store.NewSQLiteRepository(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations("../store/migrations"))

	ctx := context.Background()
	for _, p := range []*domain.Product{
		{ID: "P1", Name: "Ankara Tote", Category: "bags", SellerID: "S1", BasePrice: decimal.NewFromInt(1000), Stock: 5},
		{ID: "P2", Name: "Silk Scarf", Category: "scarves", SellerID: "S2", BasePrice: decimal.NewFromInt(200), Stock: 1},
	} {
		require.NoError(t, repo.UpsertProduct(ctx, p))
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	rates, err := pricing.NewStaticRates("NGN", map[string]string{"GBP": "0.00048"})
	require.NoError(t, err)

	f := &fixture{
		repo:     repo,
		carts:    &fakeCarts{carts: map[string]*domain.Cart{}},
		card:     &fakeStrategy{gateway: domain.GatewayCard, currency: "GBP"},
		mobile:   &fakeStrategy{gateway: domain.GatewayMobileMoney, currency: "NGN"},
		notifier: &fakeNotifier{},
		redis:    mr,
	}
	f.svc = NewService(Dependencies{
		Sessions:     repo,
		Profiles:     repo,
		Outbox:       repo,
		Carts:        f.carts,
		Snapshots:    snapshot.NewBuilder(repo, pricing.NewFeeTable(repo), "NGN"),
		Payments:     payment.NewSelector(f.card, f.mobile),
		Orders:       orders.NewOrchestrator(repo, repo, "NGN", 3),
		Placed:       repo,
		Notifier:     f.notifier,
		Locker:       cache.NewRedisLocker(rdb, time.Minute),
		Rates:        rates,
		BaseCurrency: "NGN",
	})
	return f
}

func (f *fixture) initiate(t *testing.T, shipping domain.ShippingDetails, key string) *domain.CheckoutResponse {
	resp, err := f.svc.InitiateCheckout(context.Background(), buyer, domain.CheckoutRequest{IdempotencyKey: key, Shipping: shipping})
	require.NoError(t, err)
	return resp
}

func TestInitiateCheckout_NigeriaUsesMobileMoney(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 2})

	resp := f.initiate(t, nigeria(), "key-1")

	assert.Equal(t, domain.CheckoutStatusPaymentPending, resp.Status)
	assert.Equal(t, domain.GatewayMobileMoney, resp.Gateway)
	assert.Equal(t, "NGN", resp.Currency)
	assert.Equal(t, "2290.00", resp.TotalAmount.StringFixed(2))
	assert.Equal(t, "ref_"+resp.CheckoutID, resp.Reference)
	assert.Empty(t, resp.ClientSecret)

	require.Equal(t, 1, f.mobile.initiateCalls())
	assert.Equal(t, "ada@example.com", f.mobile.initiated[0].Email)

	cs, err := f.repo.GetCheckoutSession(context.Background(), resp.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.CountryNigeria, cs.Shipping.Country)
	assert.Equal(t, "1", cs.ExchangeRate.String())
}

func TestInitiateCheckout_UnitedKingdomUsesCardInGBP(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 2})

	resp := f.initiate(t, uk(), "key-uk")

	assert.Equal(t, domain.GatewayCard, resp.Gateway)
	assert.Equal(t, "GBP", resp.Currency)
	assert.Equal(t, "1.10", resp.TotalAmount.StringFixed(2))
	assert.NotEmpty(t, resp.ClientSecret)
	assert.Equal(t, 0, f.mobile.initiateCalls())
}

func TestInitiateCheckout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})

	first := f.initiate(t, nigeria(), "same-key")
	second := f.initiate(t, nigeria(), "same-key")

	assert.Equal(t, first.CheckoutID, second.CheckoutID)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, 1, f.mobile.initiateCalls())
}

func TestInitiateCheckout_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, session.Session{}, domain.CheckoutRequest{IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.InitiateCheckout(ctx, buyer, domain.CheckoutRequest{Shipping: nigeria()})
	assert.ErrorIs(t, err, ErrMissingIdempotencyKey)

	bad := nigeria()
	bad.Email = "not-an-email"
	_, err = f.svc.InitiateCheckout(ctx, buyer, domain.CheckoutRequest{IdempotencyKey: "k1", Shipping: bad})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")

	_, err = f.svc.InitiateCheckout(ctx, buyer, domain.CheckoutRequest{IdempotencyKey: "k2", Shipping: nigeria()})
	assert.ErrorIs(t, err, orders.ErrEmptyCart)

	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "GONE", Quantity: 1})
	_, err = f.svc.InitiateCheckout(ctx, buyer, domain.CheckoutRequest{IdempotencyKey: "k3", Shipping: nigeria()})
	assert.ErrorIs(t, err, orders.ErrEmptyCart)

	require.NoError(t, f.repo.UpsertProduct(ctx, &domain.Product{ID: "ORPHAN", Name: "No Seller", BasePrice: decimal.NewFromInt(1), Stock: 1}))
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "ORPHAN", Quantity: 1})
	_, err = f.svc.InitiateCheckout(ctx, buyer, domain.CheckoutRequest{IdempotencyKey: "k4", Shipping: nigeria()})
	assert.ErrorIs(t, err, orders.ErrMissingSeller)

	assert.Equal(t, 0, f.mobile.initiateCalls())
}

func TestInitiateCheckout_DroppedLinesBecomeWarnings(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1}, domain.CartItem{ProductID: "GONE", Quantity: 1})

	resp := f.initiate(t, nigeria(), "key-w")
	assert.Len(t, resp.Warnings, 1)
	assert.Equal(t, "1145.00", resp.TotalAmount.StringFixed(2))
}

func TestInitiateCheckout_PaymentFailureFailsSession(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	f.mobile.initErr = &payment.TransientNetworkError{Op: "/initiate-paystack-payment", Err: context.DeadlineExceeded}

	_, err := f.svc.InitiateCheckout(context.Background(), buyer, domain.CheckoutRequest{IdempotencyKey: "k", Shipping: nigeria()})
	require.Error(t, err)

	cs, err := f.repo.GetCheckoutSessionByIdempotencyKey(context.Background(), buyer.UserID, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusFailed, cs.Status)
}

func TestConfirmCheckout_PlacesOrdersAndFollowsUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 2}, domain.CartItem{ProductID: "P2", Quantity: 1})
	shipping := nigeria()
	shipping.SaveInfo = true
	started := f.initiate(t, shipping, "key-1")

	resp, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, resp.Status)
	require.Len(t, resp.OrderIDs, 2)
	assert.Empty(t, resp.Warnings)

	placed, err := f.repo.ListOrdersByCheckout(ctx, started.CheckoutID)
	require.NoError(t, err)
	require.Len(t, placed, 2)
	for _, o := range placed {
		assert.Equal(t, started.Reference, o.PaymentID)
		assert.True(t, o.TotalAmount.Equal(o.ItemsTotal()))
	}

	p1, _ := f.repo.GetProduct(ctx, "P1")
	p2, _ := f.repo.GetProduct(ctx, "P2")
	assert.Equal(t, 3, p1.Stock)
	assert.Equal(t, 0, p2.Stock)

	w, err := f.repo.GetWallet(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "2290.00", w.PendingBalance.StringFixed(2))

	cs, _ := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
	assert.ElementsMatch(t, resp.OrderIDs, cs.OrderIDs)

	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, "ada@example.com", f.notifier.email)
	assert.Equal(t, []string{buyer.UserID}, f.carts.cleared)

	profile, err := f.repo.GetShippingProfile(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Lagos", profile.City)

	again, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.NoError(t, err)
	assert.ElementsMatch(t, resp.OrderIDs, again.OrderIDs)
	assert.Equal(t, 1, f.mobile.confirmed)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestConfirmCheckout_PaymentDeclineKeepsCheckoutOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	_, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: "forged"})
	var perr *payment.PaymentError
	require.ErrorAs(t, err, &perr)

	cs, _ := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusPaymentPending, cs.Status)
	placed, _ := f.repo.ListOrdersByCheckout(ctx, started.CheckoutID)
	assert.Empty(t, placed)
	p, _ := f.repo.GetProduct(ctx, "P1")
	assert.Equal(t, 5, p.Stock)

	resp, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.NoError(t, err)
	assert.Len(t, resp.OrderIDs, 1)
}

func TestConfirmCheckout_InsufficientStockFailsAndQueuesRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 2})
	started := f.initiate(t, uk(), "key-1")

	p, _ := f.repo.GetProduct(ctx, "P1")
	p.Stock = 1
	require.NoError(t, f.repo.UpsertProduct(ctx, p))

	_, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, PaymentMethodID: "pm_card"})
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	cs, _ := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusFailed, cs.Status)
	assert.Equal(t, UserMessage(err), cs.FailureReason)
	assert.Equal(t, "pi_paid", cs.PaymentID)

	events, err := f.repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRefundRequired, events[0].EventType)
	assert.Equal(t, started.CheckoutID, events[0].AggregateID)

	assert.Empty(t, f.carts.cleared)
	assert.Equal(t, 0, f.notifier.calls)
	_, err = f.repo.GetWallet(ctx, "S1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmCheckout_NotificationWarningsDoNotUndoOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.warnings = []notification.Warning{{Kind: notification.KindBuyerConfirmation, Message: "email failed"}}
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	resp, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.NoError(t, err)
	assert.Equal(t, []string{"email failed"}, resp.Warnings)

	o, err := f.repo.GetOrder(ctx, resp.OrderIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingApproval, o.Status)
}

func TestConfirmCheckout_LockedCheckout(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	require.NoError(t, f.redis.Set("idemp:checkout:"+started.CheckoutID, "1"))
	_, err := f.svc.ConfirmCheckout(context.Background(), buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, 0, f.mobile.confirmed)
}

func TestCancelCheckout_RefusedWhileConfirmationIsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, uk(), "key-1")

	var cancelErr error
	f.card.onConfirm = func() {
		_, cancelErr = f.svc.CancelCheckout(ctx, buyer, started.CheckoutID)
	}

	resp, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.ErrorIs(t, cancelErr, ErrCheckoutInProgress)
	assert.Len(t, resp.OrderIDs, 1)

	cs, _ := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
	assert.Equal(t, "pi_paid", cs.PaymentID)
}

func TestConfirmCheckout_RefundsPaymentThatCannotBeRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, uk(), "key-1")

	// another instance closes the checkout while the card is being charged
	f.card.onConfirm = func() {
		require.NoError(t, f.repo.CancelCheckoutSession(ctx, started.CheckoutID))
	}

	_, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, PaymentMethodID: "pm_card"})
	require.ErrorIs(t, err, ErrPaymentNotRecorded)
	assert.Contains(t, UserMessage(err), "refunded")

	placed, _ := f.repo.ListOrdersByCheckout(ctx, started.CheckoutID)
	assert.Empty(t, placed)
	p, _ := f.repo.GetProduct(ctx, "P1")
	assert.Equal(t, 5, p.Stock)

	events, err := f.repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRefundRequired, events[0].EventType)
	var refund map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &refund))
	assert.Equal(t, "pi_paid", refund["payment_id"])
	assert.Equal(t, started.CheckoutID, refund["checkout_id"])
}

func TestConfirmCheckout_CommitConflictsLeaveCheckoutForRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	placer := &conflictingPlacer{}
	f.svc.Orders = placer
	_, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 1, placer.calls)

	cs, _ := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusPaymentCompleted, cs.Status)
	assert.Empty(t, cs.FailureReason)
	events, err := f.repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	f.svc.Orders = orders.NewOrchestrator(f.repo, f.repo, "NGN", 3)
	require.NoError(t, f.svc.RecoverCheckout(ctx, cs))
	cs, _ = f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
	assert.Len(t, cs.OrderIDs, 1)
}

func TestConfirmCheckout_AdoptsOrdersOfEarlierAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")
	require.NoError(t, f.repo.SetPayment(ctx, started.CheckoutID, started.Reference))
	cs, err := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	require.NoError(t, err)

	placed, err := f.svc.Orders.PlaceOrders(ctx, orders.PlaceOrdersInput{
		CheckoutID: cs.ID,
		UserID:     cs.UserID,
		Lines:      cs.Snapshot.Lines,
		Shipping:   cs.Shipping,
		Currency:   cs.Currency,
		Rate:       cs.ExchangeRate,
		Payment:    domain.PaymentResult{Gateway: cs.Gateway, ID: cs.PaymentID},
	})
	require.NoError(t, err)

	resp, err := f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, resp.Status)
	assert.Equal(t, []string{placed[0].ID}, resp.OrderIDs)
	assert.Equal(t, 0, f.mobile.confirmed)

	p, _ := f.repo.GetProduct(ctx, "P1")
	assert.Equal(t, 4, p.Stock)
	cs, _ = f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
}

func TestConfirmCheckout_OtherUsersCheckoutIsHidden(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	intruder := session.Session{UserID: "someone-else"}
	_, err := f.svc.ConfirmCheckout(context.Background(), intruder, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
	_, err = f.svc.GetCheckout(context.Background(), intruder, started.CheckoutID)
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	cs, err := f.svc.GetCheckout(context.Background(), buyer, started.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusPaymentPending, cs.Status)
}

func TestRecoverCheckout_PlacesOrdersOfPaidCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")
	require.NoError(t, f.repo.SetPayment(ctx, started.CheckoutID, "ref-paid"))

	cs, err := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RecoverCheckout(ctx, cs))

	cs, _ = f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
	require.Len(t, cs.OrderIDs, 1)
	o, err := f.repo.GetOrder(ctx, cs.OrderIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "ref-paid", o.PaymentID)
	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, 0, f.mobile.confirmed)
}

func TestRecoverCheckout_AdoptsCommittedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")
	require.NoError(t, f.repo.SetPayment(ctx, started.CheckoutID, "ref-paid"))
	cs, err := f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	require.NoError(t, err)

	placed, err := f.svc.Orders.PlaceOrders(ctx, orders.PlaceOrdersInput{
		CheckoutID: cs.ID,
		UserID:     cs.UserID,
		Lines:      cs.Snapshot.Lines,
		Shipping:   cs.Shipping,
		Currency:   cs.Currency,
		Rate:       cs.ExchangeRate,
		Payment:    domain.PaymentResult{Gateway: cs.Gateway, ID: cs.PaymentID},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RecoverCheckout(ctx, cs))

	cs, _ = f.repo.GetCheckoutSession(ctx, started.CheckoutID)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)
	assert.Equal(t, []string{placed[0].ID}, cs.OrderIDs)
	p, _ := f.repo.GetProduct(ctx, "P1")
	assert.Equal(t, 4, p.Stock)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestRecoverCheckout_IgnoresOpenCheckouts(t *testing.T) {
	f := newFixture(t)
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	cs, err := f.repo.GetCheckoutSession(context.Background(), started.CheckoutID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RecoverCheckout(context.Background(), cs))

	placed, _ := f.repo.ListOrdersByCheckout(context.Background(), started.CheckoutID)
	assert.Empty(t, placed)
}

func TestCancelCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.put(buyer.UserID, domain.CartItem{ProductID: "P1", Quantity: 1})
	started := f.initiate(t, nigeria(), "key-1")

	resp, err := f.svc.CancelCheckout(ctx, buyer, started.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCancelled, resp.Status)

	_, err = f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: started.CheckoutID, Reference: started.Reference})
	assert.ErrorIs(t, err, ErrCheckoutClosed)
	assert.Empty(t, f.carts.cleared)

	done := f.initiate(t, nigeria(), "key-2")
	_, err = f.svc.ConfirmCheckout(ctx, buyer, domain.ConfirmRequest{CheckoutID: done.CheckoutID, Reference: done.Reference})
	require.NoError(t, err)
	_, err = f.svc.CancelCheckout(ctx, buyer, done.CheckoutID)
	assert.ErrorIs(t, err, ErrCannotCancel)
}

func TestShippingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.ShippingProfile(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, "account@example.com", p.Email)

	_, err = f.svc.SaveShippingProfile(ctx, buyer, domain.ShippingDetails{Name: "x"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	saved, err := f.svc.SaveShippingProfile(ctx, buyer, uk())
	require.NoError(t, err)
	assert.Equal(t, domain.CountryUnitedKingdom, saved.Country)

	p, err = f.svc.ShippingProfile(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, "London", p.City)
}

func TestUserMessage_DistinctPerErrorClass(t *testing.T) {
	errs := []error{
		&domain.ValidationError{Fields: map[string]string{"email": "invalid"}},
		&orders.InsufficientStockError{ProductID: "P1", Name: "Tote", Requested: 5, Available: 3},
		orders.ErrEmptyCart,
		&orders.MissingSellerError{ProductID: "P1"},
		store.ErrPermissionDenied,
		&payment.PaymentError{Gateway: domain.GatewayCard, Code: "card_declined", Message: "Your card was declined."},
		&payment.TransientNetworkError{Op: "confirm", Err: context.DeadlineExceeded},
	}
	seen := map[string]bool{}
	for _, err := range errs {
		msg := UserMessage(err)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
	assert.Contains(t, UserMessage(errs[1]), "Tote")
	assert.Equal(t, "Your card was declined.", UserMessage(errs[5]))
	assert.Equal(t, "", UserMessage(nil))
	assert.NotContains(t, UserMessage(errors.New("pq: relation orders does not exist")), "pq")
}
