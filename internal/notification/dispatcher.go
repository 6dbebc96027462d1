// Package notification sends order confirmation requests to the
// notification backend after an order is committed.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/retry"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

type Kind string

const (
	KindBuyerConfirmation  Kind = "buyer_confirmation"
	KindSellerNotification Kind = "seller_notification"
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Warning is a delivery failure reported back to the buyer as a
// non-blocking notice.
type Warning struct {
	Kind    Kind   `json:"kind"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

type Dispatcher struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	policy  retry.Policy
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *slog.Logger
}

func NewDispatcher(cfg Config, hc *http.Client) *Dispatcher {
	if hc == nil {
		hc = http.DefaultClient
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	log := logging.New("notification")

	d := &Dispatcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    hc,
		log:     log,
	}
	d.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Retryable:   retryable,
		Backoff:     retry.Constant(cfg.BackoffBase),
	}
	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notification-backend",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return d
}

func retryable(err error) bool {
	if isClientError(err) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

type item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

type buyerConfirmation struct {
	OrderID         string                 `json:"orderId"`
	OrderIDs        []string               `json:"orderIds"`
	Email           string                 `json:"email"`
	Items           []item                 `json:"items"`
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency"`
	ShippingDetails domain.ShippingDetails `json:"shippingDetails"`
}

type sellerNotification struct {
	OrderID         string                 `json:"orderId"`
	SellerID        string                 `json:"sellerId"`
	Items           []item                 `json:"items"`
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency"`
	ShippingDetails domain.ShippingDetails `json:"shippingDetails"`
}

type backendResponse struct {
	Success bool `json:"success"`
}

// NotifyOrderPlaced sends one buyer confirmation for the whole checkout and
// one notification per seller order. It must only be called once the orders
// are committed. Failures are logged and returned as warnings.
func (d *Dispatcher) NotifyOrderPlaced(ctx context.Context, buyerEmail string, orders []*domain.Order) []Warning {
	if len(orders) == 0 {
		return nil
	}

	var warnings []Warning
	first := orders[0]

	buyer := buyerConfirmation{
		OrderID:         first.ID,
		Email:           buyerEmail,
		Currency:        first.Currency,
		ShippingDetails: first.Shipping,
		Total:           decimal.Zero,
	}
	for _, o := range orders {
		buyer.OrderIDs = append(buyer.OrderIDs, o.ID)
		buyer.Items = append(buyer.Items, toItems(o.Items)...)
		buyer.Total = buyer.Total.Add(o.TotalAmount)
	}
	if err := d.send(ctx, "/send-order-confirmation", buyer); err != nil {
		warnings = append(warnings, d.fail(ctx, KindBuyerConfirmation, first.ID, err))
	}

	for _, o := range orders {
		seller := sellerNotification{
			OrderID:         o.ID,
			SellerID:        o.SellerID,
			Items:           toItems(o.Items),
			Total:           o.TotalAmount,
			Currency:        o.Currency,
			ShippingDetails: o.Shipping,
		}
		if err := d.send(ctx, "/send-seller-order-notification", seller); err != nil {
			warnings = append(warnings, d.fail(ctx, KindSellerNotification, o.ID, err))
		}
	}
	return warnings
}

func (d *Dispatcher) fail(ctx context.Context, kind Kind, orderID string, err error) Warning {
	nerr := &NotificationError{Kind: kind, OrderID: orderID, Err: err}
	metrics.NotificationFailed(string(kind))
	d.log.ErrorContext(ctx, "notification failed", "kind", kind, "order_id", orderID, "err", nerr)

	msg := "We could not send your order confirmation email. Your order has been placed."
	if kind == KindSellerNotification {
		msg = "The seller could not be notified yet. Your order has been placed."
	}
	return Warning{Kind: kind, OrderID: orderID, Message: msg}
}

func (d *Dispatcher) send(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	return d.policy.Do(ctx, func(ctx context.Context) error {
		_, err := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.post(ctx, path, body)
		})
		return err
	})
}

func (d *Dispatcher) post(ctx context.Context, path string, body []byte) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out backendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if !out.Success {
		return ErrRejected
	}
	return nil
}

func toItems(items []domain.OrderItem) []item {
	out := make([]item, 0, len(items))
	for _, it := range items {
		out = append(out, item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			ImageURL:  it.ImageURL,
		})
	}
	return out
}
