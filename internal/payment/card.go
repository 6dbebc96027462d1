package payment

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/retry"
)

const (
	CardCurrency        = "GBP"
	cardStatusSucceeded = "succeeded"
)

type CardConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// CardStrategy charges through a payment-intent API. Only timeouts are
// retried.
type CardStrategy struct {
	client *gatewayClient
	policy retry.Policy
	// confirmBudget bounds a whole confirmation: every attempt plus the
	// longest backoff between them.
	confirmBudget time.Duration
	log           *slog.Logger
}

func NewCardStrategy(cfg CardConfig, hc *http.Client) *CardStrategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &CardStrategy{
		client: newGatewayClient(domain.GatewayCard, cfg.BaseURL, cfg.Timeout, hc),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Retryable:   IsTransient,
			Backoff:     retry.Exponential(cfg.BackoffBase, 8*cfg.BackoffBase),
		},
		confirmBudget: time.Duration(cfg.MaxAttempts) * (cfg.Timeout + 10*cfg.BackoffBase),
		log:           logging.New("payment.card"),
	}
}

func (s *CardStrategy) Gateway() domain.Gateway { return domain.GatewayCard }

func (s *CardStrategy) Currency() string { return CardCurrency }

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

func (s *CardStrategy) Initiate(ctx context.Context, req Request) (*Intent, error) {
	in := createIntentRequest{
		Amount:   pricing.MinorUnits(req.Amount),
		Currency: req.Currency,
		Metadata: withCheckoutMetadata(req),
	}
	var out createIntentResponse
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.client.post(ctx, "/create-payment-intent", in, &out)
	})
	metrics.PaymentCall(string(domain.GatewayCard), "initiate", err)
	if err != nil {
		s.log.ErrorContext(ctx, "create payment intent failed", "checkout_id", req.CheckoutID, "err", err)
		return nil, err
	}
	if out.ClientSecret == "" {
		return nil, &PaymentError{Gateway: domain.GatewayCard, Code: "missing_client_secret", Message: "the card processor did not return a payment session"}
	}
	return &Intent{
		Gateway:      domain.GatewayCard,
		Currency:     req.Currency,
		Amount:       req.Amount,
		ClientSecret: out.ClientSecret,
	}, nil
}

type confirmIntentRequest struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentMethodID string `json:"paymentMethodId"`
}

type confirmIntentResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

func (s *CardStrategy) Confirm(ctx context.Context, intent Intent, c Confirmation) (*domain.PaymentResult, error) {
	if c.PaymentMethodID == "" {
		return nil, &PaymentError{Gateway: domain.GatewayCard, Code: "missing_payment_method", Message: "enter your card details to continue"}
	}
	// The buyer may be charged by any attempt, so the caller's deadline must
	// not cut the retries short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmBudget)
	defer cancel()

	in := confirmIntentRequest{ClientSecret: intent.ClientSecret, PaymentMethodID: c.PaymentMethodID}
	var out confirmIntentResponse
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.client.post(ctx, "/confirm-payment-intent", in, &out)
	})
	metrics.PaymentCall(string(domain.GatewayCard), "confirm", err)
	if err != nil {
		s.log.ErrorContext(ctx, "confirm payment intent failed", "err", err)
		return nil, err
	}
	if out.Status != cardStatusSucceeded {
		return nil, &PaymentError{Gateway: domain.GatewayCard, Code: out.Status, Message: "your card payment was not completed"}
	}
	return &domain.PaymentResult{Gateway: domain.GatewayCard, ID: out.ID}, nil
}

func withCheckoutMetadata(req Request) map[string]string {
	md := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md["checkout_id"] = req.CheckoutID
	md["user_id"] = req.UserID
	return md
}
