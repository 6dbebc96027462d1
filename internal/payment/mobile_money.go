package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
)

const MobileMoneyCurrency = "NGN"

type MobileMoneyConfig struct {
	BaseURL string
	// Gateway names the hosted popup provider, e.g. "paystack".
	Gateway string
	Timeout time.Duration
}

// MobileMoneyStrategy issues a reference for a hosted payment popup. The
// popup callback hands the reference back as proof of payment. Nothing is
// retried; the buyer can reopen the popup.
type MobileMoneyStrategy struct {
	client *gatewayClient
	path   string
	log    *slog.Logger
}

func NewMobileMoneyStrategy(cfg MobileMoneyConfig, hc *http.Client) *MobileMoneyStrategy {
	if cfg.Gateway == "" {
		cfg.Gateway = "paystack"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &MobileMoneyStrategy{
		client: newGatewayClient(domain.GatewayMobileMoney, cfg.BaseURL, cfg.Timeout, hc),
		path:   fmt.Sprintf("/initiate-%s-payment", cfg.Gateway),
		log:    logging.New("payment.mobile_money"),
	}
}

func (s *MobileMoneyStrategy) Gateway() domain.Gateway { return domain.GatewayMobileMoney }

func (s *MobileMoneyStrategy) Currency() string { return MobileMoneyCurrency }

type initiateMobileRequest struct {
	Amount   int64             `json:"amount"`
	Email    string            `json:"email"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type initiateMobileResponse struct {
	Reference string `json:"reference"`
}

func (s *MobileMoneyStrategy) Initiate(ctx context.Context, req Request) (*Intent, error) {
	in := initiateMobileRequest{
		Amount:   pricing.MinorUnits(req.Amount),
		Email:    req.Email,
		Currency: req.Currency,
		Metadata: withCheckoutMetadata(req),
	}
	var out initiateMobileResponse
	err := s.client.post(ctx, s.path, in, &out)
	metrics.PaymentCall(string(domain.GatewayMobileMoney), "initiate", err)
	if err != nil {
		s.log.ErrorContext(ctx, "initiate mobile payment failed", "checkout_id", req.CheckoutID, "err", err)
		return nil, err
	}
	if out.Reference == "" {
		return nil, &PaymentError{Gateway: domain.GatewayMobileMoney, Code: "missing_reference", Message: "the payment provider did not return a reference"}
	}
	return &Intent{
		Gateway:   domain.GatewayMobileMoney,
		Currency:  req.Currency,
		Amount:    req.Amount,
		Reference: out.Reference,
	}, nil
}

// Confirm accepts the popup callback when it echoes the issued reference.
func (s *MobileMoneyStrategy) Confirm(ctx context.Context, intent Intent, c Confirmation) (*domain.PaymentResult, error) {
	var err error
	switch {
	case c.Reference == "":
		err = &PaymentError{Gateway: domain.GatewayMobileMoney, Code: "missing_reference", Message: "the payment was not completed, please try again"}
	case c.Reference != intent.Reference:
		err = &PaymentError{Gateway: domain.GatewayMobileMoney, Code: "reference_mismatch", Message: "the payment reference does not match this checkout"}
	}
	metrics.PaymentCall(string(domain.GatewayMobileMoney), "confirm", err)
	if err != nil {
		s.log.WarnContext(ctx, "mobile payment confirmation rejected", "reference", c.Reference, "err", err)
		return nil, err
	}
	return &domain.PaymentResult{Gateway: domain.GatewayMobileMoney, ID: c.Reference}, nil
}
