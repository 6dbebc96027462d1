package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/go-chi/chi/v5"
)

type CheckoutService interface {
	InitiateCheckout(ctx context.Context, sess session.Session, req domain.CheckoutRequest) (*domain.CheckoutResponse, error)
	ConfirmCheckout(ctx context.Context, sess session.Session, req domain.ConfirmRequest) (*domain.ConfirmResponse, error)
	CancelCheckout(ctx context.Context, sess session.Session, id string) (*domain.CheckoutResponse, error)
	GetCheckout(ctx context.Context, sess session.Session, id string) (*domain.CheckoutSession, error)
	ShippingProfile(ctx context.Context, sess session.Session) (*domain.ShippingDetails, error)
	SaveShippingProfile(ctx context.Context, sess session.Session, d domain.ShippingDetails) (*domain.ShippingDetails, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type InitiateCheckoutRequestDTO struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	Shipping       domain.ShippingDetails `json:"shipping"`
}

type CheckoutResponseDTO struct {
	CheckoutID   string   `json:"checkout_id"`
	Status       string   `json:"status"`
	Gateway      string   `json:"gateway"`
	Currency     string   `json:"currency"`
	TotalAmount  string   `json:"total_amount"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Reference    string   `json:"reference,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

type ConfirmCheckoutRequestDTO struct {
	PaymentMethodID string `json:"payment_method_id"`
	Reference       string `json:"reference"`
}

type ConfirmResponseDTO struct {
	CheckoutID string   `json:"checkout_id"`
	Status     string   `json:"status"`
	OrderIDs   []string `json:"order_ids"`
	Warnings   []string `json:"warnings,omitempty"`
}

type CheckoutSessionDTO struct {
	CheckoutID    string            `json:"checkout_id"`
	Status        string            `json:"status"`
	Gateway       string            `json:"gateway"`
	Currency      string            `json:"currency"`
	TotalAmount   string            `json:"total_amount"`
	Lines         []domain.CartLine `json:"lines"`
	OrderIDs      []string          `json:"order_ids"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// POST /api/v1/checkout
//
// The idempotency key may come from the Idempotency-Key header or the body.
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req InitiateCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", "idempotency_key is required")
		return
	}

	resp, err := h.checkout.InitiateCheckout(ctx, sess, domain.CheckoutRequest{
		IdempotencyKey: key,
		Shipping:       req.Shipping,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCheckoutResponseDTO(resp))
}

// POST /api/v1/checkout/{checkout_id}/confirm
//
// Confirmation is not bound to the request timeout: once the gateway has
// taken the money the orders are placed regardless of the client.
func (h *CheckoutHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req ConfirmCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentMethodID == "" && req.Reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "payment_method_id or reference is required")
		return
	}

	resp, err := h.checkout.ConfirmCheckout(r.Context(), sess, domain.ConfirmRequest{
		CheckoutID:      chi.URLParam(r, "checkout_id"),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		Reference:       strings.TrimSpace(req.Reference),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	ids := resp.OrderIDs
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, ConfirmResponseDTO{
		CheckoutID: resp.CheckoutID,
		Status:     resp.Status.String(),
		OrderIDs:   ids,
		Warnings:   resp.Warnings,
	})
}

// POST /api/v1/checkout/{checkout_id}/cancel
func (h *CheckoutHandler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.checkout.CancelCheckout(ctx, sess, chi.URLParam(r, "checkout_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponseDTO(resp))
}

// GET /api/v1/checkout/{checkout_id}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	cs, err := h.checkout.GetCheckout(ctx, sess, chi.URLParam(r, "checkout_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	dto := CheckoutSessionDTO{
		CheckoutID:    cs.ID,
		Status:        cs.Status.String(),
		Gateway:       string(cs.Gateway),
		Currency:      cs.Currency,
		TotalAmount:   cs.TotalAmount.StringFixed(2),
		Lines:         cs.Snapshot.Lines,
		OrderIDs:      cs.OrderIDs,
		FailureReason: cs.FailureReason,
		CreatedAt:     cs.CreatedAt,
		UpdatedAt:     cs.UpdatedAt,
	}
	if dto.Lines == nil {
		dto.Lines = []domain.CartLine{}
	}
	if dto.OrderIDs == nil {
		dto.OrderIDs = []string{}
	}
	respondJSON(w, http.StatusOK, dto)
}

// GET /api/v1/profile/shipping
func (h *CheckoutHandler) GetShippingProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	p, err := h.checkout.ShippingProfile(ctx, sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// PUT /api/v1/profile/shipping
func (h *CheckoutHandler) SaveShippingProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req domain.ShippingDetails
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.checkout.SaveShippingProfile(ctx, sess, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func toCheckoutResponseDTO(resp *domain.CheckoutResponse) CheckoutResponseDTO {
	return CheckoutResponseDTO{
		CheckoutID:   resp.CheckoutID,
		Status:       resp.Status.String(),
		Gateway:      string(resp.Gateway),
		Currency:     resp.Currency,
		TotalAmount:  resp.TotalAmount.StringFixed(2),
		ClientSecret: resp.ClientSecret,
		Reference:    resp.Reference,
		Warnings:     resp.Warnings,
	}
}
