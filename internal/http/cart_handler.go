package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/snapshot"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) error
	UpdateQuantity(ctx context.Context, userID string, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID string) error
	ClearCart(ctx context.Context, userID string) error
}

type SnapshotBuilder interface {
	Build(ctx context.Context, items []domain.CartItem) (*domain.CartSnapshot, []snapshot.Diagnostic)
}

type CartHandler struct {
	cart      CartService
	snapshots SnapshotBuilder
	timeout   time.Duration
}

func NewCartHandler(cart CartService, snapshots SnapshotBuilder, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:      cart,
		snapshots: snapshots,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// CartSnapshotDTO is the priced cart shown on the checkout page.
type CartSnapshotDTO struct {
	Lines    []domain.CartLine `json:"lines"`
	Subtotal string            `json:"subtotal"`
	Currency string            `json:"currency"`
	Warnings []string          `json:"warnings,omitempty"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	c, err := h.cart.GetCart(ctx, sess.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	respondJSON(w, http.StatusOK, c)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	item := domain.CartItem{ProductID: req.ProductID, Quantity: req.Quantity, AddedAt: time.Now().UTC()}
	if err := h.cart.AddItem(ctx, sess.UserID, item); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, sess.UserID, http.StatusCreated)
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "product_id")
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.cart.UpdateQuantity(ctx, sess.UserID, productID, req.Quantity); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, sess.UserID, http.StatusOK)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.cart.RemoveItem(ctx, sess.UserID, chi.URLParam(r, "product_id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, sess.UserID, http.StatusOK)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.cart.ClearCart(ctx, sess.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/cart/snapshot
func (h *CartHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	c, err := h.cart.GetCart(ctx, sess.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	snap, diags := h.snapshots.Build(ctx, c.Items)

	resp := CartSnapshotDTO{
		Lines:    snap.Lines,
		Subtotal: snap.Subtotal.StringFixed(2),
		Currency: snap.Currency,
	}
	if resp.Lines == nil {
		resp.Lines = []domain.CartLine{}
	}
	for _, d := range diags {
		resp.Warnings = append(resp.Warnings, d.ProductID+": "+string(d.Reason))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string, status int) {
	c, err := h.cart.GetCart(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, status, c)
}
