package http

import (
	"context"
	"net/http"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/go-chi/chi/v5"
)

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	GetWallet(ctx context.Context, sellerID string) (*domain.Wallet, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	list, err := h.orders.ListOrdersByUser(ctx, sess.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	// Must be a JSON array, not null
	if list == nil {
		list = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GET /api/v1/orders/{order_id}
//
// Visible to the buyer and to the seller the order belongs to.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if o.UserID != sess.UserID && o.SellerID != sess.UserID {
		handleServiceError(w, r, store.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// GET /api/v1/wallet
func (h *OrdersHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	wallet, err := h.orders.GetWallet(ctx, sess.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}
