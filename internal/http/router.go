// Package http is the storefront REST API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
}

type RouterConfig struct {
	Verifier       session.Verifier
	RequestTimeout time.Duration
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error
}

func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(metrics.Middleware)

	timeout := middleware.Timeout(cfg.RequestTimeout)

	r.With(timeout).Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(timeout).Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Get("/snapshot", h.Cart.Snapshot)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
			})

			r.Get("/profile/shipping", h.Checkout.GetShippingProfile)
			r.Put("/profile/shipping", h.Checkout.SaveShippingProfile)

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)
			r.Get("/wallet", h.Orders.GetWallet)
		})

		r.Route("/checkout", func(r chi.Router) {
			// Confirmation runs on the payment gateway's retry budget, which
			// is longer than the request timeout.
			r.Post("/{checkout_id}/confirm", h.Checkout.ConfirmCheckout)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Post("/", h.Checkout.InitiateCheckout)
				r.Get("/{checkout_id}", h.Checkout.GetCheckout)
				r.Post("/{checkout_id}/cancel", h.Checkout.CancelCheckout)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
