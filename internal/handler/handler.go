// Package handler is the HTTP boundary: it decodes requests, extracts the
// caller's identity from trusted headers, delegates to the domain services,
// and maps domain errors to stable machine-readable codes.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/order"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// DefaultCurrency is used for orders that do not specify one.
	DefaultCurrency string
}

// Handler wires the cart and order services to HTTP routes.
type Handler struct {
	carts           *cart.Service
	cartRepo        cart.Repository
	orders          *order.Service
	defaultCurrency string
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, carts *cart.Service, cartRepo cart.Repository, orders *order.Service) *Handler {
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	return &Handler{
		carts:           carts,
		cartRepo:        cartRepo,
		orders:          orders,
		defaultCurrency: currency,
	}
}

// Routes registers every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Post("/coupon", h.applyCoupon)
		r.Post("/merge", h.mergeCart)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/{orderID}", h.getOrder)
		r.Get("/{orderID}/history", h.getOrderHistory)
		r.Post("/{orderID}/status", h.updateOrderStatus)
		r.Post("/{orderID}/payment-status", h.updatePaymentStatus)
	})
}
