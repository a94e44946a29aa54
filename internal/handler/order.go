package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/order"
)

type orderItemPayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	Total            float64            `json:"total"`
	Discount         float64            `json:"discount"`
	CouponCode       *string            `json:"coupon_code,omitempty"`
	Currency         string             `json:"currency"`
	ShippingProvider *string            `json:"shipping_provider,omitempty"`
	ShippingTracking *string            `json:"shipping_tracking,omitempty"`
	Items            []orderItemPayload `json:"items,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

func toOrderPayload(o *order.Order, items []order.Item) orderPayload {
	out := orderPayload{
		ID:               o.ID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		Total:            o.Total.InexactFloat64(),
		Discount:         o.Discount.InexactFloat64(),
		CouponCode:       o.CouponCode,
		Currency:         o.Currency,
		ShippingProvider: o.ShippingProvider,
		ShippingTracking: o.ShippingTracking,
		CreatedAt:        o.CreatedAt,
	}
	for _, it := range items {
		out.Items = append(out.Items, orderItemPayload{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Name:      it.Name,
			SKU:       it.SKU,
		})
	}
	return out
}

type placeOrderRequest struct {
	AddressID  *string `json:"address_id"`
	CouponCode *string `json:"coupon_code"`
	Currency   string  `json:"currency"`
}

// placeOrder converts the signed-in user's cart into an order. Checkout
// requires a user identity; guests must sign in first.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromRequest(r)
	if userID == "" {
		badRequest(w, "X-User-ID is required to place an order")
		return
	}

	// The body is optional: an empty body places the order with the cart's
	// attached coupon and the default currency.
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}

	c, err := h.cartRepo.Find(r.Context(), cart.Owner{UserID: &userID})
	if err != nil {
		respondError(w, r, err)
		return
	}

	ord, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		CartID:     c.ID,
		UserID:     userID,
		AddressID:  req.AddressID,
		CouponCode: req.CouponCode,
		Currency:   currency,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	items, err := h.orders.Items(r.Context(), ord.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderPayload(ord, items))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	ord, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	items, err := h.orders.Items(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPayload(ord, items))
}

type historyEntryPayload struct {
	From      *string   `json:"from,omitempty"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) getOrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.History(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]historyEntryPayload, 0, len(entries))
	for _, e := range entries {
		p := historyEntryPayload{
			To:        string(e.To),
			Actor:     e.Actor,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		}
		if e.From != nil {
			s := string(*e.From)
			p.From = &s
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status           string  `json:"status"`
	ShippingProvider *string `json:"shipping_provider"`
	ShippingTracking *string `json:"shipping_tracking"`
	Note             *string `json:"note"`
	Actor            string  `json:"actor"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ord, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusRequest{
		OrderID:          chi.URLParam(r, "orderID"),
		Target:           target,
		ShippingProvider: req.ShippingProvider,
		ShippingTracking: req.ShippingTracking,
		Note:             req.Note,
		Actor:            req.Actor,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPayload(ord, nil))
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	status, err := order.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ord, err := h.orders.SetPaymentStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPayload(ord, nil))
}
