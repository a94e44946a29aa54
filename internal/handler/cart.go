package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solemart/storefront/internal/domain/cart"
)

type cartItemPayload struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Name      string  `json:"name,omitempty"`
	Subtotal  float64 `json:"subtotal"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	CouponCode *string           `json:"coupon_code,omitempty"`
	Items      []cartItemPayload `json:"items"`
	Subtotal   float64           `json:"subtotal"`
}

func toCartPayload(c *cart.Cart, items []cart.Item) cartPayload {
	out := cartPayload{
		ID:         c.ID,
		CouponCode: c.CouponCode,
		Items:      make([]cartItemPayload, 0, len(items)),
	}
	for _, it := range items {
		sub := it.Subtotal()
		out.Items = append(out.Items, cartItemPayload{
			ID:        it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Name:      it.Name,
			Subtotal:  sub.InexactFloat64(),
		})
		out.Subtotal += sub.InexactFloat64()
	}
	return out
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, items, err := h.carts.GetOrCreate(r.Context(), ownerFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartPayload(c, items))
}

type addItemRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Quantity  int     `json:"quantity"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ProductID == "" {
		badRequest(w, "product_id is required")
		return
	}

	item, err := h.carts.AddItem(r.Context(), ownerFromRequest(r), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartItemPayload{
		ID:        item.ID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice.InexactFloat64(),
		Name:      item.Name,
		Subtotal:  item.Subtotal().InexactFloat64(),
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	item, err := h.carts.UpdateItemQuantity(r.Context(), ownerFromRequest(r), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartItemPayload{
		ID:        item.ID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice.InexactFloat64(),
		Name:      item.Name,
		Subtotal:  item.Subtotal().InexactFloat64(),
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveItem(r.Context(), ownerFromRequest(r), chi.URLParam(r, "itemID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), ownerFromRequest(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type applyCouponResponse struct {
	Code     string  `json:"code"`
	Discount float64 `json:"discount"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Code == "" {
		badRequest(w, "code is required")
		return
	}

	amountOff, err := h.carts.ApplyCoupon(r.Context(), ownerFromRequest(r), req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyCouponResponse{
		Code:     req.Code,
		Discount: amountOff.InexactFloat64(),
	})
}

type mergeConflictPayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Requested int     `json:"requested"`
	Final     int     `json:"final"`
}

type mergeResponse struct {
	CartID    string                 `json:"cart_id"`
	Merged    int                    `json:"merged"`
	Conflicts []mergeConflictPayload `json:"conflicts"`
}

// mergeCart folds the guest cart named by X-Session-Token into the cart of
// the user named by X-User-ID. Both headers are required.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromRequest(r)
	sessionToken := r.Header.Get(headerSessionToken)
	if userID == "" || sessionToken == "" {
		badRequest(w, "both X-User-ID and X-Session-Token are required")
		return
	}

	res, err := h.carts.MergeGuestIntoUser(r.Context(), sessionToken, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := mergeResponse{
		CartID:    res.CartID,
		Merged:    res.Merged,
		Conflicts: make([]mergeConflictPayload, 0, len(res.Conflicts)),
	}
	for _, c := range res.Conflicts {
		resp.Conflicts = append(resp.Conflicts, mergeConflictPayload{
			ProductID: c.ProductID,
			VariantID: c.VariantID,
			Requested: c.Requested,
			Final:     c.Final,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
