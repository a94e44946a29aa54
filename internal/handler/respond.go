package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/catalog"
	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/inventory"
	"github.com/solemart/storefront/internal/domain/order"
)

// Stable machine-readable error codes. Clients branch on these, so they are
// part of the API contract and must not change.
const (
	codeValidation          = "validation"
	codeNotFound            = "not_found"
	codeEmptyCart           = "empty_cart"
	codeInsufficientStock   = "insufficient_stock"
	codeInvalidTransition   = "invalid_transition"
	codeMissingShipping     = "missing_shipping_details"
	codeCouponInvalid       = "coupon_invalid"
	codeCouponInactive      = "coupon_inactive"
	codeCouponNotStarted    = "coupon_not_started"
	codeCouponExpired       = "coupon_expired"
	codeCouponBelowMinimum  = "coupon_below_minimum"
	codeCouponExhausted     = "coupon_exhausted"
	codeCouponCustomerLimit = "coupon_customer_limit"
	codeInternal            = "internal"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the error envelope. The envelope is encoded with jx by
// hand so the detail object can be shaped per error without intermediate
// structs.
func writeError(w http.ResponseWriter, status int, code, message string, details func(*jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("message")
	e.Str(message)
	if details != nil {
		e.FieldStart("details")
		details(&e)
	}
	e.ObjEnd()
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respondError maps a domain error to its status class and stable code.
// Unrecognized errors become opaque 500s; their detail goes to the log, not
// the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var tErr *order.InvalidTransitionError
	if errors.As(err, &tErr) {
		writeError(w, http.StatusConflict, codeInvalidTransition, tErr.Error(), func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("from")
			e.Str(string(tErr.From))
			e.FieldStart("to")
			e.Str(string(tErr.To))
			e.FieldStart("allowed")
			e.ArrStart()
			for _, s := range tErr.Allowed {
				e.Str(string(s))
			}
			e.ArrEnd()
			e.ObjEnd()
		})
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, status, code, "internal error", nil)
		return
	}
	writeError(w, status, code, err.Error(), nil)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, cart.ErrNoOwner),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, codeEmptyCart
	case errors.Is(err, order.ErrMissingShippingDetails):
		// A conflict with the order's current state, not a malformed
		// request: the transition itself is refused.
		return http.StatusConflict, codeMissingShipping
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, codeInsufficientStock
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusBadRequest, codeCouponInvalid
	case errors.Is(err, coupon.ErrCouponInactive):
		return http.StatusBadRequest, codeCouponInactive
	case errors.Is(err, coupon.ErrCouponNotStarted):
		return http.StatusBadRequest, codeCouponNotStarted
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusBadRequest, codeCouponExpired
	case errors.Is(err, coupon.ErrBelowMinimumOrder):
		return http.StatusBadRequest, codeCouponBelowMinimum
	case errors.Is(err, coupon.ErrMaxRedemptionsReached):
		return http.StatusConflict, codeCouponExhausted
	case errors.Is(err, coupon.ErrPerCustomerLimitReached):
		return http.StatusConflict, codeCouponCustomerLimit
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// badRequest is for malformed bodies and other decode-time failures.
func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, codeValidation, message, nil)
}
