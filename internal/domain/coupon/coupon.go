// Package coupon validates and redeems discount codes. A redemption is
// consumed by the existence of a coupon_redemptions row; caps are enforced
// by counting those rows inside the same transaction that inserts the next
// one, under a per-coupon advisory lock.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/solemart/storefront/internal/domain/pricing"
)

var (
	// ErrInvalidCoupon is returned when the code does not exist.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponInactive is returned when the coupon has been switched off.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponNotStarted is returned before the validity window opens.
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	// ErrCouponExpired is returned after the validity window closes.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrBelowMinimumOrder is returned when the cart subtotal is under the
	// coupon's minimum order value.
	ErrBelowMinimumOrder = errors.New("order subtotal below coupon minimum")
	// ErrMaxRedemptionsReached is returned when the global redemption cap
	// has been exhausted.
	ErrMaxRedemptionsReached = errors.New("coupon redemption limit reached")
	// ErrPerCustomerLimitReached is returned when this user has already
	// redeemed the coupon up to its per-customer cap.
	ErrPerCustomerLimitReached = errors.New("per-customer coupon limit reached")
)

// Coupon is one discount code and its eligibility constraints.
type Coupon struct {
	ID       string
	Code     string
	Discount pricing.Discount
	// MinOrder, when set, is the smallest subtotal the coupon applies to.
	MinOrder *decimal.Decimal
	// MaxRedemptions caps total redemptions across all users. Nil = uncapped.
	MaxRedemptions *int
	// PerCustomerLimit caps redemptions per user. Nil = uncapped.
	PerCustomerLimit *int
	StartsAt         *time.Time
	EndsAt           *time.Time
	Active           bool
	CreatedAt        time.Time
}

// Redemption records a single use of a coupon by a user on an order.
// Rows are inserted once and never updated.
type Redemption struct {
	ID        string
	CouponID  string
	UserID    string
	OrderID   string
	CreatedAt time.Time
}

// Repository provides coupon lookup and redemption accounting. Lock takes
// a transaction-scoped advisory lock on the coupon so that the
// count-then-insert sequence cannot race with a concurrent checkout; it
// must therefore be called inside a transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Lock(ctx context.Context, couponID string) error
	CountRedemptions(ctx context.Context, couponID string) (int, error)
	CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error)
	InsertRedemption(ctx context.Context, r Redemption) error
}
