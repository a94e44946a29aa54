package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepoValidator validates coupon codes against a Repository.
//
// Validate and Redeem must run inside the same transaction when the result
// is going to be consumed: Validate takes the coupon's advisory lock before
// reading redemption counts, which holds off concurrent checkouts of the
// same code until the transaction commits or rolls back. Two concurrent
// checkouts of a coupon with one remaining slot therefore serialize, and
// exactly one of them redeems.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate checks that code can be applied by userID to an order with the
// given subtotal and returns the coupon on success.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Active {
		return nil, ErrCouponInactive
	}

	now := v.now()
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return nil, ErrCouponNotStarted
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return nil, ErrCouponExpired
	}

	if c.MinOrder != nil && subtotal.LessThan(*c.MinOrder) {
		return nil, ErrBelowMinimumOrder
	}

	// Serialize concurrent checkouts of this coupon before counting, so the
	// counts below stay true until our redemption row is inserted.
	if err := v.repo.Lock(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "lock coupon")
	}

	if c.MaxRedemptions != nil {
		total, err := v.repo.CountRedemptions(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
		if total >= *c.MaxRedemptions {
			return nil, ErrMaxRedemptionsReached
		}
	}

	if c.PerCustomerLimit != nil {
		used, err := v.repo.CountUserRedemptions(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
		if used >= *c.PerCustomerLimit {
			return nil, ErrPerCustomerLimitReached
		}
	}

	return c, nil
}

// Redeem inserts the redemption row that consumes one use of the coupon.
// Must be called in the same transaction as the Validate that approved it.
func (v *RepoValidator) Redeem(ctx context.Context, couponID, userID, orderID string) error {
	err := v.repo.InsertRedemption(ctx, Redemption{
		ID:       uuid.New().String(),
		CouponID: couponID,
		UserID:   userID,
		OrderID:  orderID,
	})
	if err != nil {
		return errors.Wrap(err, "insert redemption")
	}
	return nil
}
