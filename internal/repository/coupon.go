package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/pricing"
)

const (
	getCouponByCodeSQL = `SELECT id, code, discount_type, value, min_order, max_redemptions,
			per_customer_limit, starts_at, ends_at, active, created_at
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	// Transaction-scoped advisory lock; serializes checkouts sharing a
	// coupon without touching unrelated ones. Released on commit/rollback.
	lockCouponSQL = `SELECT pg_advisory_xact_lock(hashtextextended('coupon:' || $1, 0))`

	countRedemptionsSQL = `SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1`

	countUserRedemptionsSQL = `SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_id = $1 AND user_id = $2`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id)
		VALUES ($1, $2, $3, $4)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	store *Store
}

// NewCouponRepository returns a CouponRepository using the given store.
func NewCouponRepository(store *Store) *CouponRepository {
	return &CouponRepository{store: store}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such code exists; active and
// window checks are the validator's job.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.store.db(ctx).Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}
	return &c, nil
}

// Lock takes the coupon's transaction-scoped advisory lock. Must run
// inside a transaction; it blocks until concurrent holders commit.
func (r *CouponRepository) Lock(ctx context.Context, couponID string) error {
	if _, err := r.store.db(ctx).Exec(ctx, lockCouponSQL, couponID); err != nil {
		return errors.Wrapf(err, "locking coupon %q", couponID)
	}
	return nil
}

// CountRedemptions returns the total number of redemptions of the coupon.
func (r *CouponRepository) CountRedemptions(ctx context.Context, couponID string) (int, error) {
	var n int
	if err := r.store.db(ctx).QueryRow(ctx, countRedemptionsSQL, couponID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "counting redemptions of coupon %q", couponID)
	}
	return n, nil
}

// CountUserRedemptions returns how often one user redeemed the coupon.
func (r *CouponRepository) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	if err := r.store.db(ctx).QueryRow(ctx, countUserRedemptionsSQL, couponID, userID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "counting user redemptions of coupon %q", couponID)
	}
	return n, nil
}

// InsertRedemption appends the immutable row that consumes one use.
func (r *CouponRepository) InsertRedemption(ctx context.Context, red coupon.Redemption) error {
	_, err := r.store.db(ctx).Exec(ctx, insertRedemptionSQL,
		red.ID, red.CouponID, red.UserID, red.OrderID,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting redemption of coupon %q", red.CouponID)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c    coupon.Coupon
		kind string
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Discount.Value, &c.MinOrder,
		&c.MaxRedemptions, &c.PerCustomerLimit, &c.StartsAt, &c.EndsAt,
		&c.Active, &c.CreatedAt,
	)
	c.Discount.Kind = pricing.DiscountKind(kind)
	return c, err
}
