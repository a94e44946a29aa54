package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solemart/storefront/internal/domain/pricing"
)

type mockRepo struct {
	coupon     *Coupon
	total      int
	perUser    int
	calls      []string
	redemption *Redemption
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.calls = append(m.calls, "find")
	if m.coupon == nil || m.coupon.Code != code {
		return nil, ErrInvalidCoupon
	}
	cp := *m.coupon
	return &cp, nil
}

func (m *mockRepo) Lock(_ context.Context, _ string) error {
	m.calls = append(m.calls, "lock")
	return nil
}

func (m *mockRepo) CountRedemptions(_ context.Context, _ string) (int, error) {
	m.calls = append(m.calls, "count")
	return m.total, nil
}

func (m *mockRepo) CountUserRedemptions(_ context.Context, _, _ string) (int, error) {
	m.calls = append(m.calls, "count_user")
	return m.perUser, nil
}

func (m *mockRepo) InsertRedemption(_ context.Context, r Redemption) error {
	m.calls = append(m.calls, "insert")
	m.redemption = &r
	return nil
}

func intPtr(i int) *int { return &i }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

func at(v *RepoValidator, t time.Time) *RepoValidator {
	v.now = func() time.Time { return t }
	return v
}

func activeCoupon() *Coupon {
	return &Coupon{
		ID:       "cpn1",
		Code:     "SAVE10",
		Discount: pricing.Percent(decimal.NewFromInt(10)),
		Active:   true,
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	v := NewRepoValidator(&mockRepo{})

	_, err := v.Validate(context.Background(), "NOPE", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestValidate_Inactive(t *testing.T) {
	c := activeCoupon()
	c.Active = false
	v := NewRepoValidator(&mockRepo{coupon: c})

	_, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrCouponInactive)
}

func TestValidate_Window(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	c := activeCoupon()
	c.StartsAt = timePtr(now.Add(time.Hour))
	v := at(NewRepoValidator(&mockRepo{coupon: c}), now)
	_, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrCouponNotStarted)

	c = activeCoupon()
	c.EndsAt = timePtr(now.Add(-time.Hour))
	v = at(NewRepoValidator(&mockRepo{coupon: c}), now)
	_, err = v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrCouponExpired)

	c = activeCoupon()
	c.StartsAt = timePtr(now.Add(-time.Hour))
	c.EndsAt = timePtr(now.Add(time.Hour))
	v = at(NewRepoValidator(&mockRepo{coupon: c}), now)
	_, err = v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.NoError(t, err)
}

func TestValidate_BelowMinimumOrder(t *testing.T) {
	c := activeCoupon()
	c.MinOrder = decPtr("200.00")
	v := NewRepoValidator(&mockRepo{coupon: c})

	_, err := v.Validate(context.Background(), "SAVE10", decimal.RequireFromString("199.99"), "u1")
	require.ErrorIs(t, err, ErrBelowMinimumOrder)

	_, err = v.Validate(context.Background(), "SAVE10", decimal.RequireFromString("200.00"), "u1")
	require.NoError(t, err)
}

func TestValidate_MaxRedemptionsReached(t *testing.T) {
	c := activeCoupon()
	c.MaxRedemptions = intPtr(100)
	v := NewRepoValidator(&mockRepo{coupon: c, total: 100})

	_, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrMaxRedemptionsReached)
}

func TestValidate_PerCustomerLimitReached(t *testing.T) {
	c := activeCoupon()
	c.PerCustomerLimit = intPtr(1)
	v := NewRepoValidator(&mockRepo{coupon: c, perUser: 1})

	_, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.ErrorIs(t, err, ErrPerCustomerLimitReached)
}

func TestValidate_LocksBeforeCounting(t *testing.T) {
	c := activeCoupon()
	c.MaxRedemptions = intPtr(100)
	c.PerCustomerLimit = intPtr(2)
	repo := &mockRepo{coupon: c}
	v := NewRepoValidator(repo)

	got, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.NoError(t, err)
	assert.Equal(t, "cpn1", got.ID)
	// The advisory lock must be taken before either count reads.
	assert.Equal(t, []string{"find", "lock", "count", "count_user"}, repo.calls)
}

func TestValidate_UncappedSkipsCounts(t *testing.T) {
	repo := &mockRepo{coupon: activeCoupon()}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), "u1")
	require.NoError(t, err)
	assert.NotContains(t, repo.calls, "count")
	assert.NotContains(t, repo.calls, "count_user")
}

func TestRedeem_InsertsRedemptionRow(t *testing.T) {
	repo := &mockRepo{coupon: activeCoupon()}
	v := NewRepoValidator(repo)

	err := v.Redeem(context.Background(), "cpn1", "u1", "o1")
	require.NoError(t, err)
	require.NotNil(t, repo.redemption)
	assert.NotEmpty(t, repo.redemption.ID)
	assert.Equal(t, "cpn1", repo.redemption.CouponID)
	assert.Equal(t, "u1", repo.redemption.UserID)
	assert.Equal(t, "o1", repo.redemption.OrderID)
}
