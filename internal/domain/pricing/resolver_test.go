package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	overrides []Override
	err       error
	gotIDs    []string
	gotAt     time.Time
}

func (s *stubSource) ActiveOverrides(_ context.Context, ids []string, at time.Time) ([]Override, error) {
	s.gotIDs = ids
	s.gotAt = at
	return s.overrides, s.err
}

func newResolverAt(src OverrideSource, at time.Time) *Resolver {
	r := NewResolver(src)
	r.now = func() time.Time { return at }
	return r
}

func TestResolvePrice_NoActiveCampaign(t *testing.T) {
	r := NewResolver(&stubSource{})

	q, err := r.ResolvePrice(context.Background(), "p1", decimal.RequireFromString("49.90"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("49.90").Equal(q.UnitPrice))
	assert.Nil(t, q.Campaign)
}

func TestResolvePrice_ProductOverrideBeatsCampaignDiscount(t *testing.T) {
	// Campaign C1 (priority 1) gives 10% off. Campaign C2 (priority 5)
	// carries a product-level override of 200 off. C2 wins on priority and
	// its product override beats its own campaign discount.
	amount200 := Amount(decimal.NewFromInt(200))
	src := &stubSource{overrides: []Override{
		{
			ProductID:        "p1",
			CampaignID:       "c1",
			Priority:         1,
			CampaignDiscount: Percent(decimal.NewFromInt(10)),
		},
		{
			ProductID:        "p1",
			CampaignID:       "c2",
			Priority:         5,
			CampaignDiscount: Percent(decimal.NewFromInt(5)),
			ProductDiscount:  &amount200,
		},
	}}
	r := NewResolver(src)

	q, err := r.ResolvePrice(context.Background(), "p1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("800.00").Equal(q.UnitPrice), q.UnitPrice.String())
	require.NotNil(t, q.Campaign)
	assert.Equal(t, "c2", q.Campaign.ID)
}

func TestResolvePrice_PriorityTieGoesToNewestCampaign(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	src := &stubSource{overrides: []Override{
		{
			ProductID:         "p1",
			CampaignID:        "old",
			Priority:          3,
			CampaignCreatedAt: older,
			CampaignDiscount:  Percent(decimal.NewFromInt(10)),
		},
		{
			ProductID:         "p1",
			CampaignID:        "new",
			Priority:          3,
			CampaignCreatedAt: newer,
			CampaignDiscount:  Percent(decimal.NewFromInt(20)),
		},
	}}
	r := NewResolver(src)

	q, err := r.ResolvePrice(context.Background(), "p1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("80.00").Equal(q.UnitPrice), q.UnitPrice.String())
	assert.Equal(t, "new", q.Campaign.ID)
}

func TestResolvePrices_Batch(t *testing.T) {
	src := &stubSource{overrides: []Override{
		{
			ProductID:        "p1",
			CampaignID:       "c1",
			CampaignDiscount: Percent(decimal.NewFromInt(50)),
		},
	}}
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	r := newResolverAt(src, at)

	quotes, err := r.ResolvePrices(context.Background(), map[string]decimal.Decimal{
		"p1": decimal.NewFromInt(10),
		"p2": decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.True(t, decimal.RequireFromString("5.00").Equal(quotes["p1"].UnitPrice))
	assert.True(t, decimal.NewFromInt(20).Equal(quotes["p2"].UnitPrice))
	assert.Nil(t, quotes["p2"].Campaign)
	assert.Equal(t, at, src.gotAt)
	assert.ElementsMatch(t, []string{"p1", "p2"}, src.gotIDs)
}

func TestResolvePrices_EmptyInputSkipsSource(t *testing.T) {
	src := &stubSource{}
	r := NewResolver(src)

	quotes, err := r.ResolvePrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Nil(t, src.gotIDs)
}

func TestResolvePrice_UnknownDiscountKind(t *testing.T) {
	src := &stubSource{overrides: []Override{
		{
			ProductID:        "p1",
			CampaignID:       "c1",
			CampaignDiscount: Discount{Kind: "bogus", Value: decimal.NewFromInt(1)},
		},
	}}
	r := NewResolver(src)

	_, err := r.ResolvePrice(context.Background(), "p1", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrUnknownDiscountKind)
}
