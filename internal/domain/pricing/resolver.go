// Package pricing resolves the currently effective unit price of a product,
// taking active flash-sale campaigns into account. It is side-effect free:
// resolving a price never writes anything, so it is safe to call at
// cart-add time, render time, and checkout time alike.
package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Override is one (campaign, product) row whose campaign window contains
// the resolution instant. ProductDiscount, when present, beats the
// campaign-level discount.
type Override struct {
	ProductID         string
	CampaignID        string
	CampaignName      string
	Priority          int
	CampaignCreatedAt time.Time
	CampaignDiscount  Discount
	ProductDiscount   *Discount
}

// OverrideSource provides the active flash-sale rows for a set of products
// at a given instant. Implementations must return rows for all requested
// products in one query to avoid N+1 lookups.
type OverrideSource interface {
	ActiveOverrides(ctx context.Context, productIDs []string, at time.Time) ([]Override, error)
}

// CampaignRef identifies the campaign that won a price resolution.
type CampaignRef struct {
	ID   string
	Name string
}

// Quote is the result of resolving one product's price.
type Quote struct {
	UnitPrice decimal.Decimal
	// Campaign is nil when no flash sale applied and the base price stands.
	Campaign *CampaignRef
}

// Resolver computes effective prices from base prices and active overrides.
type Resolver struct {
	source OverrideSource
	now    func() time.Time
}

// NewResolver creates a Resolver backed by the given override source.
func NewResolver(source OverrideSource) *Resolver {
	return &Resolver{source: source, now: time.Now}
}

// ResolvePrice returns the effective unit price for a single product.
func (r *Resolver) ResolvePrice(ctx context.Context, productID string, basePrice decimal.Decimal) (Quote, error) {
	quotes, err := r.ResolvePrices(ctx, map[string]decimal.Decimal{productID: basePrice})
	if err != nil {
		return Quote{}, err
	}
	return quotes[productID], nil
}

// ResolvePrices resolves effective prices for several products in one pass.
// Keys of basePrices are product IDs; every key is present in the result.
func (r *Resolver) ResolvePrices(ctx context.Context, basePrices map[string]decimal.Decimal) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(basePrices))
	if len(basePrices) == 0 {
		return quotes, nil
	}

	ids := make([]string, 0, len(basePrices))
	for id := range basePrices {
		ids = append(ids, id)
	}

	overrides, err := r.source.ActiveOverrides(ctx, ids, r.now())
	if err != nil {
		return nil, errors.Wrap(err, "load active overrides")
	}

	// Pick a winner per product: highest priority, ties broken by the most
	// recently created campaign.
	winners := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		cur, ok := winners[o.ProductID]
		if !ok || beats(o, cur) {
			winners[o.ProductID] = o
		}
	}

	for id, base := range basePrices {
		w, ok := winners[id]
		if !ok {
			quotes[id] = Quote{UnitPrice: base}
			continue
		}

		d := w.CampaignDiscount
		if w.ProductDiscount != nil {
			d = *w.ProductDiscount
		}
		if !d.Valid() {
			return nil, errors.Wrapf(ErrUnknownDiscountKind, "campaign %s", w.CampaignID)
		}

		quotes[id] = Quote{
			UnitPrice: d.Apply(base),
			Campaign:  &CampaignRef{ID: w.CampaignID, Name: w.CampaignName},
		}
	}
	return quotes, nil
}

func beats(a, b Override) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CampaignCreatedAt.After(b.CampaignCreatedAt)
}
