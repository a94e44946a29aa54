package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/solemart/storefront/internal/domain/pricing"
)

// Ordering matches the resolver's tie-break (priority, then newest
// campaign) so row order alone would already pick the winner.
const activeOverridesSQL = `SELECT fsp.product_id, fs.id, fs.name, fs.priority, fs.created_at,
		fs.discount_type, fs.value, fsp.discount_type, fsp.value
	FROM flash_sale_products fsp
	JOIN flash_sales fs ON fs.id = fsp.flash_sale_id
	WHERE fsp.product_id = ANY($1)
		AND fs.active = TRUE
		AND fs.starts_at <= $2
		AND fs.ends_at > $2
	ORDER BY fs.priority DESC, fs.created_at DESC`

var _ pricing.OverrideSource = (*FlashSaleRepository)(nil)

// FlashSaleRepository implements pricing.OverrideSource backed by
// PostgreSQL.
type FlashSaleRepository struct {
	store *Store
}

// NewFlashSaleRepository returns a FlashSaleRepository using the given store.
func NewFlashSaleRepository(store *Store) *FlashSaleRepository {
	return &FlashSaleRepository{store: store}
}

// ActiveOverrides returns all flash-sale rows applying to the given
// products at the given instant, for every product in one query.
func (r *FlashSaleRepository) ActiveOverrides(ctx context.Context, productIDs []string, at time.Time) ([]pricing.Override, error) {
	rows, err := r.store.db(ctx).Query(ctx, activeOverridesSQL, productIDs, at)
	if err != nil {
		return nil, errors.Wrap(err, "querying active overrides")
	}
	return pgx.CollectRows(rows, scanOverride)
}

func scanOverride(row pgx.CollectableRow) (pricing.Override, error) {
	var (
		o            pricing.Override
		campaignKind string
		productKind  *string
		productValue *decimal.Decimal
	)
	err := row.Scan(
		&o.ProductID, &o.CampaignID, &o.CampaignName, &o.Priority, &o.CampaignCreatedAt,
		&campaignKind, &o.CampaignDiscount.Value, &productKind, &productValue,
	)
	if err != nil {
		return o, err
	}

	o.CampaignDiscount.Kind = pricing.DiscountKind(campaignKind)
	if productKind != nil && productValue != nil {
		o.ProductDiscount = &pricing.Discount{
			Kind:  pricing.DiscountKind(*productKind),
			Value: *productValue,
		}
	}
	return o, nil
}
