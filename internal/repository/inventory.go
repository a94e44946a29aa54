package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solemart/storefront/internal/domain/catalog"
	"github.com/solemart/storefront/internal/domain/inventory"
)

const (
	// The conditional decrement is the core correctness primitive: check
	// and reserve are one statement, so two checkouts racing for the last
	// unit cannot both match the row.
	decrementStockSQL = `UPDATE product_variants
		SET stock = stock - $2
		WHERE id = $1 AND stock IS NOT NULL AND stock >= $2`

	incrementStockSQL = `UPDATE product_variants
		SET stock = stock + $2
		WHERE id = $1 AND stock IS NOT NULL`

	variantStockSQL = `SELECT stock FROM product_variants WHERE id = $1`

	insertLogEntrySQL = `INSERT INTO inventory_log (id, variant_id, delta, reason, order_id, cart_id)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger backed by PostgreSQL.
type InventoryLedger struct {
	store *Store
}

// NewInventoryLedger returns an InventoryLedger using the given store.
func NewInventoryLedger(store *Store) *InventoryLedger {
	return &InventoryLedger{store: store}
}

// Decrement atomically reserves qty units of a tracked variant. Zero rows
// matched means either the variant is unknown, untracked, or short on
// stock; the follow-up probe tells those apart. Untracked variants succeed
// without a ledger entry since nothing changed.
func (l *InventoryLedger) Decrement(ctx context.Context, variantID string, qty int, reason inventory.Reason, ref inventory.Ref) error {
	tag, err := l.store.db(ctx).Exec(ctx, decrementStockSQL, variantID, qty)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock of variant %q", variantID)
	}
	if tag.RowsAffected() == 0 {
		tracked, err := l.trackedStock(ctx, variantID)
		if err != nil {
			return err
		}
		if !tracked {
			return nil
		}
		return inventory.ErrInsufficientStock
	}
	return l.appendLog(ctx, variantID, -int64(qty), reason, ref)
}

// Increment returns qty units to a tracked variant. It has no
// precondition; for a valid variant it always succeeds.
func (l *InventoryLedger) Increment(ctx context.Context, variantID string, qty int, reason inventory.Reason, ref inventory.Ref) error {
	tag, err := l.store.db(ctx).Exec(ctx, incrementStockSQL, variantID, qty)
	if err != nil {
		return errors.Wrapf(err, "incrementing stock of variant %q", variantID)
	}
	if tag.RowsAffected() == 0 {
		tracked, err := l.trackedStock(ctx, variantID)
		if err != nil {
			return err
		}
		if !tracked {
			return nil
		}
		// Tracked variant with no matched row cannot happen for increments.
		return errors.Errorf("incrementing stock of variant %q: no row matched", variantID)
	}
	return l.appendLog(ctx, variantID, int64(qty), reason, ref)
}

// trackedStock reports whether the variant exists and is stock-tracked.
func (l *InventoryLedger) trackedStock(ctx context.Context, variantID string) (bool, error) {
	var stock *int64
	err := l.store.db(ctx).QueryRow(ctx, variantStockSQL, variantID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, catalog.ErrVariantNotFound
		}
		return false, errors.Wrapf(err, "probing variant %q", variantID)
	}
	return stock != nil, nil
}

func (l *InventoryLedger) appendLog(ctx context.Context, variantID string, delta int64, reason inventory.Reason, ref inventory.Ref) error {
	_, err := l.store.db(ctx).Exec(ctx, insertLogEntrySQL,
		uuid.New().String(), variantID, delta, string(reason), ref.OrderID, ref.CartID,
	)
	if err != nil {
		return errors.Wrapf(err, "logging stock change of variant %q", variantID)
	}
	return nil
}
