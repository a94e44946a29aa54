package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/solemart/storefront/internal/domain/cart"
)

const (
	insertUserCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	insertGuestCartSQL = `INSERT INTO carts (id, session_token) VALUES ($1, $2)
		ON CONFLICT (session_token) DO NOTHING`

	cartColumns = `id, user_id, session_token, coupon_code, created_at, updated_at`

	getCartSQL        = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	findUserCartSQL   = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
	findGuestCartSQL  = `SELECT ` + cartColumns + ` FROM carts WHERE session_token = $1`
	deleteCartSQL     = `DELETE FROM carts WHERE id = $1`
	setCartCouponSQL  = `UPDATE carts SET coupon_code = $2, updated_at = now() WHERE id = $1`
	touchCartSQL      = `UPDATE carts SET updated_at = now() WHERE id = $1`
	deleteAllItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	itemColumns = `id, cart_id, product_id, variant_id, quantity, unit_price, name, created_at, updated_at`

	itemsByCartSQL = `SELECT ` + itemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY created_at`
	getItemSQL     = `SELECT ` + itemColumns + ` FROM cart_items WHERE id = $1`

	findItemSQL = `SELECT ` + itemColumns + ` FROM cart_items
		WHERE cart_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3`

	insertItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, unit_price, name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateItemQuantitySQL = `UPDATE cart_items SET quantity = $2, unit_price = $3, updated_at = now()
		WHERE id = $1`

	moveItemSQL   = `UPDATE cart_items SET cart_id = $2, updated_at = now() WHERE id = $1`
	deleteItemSQL = `DELETE FROM cart_items WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	store *Store
}

// NewCartRepository returns a CartRepository using the given store.
func NewCartRepository(store *Store) *CartRepository {
	return &CartRepository{store: store}
}

// GetOrCreate returns the owner's cart, inserting an empty one on first
// use. The unique owner columns make the insert race-safe: concurrent
// first adds end up with the same cart.
func (r *CartRepository) GetOrCreate(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	db := r.store.db(ctx)
	switch {
	case owner.UserID != nil && *owner.UserID != "":
		if _, err := db.Exec(ctx, insertUserCartSQL, uuid.New().String(), *owner.UserID); err != nil {
			return nil, errors.Wrap(err, "creating user cart")
		}
	case owner.SessionToken != nil && *owner.SessionToken != "":
		if _, err := db.Exec(ctx, insertGuestCartSQL, uuid.New().String(), *owner.SessionToken); err != nil {
			return nil, errors.Wrap(err, "creating guest cart")
		}
	default:
		return nil, cart.ErrNoOwner
	}
	return r.Find(ctx, owner)
}

// Get returns a cart by id. Returns cart.ErrCartNotFound when missing.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Cart, error) {
	return r.oneCart(ctx, getCartSQL, id)
}

// Find returns the owner's cart. Returns cart.ErrCartNotFound when the
// owner has none.
func (r *CartRepository) Find(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	switch {
	case owner.UserID != nil && *owner.UserID != "":
		return r.oneCart(ctx, findUserCartSQL, *owner.UserID)
	case owner.SessionToken != nil && *owner.SessionToken != "":
		return r.oneCart(ctx, findGuestCartSQL, *owner.SessionToken)
	default:
		return nil, cart.ErrNoOwner
	}
}

// Items returns all lines of a cart in insertion order.
func (r *CartRepository) Items(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := r.store.db(ctx).Query(ctx, itemsByCartSQL, cartID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing items of cart %q", cartID)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// GetItem returns one line by id. Returns cart.ErrItemNotFound when missing.
func (r *CartRepository) GetItem(ctx context.Context, itemID string) (*cart.Item, error) {
	return r.oneItem(ctx, getItemSQL, itemID)
}

// FindItem returns the line for (cart, product, variant), treating NULL
// variants as equal. Returns cart.ErrItemNotFound when no such line exists.
func (r *CartRepository) FindItem(ctx context.Context, cartID, productID string, variantID *string) (*cart.Item, error) {
	return r.oneItem(ctx, findItemSQL, cartID, productID, variantID)
}

// InsertItem persists a new cart line.
func (r *CartRepository) InsertItem(ctx context.Context, item *cart.Item) error {
	_, err := r.store.db(ctx).Exec(ctx, insertItemSQL,
		item.ID, item.CartID, item.ProductID, item.VariantID,
		item.Quantity, item.UnitPrice, item.Name,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting cart item %q", item.ID)
	}
	if _, err := r.store.db(ctx).Exec(ctx, touchCartSQL, item.CartID); err != nil {
		return errors.Wrap(err, "touching cart")
	}
	return nil
}

// UpdateItemQuantity sets a line's quantity and price snapshot.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, itemID string, qty int, unitPrice decimal.Decimal) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateItemQuantitySQL, itemID, qty, unitPrice)
	if err != nil {
		return errors.Wrapf(err, "updating cart item %q", itemID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// MoveItem reassigns a line to another cart.
func (r *CartRepository) MoveItem(ctx context.Context, itemID, toCartID string) error {
	tag, err := r.store.db(ctx).Exec(ctx, moveItemSQL, itemID, toCartID)
	if err != nil {
		return errors.Wrapf(err, "moving cart item %q", itemID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes one line.
func (r *CartRepository) DeleteItem(ctx context.Context, itemID string) error {
	if _, err := r.store.db(ctx).Exec(ctx, deleteItemSQL, itemID); err != nil {
		return errors.Wrapf(err, "deleting cart item %q", itemID)
	}
	return nil
}

// DeleteItems removes every line of a cart.
func (r *CartRepository) DeleteItems(ctx context.Context, cartID string) error {
	if _, err := r.store.db(ctx).Exec(ctx, deleteAllItemsSQL, cartID); err != nil {
		return errors.Wrapf(err, "clearing cart %q", cartID)
	}
	return nil
}

// SetCoupon attaches (or with nil detaches) a coupon code on the cart.
func (r *CartRepository) SetCoupon(ctx context.Context, cartID string, code *string) error {
	if _, err := r.store.db(ctx).Exec(ctx, setCartCouponSQL, cartID, code); err != nil {
		return errors.Wrapf(err, "setting coupon on cart %q", cartID)
	}
	return nil
}

// Delete removes a cart; its lines go with it via ON DELETE CASCADE.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if _, err := r.store.db(ctx).Exec(ctx, deleteCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "deleting cart %q", cartID)
	}
	return nil
}

func (r *CartRepository) oneCart(ctx context.Context, sql string, args ...any) (*cart.Cart, error) {
	rows, err := r.store.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrCartNotFound
		}
		return nil, errors.Wrap(err, "querying cart")
	}
	return &c, nil
}

func (r *CartRepository) oneItem(ctx context.Context, sql string, args ...any) (*cart.Item, error) {
	rows, err := r.store.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying cart item")
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "querying cart item")
	}
	return &item, nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.SessionToken, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.CartID, &it.ProductID, &it.VariantID,
		&it.Quantity, &it.UnitPrice, &it.Name, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}
