package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/solemart/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, cart_id, address_id, total, discount,
			coupon_code, currency, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT id, user_id, cart_id, address_id, total, discount, coupon_code,
			currency, status, payment_status, shipping_provider, shipping_tracking,
			created_at, updated_at
		FROM orders WHERE id = $1`

	// Shipping fields are written together with the status so a move to
	// shipped and its tracking details are one atomic update. COALESCE
	// keeps existing values when the caller passes nothing.
	updateOrderStatusSQL = `UPDATE orders
		SET status = $2,
			shipping_provider = COALESCE($3, shipping_provider),
			shipping_tracking = COALESCE($4, shipping_tracking),
			updated_at = now()
		WHERE id = $1`

	setPaymentStatusSQL = `UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, unit_price, name, sku)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	itemsByOrderSQL = `SELECT id, order_id, product_id, variant_id, quantity, unit_price, name, sku
		FROM order_items WHERE order_id = $1 ORDER BY id`

	insertHistorySQL = `INSERT INTO order_status_history (id, order_id, from_status, to_status, actor, note)
		VALUES ($1, $2, $3, $4, $5, $6)`

	historyByOrderSQL = `SELECT id, order_id, from_status, to_status, actor, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository returns an OrderRepository using the given store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Insert persists a freshly created order.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	_, err := r.store.db(ctx).Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.CartID, o.AddressID, o.Total, o.Discount,
		o.CouponCode, o.Currency, string(o.Status), string(o.PaymentStatus),
	)
	if err != nil {
		return errors.Wrapf(err, "inserting order %q", o.ID)
	}
	return nil
}

// Get returns an order by id. Returns order.ErrOrderNotFound when missing.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.store.db(ctx).Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", id)
	}
	return &o, nil
}

// InsertItems persists the order's item snapshots.
func (r *OrderRepository) InsertItems(ctx context.Context, items []order.Item) error {
	db := r.store.db(ctx)
	for _, it := range items {
		_, err := db.Exec(ctx, insertOrderItemSQL,
			it.ID, it.OrderID, it.ProductID, it.VariantID,
			it.Quantity, it.UnitPrice, it.Name, it.SKU,
		)
		if err != nil {
			return errors.Wrapf(err, "inserting item of order %q", it.OrderID)
		}
	}
	return nil
}

// ItemsByOrder returns the order's item snapshots.
func (r *OrderRepository) ItemsByOrder(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := r.store.db(ctx).Query(ctx, itemsByOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing items of order %q", orderID)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

// UpdateStatus sets the order's status and, when given, its shipping
// details. Returns order.ErrOrderNotFound when the order does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status, shippingProvider, shippingTracking *string) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateOrderStatusSQL,
		orderID, string(status), shippingProvider, shippingTracking,
	)
	if err != nil {
		return errors.Wrapf(err, "updating status of order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// SetPaymentStatus sets the order's payment axis.
func (r *OrderRepository) SetPaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error {
	tag, err := r.store.db(ctx).Exec(ctx, setPaymentStatusSQL, orderID, string(status))
	if err != nil {
		return errors.Wrapf(err, "setting payment status of order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// AppendHistory writes one immutable audit row.
func (r *OrderRepository) AppendHistory(ctx context.Context, entry order.HistoryEntry) error {
	var from *string
	if entry.From != nil {
		s := string(*entry.From)
		from = &s
	}
	_, err := r.store.db(ctx).Exec(ctx, insertHistorySQL,
		entry.ID, entry.OrderID, from, string(entry.To), entry.Actor, entry.Note,
	)
	if err != nil {
		return errors.Wrapf(err, "appending history of order %q", entry.OrderID)
	}
	return nil
}

// History returns the order's audit trail, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	rows, err := r.store.db(ctx).Query(ctx, historyByOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing history of order %q", orderID)
	}
	return pgx.CollectRows(rows, scanHistoryEntry)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o               order.Order
		status, payment string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CartID, &o.AddressID, &o.Total, &o.Discount,
		&o.CouponCode, &o.Currency, &status, &payment,
		&o.ShippingProvider, &o.ShippingTracking, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payment)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.VariantID,
		&it.Quantity, &it.UnitPrice, &it.Name, &it.SKU,
	)
	return it, err
}

func scanHistoryEntry(row pgx.CollectableRow) (order.HistoryEntry, error) {
	var (
		e        order.HistoryEntry
		from     *string
		toStatus string
	)
	err := row.Scan(&e.ID, &e.OrderID, &from, &toStatus, &e.Actor, &e.Note, &e.CreatedAt)
	if from != nil {
		s := order.Status(*from)
		e.From = &s
	}
	e.To = order.Status(toStatus)
	return e, err
}
