// Package order turns carts into immutable orders and governs their
// lifecycle afterwards. Checkout runs as a single database transaction so
// stock reservation, coupon redemption, and the order rows commit or roll
// back together.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCart is returned when checkout finds no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNotFound is returned when an order id does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrMissingShippingDetails is returned when an order is moved to
	// shipped without both a provider and a tracking reference.
	ErrMissingShippingDetails = errors.New("shipping provider and tracking are required")
)

// ActorSystem is the history actor recorded for engine-initiated changes.
const ActorSystem = "system"

// Order is the immutable record of a completed checkout. Only the status
// fields, shipping details, and UpdatedAt ever change after creation.
type Order struct {
	ID               string
	UserID           string
	CartID           string
	AddressID        *string
	Total            decimal.Decimal
	Discount         decimal.Decimal
	CouponCode       *string
	Currency         string
	Status           Status
	PaymentStatus    PaymentStatus
	ShippingProvider *string
	ShippingTracking *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item snapshots one cart line at the moment of order creation. It must
// never reflect later catalog changes.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	VariantID *string
	Quantity  int
	UnitPrice decimal.Decimal
	Name      string
	SKU       string
}

// HistoryEntry is one immutable row of the status audit trail. From is nil
// for the initial entry written at creation.
type HistoryEntry struct {
	ID        string
	OrderID   string
	From      *Status
	To        Status
	Actor     string
	Note      *string
	CreatedAt time.Time
}

// Repository defines persistence for orders, their item snapshots, and the
// status history. Methods join the transaction carried in ctx.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	InsertItems(ctx context.Context, items []Item) error
	ItemsByOrder(ctx context.Context, orderID string) ([]Item, error)
	UpdateStatus(ctx context.Context, orderID string, status Status, shippingProvider, shippingTracking *string) error
	SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)
}

// StatusChange describes a committed status transition for notification.
type StatusChange struct {
	OrderID          string
	UserID           string
	From             Status
	To               Status
	Total            decimal.Decimal
	Currency         string
	ShippingProvider *string
	ShippingTracking *string
	Note             *string
}

// Notifier delivers status-change notifications to the customer. It is
// called after the owning transaction has committed; implementations may
// fail freely, the engine logs and moves on.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, change StatusChange) error
}
