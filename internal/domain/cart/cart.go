// Package cart holds the mutable pre-purchase container of line items.
// A cart belongs to either a signed-in user or an anonymous session, never
// both at once; guest carts are folded into user carts on sign-in.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrCartNotFound is returned when a cart id or owner has no cart.
	ErrCartNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a cart line does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrNoOwner is returned when neither a user id nor a session token is
	// available to identify the cart.
	ErrNoOwner = errors.New("cart owner is required")
)

// Owner identifies who a cart belongs to: exactly one of UserID or
// SessionToken. When both are set the user identity wins.
type Owner struct {
	UserID       *string
	SessionToken *string
}

// Valid reports whether at least one identity path is present.
func (o Owner) Valid() bool {
	return (o.UserID != nil && *o.UserID != "") || (o.SessionToken != nil && *o.SessionToken != "")
}

// Cart is the container row. CouponCode is a pre-checkout attachment; it is
// validated for real only inside the order transaction.
type Cart struct {
	ID           string
	UserID       *string
	SessionToken *string
	CouponCode   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is one cart line. UnitPrice and Name are snapshots taken when the
// line was added (re-stamped on quantity changes), not live catalog reads.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	VariantID *string
	Quantity  int
	UnitPrice decimal.Decimal
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal returns the line total, quantity times the price snapshot.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MergeConflict reports one line whose quantity was clamped to available
// stock during a guest-to-user merge.
type MergeConflict struct {
	ProductID string
	VariantID *string
	Requested int
	Final     int
}

// MergeResult summarises a guest-to-user merge.
type MergeResult struct {
	CartID    string
	Merged    int
	Conflicts []MergeConflict
}

// Repository defines persistence for carts and their lines. Methods join
// the transaction carried in ctx when one is present.
type Repository interface {
	GetOrCreate(ctx context.Context, owner Owner) (*Cart, error)
	Get(ctx context.Context, id string) (*Cart, error)
	Find(ctx context.Context, owner Owner) (*Cart, error)
	Items(ctx context.Context, cartID string) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	FindItem(ctx context.Context, cartID, productID string, variantID *string) (*Item, error)
	InsertItem(ctx context.Context, item *Item) error
	UpdateItemQuantity(ctx context.Context, itemID string, qty int, unitPrice decimal.Decimal) error
	MoveItem(ctx context.Context, itemID, toCartID string) error
	DeleteItem(ctx context.Context, itemID string) error
	DeleteItems(ctx context.Context, cartID string) error
	SetCoupon(ctx context.Context, cartID string, code *string) error
	Delete(ctx context.Context, cartID string) error
}
