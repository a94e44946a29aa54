// Package inventory defines the ledger that owns per-variant stock
// counters. All stock mutations go through the ledger as atomic
// conditional updates paired with an append-only log entry; nothing else
// in the system is allowed to read-then-write a stock value.
package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrInsufficientStock is returned when a decrement would take a tracked
// variant's stock below zero. The reservation is all-or-nothing: the
// counter is left untouched.
var ErrInsufficientStock = errors.New("insufficient stock")

// Reason tags a ledger entry with the business event that caused it.
type Reason string

const (
	// ReasonOrderCreation marks stock reserved by checkout.
	ReasonOrderCreation Reason = "order_creation"
	// ReasonOrderCancelled marks stock returned by order cancellation.
	ReasonOrderCancelled Reason = "order_cancelled"
)

// Ref links a ledger entry to the cart or order that caused it.
type Ref struct {
	OrderID *string
	CartID  *string
}

// LogEntry is one immutable row of the stock audit trail.
type LogEntry struct {
	ID        string
	VariantID string
	Delta     int64
	Reason    Reason
	OrderID   *string
	CartID    *string
	CreatedAt time.Time
}

// Ledger mutates variant stock. Decrement fails with ErrInsufficientStock
// when the variant is tracked and has fewer than qty units; Increment has
// no precondition. Both are no-ops for untracked (NULL stock) variants and
// must be called inside the transaction that owns the surrounding business
// operation.
type Ledger interface {
	Decrement(ctx context.Context, variantID string, qty int, reason Reason, ref Ref) error
	Increment(ctx context.Context, variantID string, qty int, reason Reason, ref Ref) error
}
