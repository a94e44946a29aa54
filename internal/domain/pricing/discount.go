package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountKind enumerates the supported discount strategies.
type DiscountKind string

const (
	// DiscountPercent reduces the base by a percentage of itself.
	DiscountPercent DiscountKind = "percent"
	// DiscountAmount subtracts a fixed monetary amount from the base.
	DiscountAmount DiscountKind = "amount"
)

// ErrUnknownDiscountKind is returned when a stored discount row carries a
// kind this code does not understand.
var ErrUnknownDiscountKind = errors.New("unknown discount kind")

// Discount is the discriminated union of discount shapes shared by flash
// sales and coupons. Campaign-level rows, per-product overrides, and coupon
// rules all reduce to one of these two forms.
type Discount struct {
	Kind  DiscountKind
	Value decimal.Decimal
}

// Percent builds a percentage discount.
func Percent(value decimal.Decimal) Discount {
	return Discount{Kind: DiscountPercent, Value: value}
}

// Amount builds a fixed-amount discount.
func Amount(value decimal.Decimal) Discount {
	return Discount{Kind: DiscountAmount, Value: value}
}

// Apply returns the discounted price for base, floored at zero and rounded
// to two decimal places.
func (d Discount) Apply(base decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch d.Kind {
	case DiscountPercent:
		out = base.Sub(base.Mul(d.Value).Div(hundred))
	case DiscountAmount:
		out = base.Sub(d.Value)
	default:
		out = base
	}
	return floorAtZero(out).Round(2)
}

// AmountOff returns how much Apply would subtract from base. It never
// exceeds base.
func (d Discount) AmountOff(base decimal.Decimal) decimal.Decimal {
	return base.Sub(d.Apply(base))
}

// Valid reports whether the kind is one of the known variants.
func (d Discount) Valid() bool {
	return d.Kind == DiscountPercent || d.Kind == DiscountAmount
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
