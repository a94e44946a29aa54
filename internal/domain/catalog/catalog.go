// Package catalog gives the order engine read-only access to products and
// variants. Catalog management (admin CRUD, search, media) lives elsewhere;
// this core only ever looks ids up.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a referenced variant does not exist
	// or does not belong to the referenced product.
	ErrVariantNotFound = errors.New("variant not found")
)

// Product is a catalog item. BasePrice is the undiscounted unit price used
// as input to flash-sale resolution.
type Product struct {
	ID        string
	Name      string
	SKU       string
	BasePrice decimal.Decimal
}

// Variant is a purchasable SKU of a product with its own stock counter.
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	// Price overrides the product base price when set.
	Price *decimal.Decimal
	// Stock is nil for variants that are not stock-tracked. Tracked stock is
	// only ever mutated through the inventory ledger.
	Stock *int64
}

// UnitBasePrice returns the variant's own price when set, falling back to
// the product base price.
func (v *Variant) UnitBasePrice(p *Product) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.BasePrice
}

// Repository defines the read operations the engine needs from the catalog.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
}
