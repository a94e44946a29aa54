package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solemart/storefront/internal/domain/catalog"
	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/pricing"
	"github.com/solemart/storefront/internal/domain/txn"
)

// PriceResolver quotes the currently effective unit price for a product.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, productID string, basePrice decimal.Decimal) (pricing.Quote, error)
}

// CouponValidator checks a code against a subtotal for a user.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*coupon.Coupon, error)
}

// Service implements the cart operations. Stock is deliberately not
// checked when items are added or updated; availability is authoritative
// only inside the order transaction, and the merge path clamps to it.
type Service struct {
	carts   Repository
	catalog catalog.Repository
	prices  PriceResolver
	coupons CouponValidator
	tx      txn.Transactor
}

// NewService creates a cart Service with the required dependencies.
func NewService(
	carts Repository,
	cat catalog.Repository,
	prices PriceResolver,
	coupons CouponValidator,
	tx txn.Transactor,
) *Service {
	return &Service{
		carts:   carts,
		catalog: cat,
		prices:  prices,
		coupons: coupons,
		tx:      tx,
	}
}

// GetOrCreate returns the owner's cart, creating an empty one on first use.
func (s *Service) GetOrCreate(ctx context.Context, owner Owner) (*Cart, []Item, error) {
	if !owner.Valid() {
		return nil, nil, ErrNoOwner
	}
	c, err := s.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get or create cart")
	}
	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart items")
	}
	return c, items, nil
}

// AddItem puts qty units of a product (variant) into the owner's cart.
// The unit price is resolved now, flash sales included, and snapshotted on
// the line. An existing line for the same (product, variant) is
// incremented instead of duplicated, and its snapshot is re-stamped to the
// currently resolved price.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID string, variantID *string, qty int) (*Item, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var out *Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		var v *catalog.Variant
		if variantID != nil {
			v, err = s.catalog.GetVariant(ctx, *variantID)
			if err != nil {
				return err
			}
			if v.ProductID != productID {
				return catalog.ErrVariantNotFound
			}
		}

		quote, err := s.prices.ResolvePrice(ctx, productID, v.UnitBasePrice(p))
		if err != nil {
			return errors.Wrap(err, "resolve price")
		}

		c, err := s.carts.GetOrCreate(ctx, owner)
		if err != nil {
			return errors.Wrap(err, "get or create cart")
		}

		existing, err := s.carts.FindItem(ctx, c.ID, productID, variantID)
		switch {
		case err == nil:
			existing.Quantity += qty
			existing.UnitPrice = quote.UnitPrice
			if err := s.carts.UpdateItemQuantity(ctx, existing.ID, existing.Quantity, quote.UnitPrice); err != nil {
				return errors.Wrap(err, "update cart item")
			}
			out = existing
			return nil
		case errors.Is(err, ErrItemNotFound):
			item := &Item{
				ID:        uuid.New().String(),
				CartID:    c.ID,
				ProductID: productID,
				VariantID: variantID,
				Quantity:  qty,
				UnitPrice: quote.UnitPrice,
				Name:      p.Name,
			}
			if err := s.carts.InsertItem(ctx, item); err != nil {
				return errors.Wrap(err, "insert cart item")
			}
			out = item
			return nil
		default:
			return errors.Wrap(err, "find cart item")
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateItemQuantity sets a line's quantity and re-stamps its price
// snapshot to the currently resolved price.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner Owner, itemID string, qty int) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var out *Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.ownedItem(ctx, owner, itemID)
		if err != nil {
			return err
		}

		p, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		var v *catalog.Variant
		if item.VariantID != nil {
			if v, err = s.catalog.GetVariant(ctx, *item.VariantID); err != nil {
				return err
			}
		}

		quote, err := s.prices.ResolvePrice(ctx, item.ProductID, v.UnitBasePrice(p))
		if err != nil {
			return errors.Wrap(err, "resolve price")
		}

		if err := s.carts.UpdateItemQuantity(ctx, item.ID, qty, quote.UnitPrice); err != nil {
			return errors.Wrap(err, "update cart item")
		}
		item.Quantity = qty
		item.UnitPrice = quote.UnitPrice
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveItem deletes one line from the owner's cart.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, itemID string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.ownedItem(ctx, owner, itemID)
		if err != nil {
			return err
		}
		return s.carts.DeleteItem(ctx, item.ID)
	})
}

// Clear removes every line and any attached coupon from the owner's cart.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.Find(ctx, owner)
		if err != nil {
			if errors.Is(err, ErrCartNotFound) {
				return nil
			}
			return err
		}
		if err := s.carts.DeleteItems(ctx, c.ID); err != nil {
			return errors.Wrap(err, "delete cart items")
		}
		return s.carts.SetCoupon(ctx, c.ID, nil)
	})
}

// ApplyCoupon validates code against the cart's current subtotal, attaches
// it to the cart, and returns the projected discount amount. The binding
// validation happens again inside the order transaction.
func (s *Service) ApplyCoupon(ctx context.Context, owner Owner, code string) (decimal.Decimal, error) {
	if !owner.Valid() {
		return decimal.Zero, ErrNoOwner
	}

	userID := ""
	if owner.UserID != nil {
		userID = *owner.UserID
	}

	var amountOff decimal.Decimal
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.Find(ctx, owner)
		if err != nil {
			return err
		}
		items, err := s.carts.Items(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "load cart items")
		}

		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.Subtotal())
		}

		cpn, err := s.coupons.Validate(ctx, code, subtotal, userID)
		if err != nil {
			return err
		}

		amountOff = cpn.Discount.AmountOff(subtotal)
		return s.carts.SetCoupon(ctx, c.ID, &cpn.Code)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amountOff, nil
}

// ownedItem loads a line and checks it belongs to the owner's cart.
func (s *Service) ownedItem(ctx context.Context, owner Owner, itemID string) (*Item, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	c, err := s.carts.Find(ctx, owner)
	if err != nil {
		return nil, err
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.CartID != c.ID {
		return nil, ErrItemNotFound
	}
	return item, nil
}
