package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/solemart/storefront/internal/domain/catalog"
)

// MergeGuestIntoUser folds the guest cart identified by sessionToken into
// userID's cart inside one transaction. Lines for the same (product,
// variant) are summed; other lines are moved. When a summed or moved
// quantity exceeds a tracked variant's available stock it is clamped and
// reported as a conflict rather than failing the merge. The guest cart is
// deleted afterwards, which makes the operation idempotent: with no guest
// cart left, it just ensures the user cart exists and reports zero merges.
func (s *Service) MergeGuestIntoUser(ctx context.Context, sessionToken, userID string) (*MergeResult, error) {
	if sessionToken == "" || userID == "" {
		return nil, ErrNoOwner
	}

	var result *MergeResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		userCart, err := s.carts.GetOrCreate(ctx, Owner{UserID: &userID})
		if err != nil {
			return errors.Wrap(err, "ensure user cart")
		}
		result = &MergeResult{CartID: userCart.ID}

		guestCart, err := s.carts.Find(ctx, Owner{SessionToken: &sessionToken})
		if err != nil {
			if errors.Is(err, ErrCartNotFound) {
				return nil
			}
			return errors.Wrap(err, "find guest cart")
		}

		guestItems, err := s.carts.Items(ctx, guestCart.ID)
		if err != nil {
			return errors.Wrap(err, "load guest items")
		}

		for _, gi := range guestItems {
			if err := s.mergeLine(ctx, userCart.ID, gi, result); err != nil {
				return err
			}
			result.Merged++
		}

		if err := s.carts.Delete(ctx, guestCart.ID); err != nil {
			return errors.Wrap(err, "delete guest cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) mergeLine(ctx context.Context, userCartID string, gi Item, result *MergeResult) error {
	requested := gi.Quantity
	existing, err := s.carts.FindItem(ctx, userCartID, gi.ProductID, gi.VariantID)
	if err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			return errors.Wrap(err, "find user line")
		}
		existing = nil
	} else {
		requested = existing.Quantity + gi.Quantity
	}

	final, err := s.clampToStock(ctx, gi.VariantID, requested)
	if err != nil {
		return err
	}
	if final != requested {
		result.Conflicts = append(result.Conflicts, MergeConflict{
			ProductID: gi.ProductID,
			VariantID: gi.VariantID,
			Requested: requested,
			Final:     final,
		})
	}

	if existing != nil {
		// Sum into the user line; the guest line goes away with its cart.
		if final == 0 {
			if err := s.carts.DeleteItem(ctx, existing.ID); err != nil {
				return errors.Wrap(err, "drop out-of-stock user line")
			}
		} else if err := s.carts.UpdateItemQuantity(ctx, existing.ID, final, existing.UnitPrice); err != nil {
			return errors.Wrap(err, "sum quantities")
		}
		if err := s.carts.DeleteItem(ctx, gi.ID); err != nil {
			return errors.Wrap(err, "drop merged guest line")
		}
		return nil
	}

	if final == 0 {
		// Nothing left to move after clamping.
		if err := s.carts.DeleteItem(ctx, gi.ID); err != nil {
			return errors.Wrap(err, "drop out-of-stock guest line")
		}
		return nil
	}
	if final != gi.Quantity {
		if err := s.carts.UpdateItemQuantity(ctx, gi.ID, final, gi.UnitPrice); err != nil {
			return errors.Wrap(err, "clamp guest line")
		}
	}
	if err := s.carts.MoveItem(ctx, gi.ID, userCartID); err != nil {
		return errors.Wrap(err, "move guest line")
	}
	return nil
}

// clampToStock limits qty to the variant's available stock. Lines without
// a variant, or with an untracked (NULL stock) variant, never clamp.
func (s *Service) clampToStock(ctx context.Context, variantID *string, qty int) (int, error) {
	if variantID == nil {
		return qty, nil
	}
	v, err := s.catalog.GetVariant(ctx, *variantID)
	if err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return qty, nil
		}
		return 0, errors.Wrap(err, "load variant stock")
	}
	if v.Stock == nil || int64(qty) <= *v.Stock {
		return qty, nil
	}
	return int(*v.Stock), nil
}
