package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/catalog"
	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/inventory"
	"github.com/solemart/storefront/internal/domain/txn"
)

// CouponValidator validates a code inside the checkout transaction and
// redeems it once the order exists.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*coupon.Coupon, error)
	Redeem(ctx context.Context, couponID, userID, orderID string) error
}

// Service is the order transaction orchestrator and status state machine.
type Service struct {
	tx       txn.Transactor
	carts    cart.Repository
	catalog  catalog.Repository
	coupons  CouponValidator
	stock    inventory.Ledger
	orders   Repository
	notifier Notifier
}

// NewService creates an order Service with the required dependencies.
func NewService(
	tx txn.Transactor,
	carts cart.Repository,
	cat catalog.Repository,
	coupons CouponValidator,
	stock inventory.Ledger,
	orders Repository,
	notifier Notifier,
) *Service {
	return &Service{
		tx:       tx,
		carts:    carts,
		catalog:  cat,
		coupons:  coupons,
		stock:    stock,
		orders:   orders,
		notifier: notifier,
	}
}

// PlaceOrderRequest holds the input for converting a cart into an order.
type PlaceOrderRequest struct {
	CartID    string
	UserID    string
	AddressID *string
	// CouponCode overrides the code attached to the cart when set.
	CouponCode *string
	Currency   string
}

// PlaceOrder atomically converts a cart into an order. Stock decrements,
// coupon redemption, the order rows, and the cart cleanup all happen in one
// transaction; any failure rolls the whole attempt back so
// no partial reservation is ever observable. Line prices are the cart's
// snapshots, not re-resolved quotes: the price at add time is binding.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if req.CartID == "" || req.UserID == "" {
		return nil, errors.New("cart id and user id are required")
	}
	if req.Currency == "" {
		return nil, errors.New("currency is required")
	}

	var ord *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.Get(ctx, req.CartID)
		if err != nil {
			return err
		}

		items, err := s.carts.Items(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "load cart items")
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.Subtotal())
		}

		code := req.CouponCode
		if code == nil {
			code = c.CouponCode
		}

		var cpn *coupon.Coupon
		if code != nil && *code != "" {
			if cpn, err = s.coupons.Validate(ctx, *code, subtotal, req.UserID); err != nil {
				return err
			}
		}

		// Reserve stock for every variant line. The first failure aborts the
		// transaction, undoing the decrements already made for earlier lines.
		for _, it := range items {
			if it.VariantID == nil {
				continue
			}
			err := s.stock.Decrement(ctx, *it.VariantID, it.Quantity, inventory.ReasonOrderCreation, inventory.Ref{CartID: &c.ID})
			if err != nil {
				return err
			}
		}

		discount := decimal.Zero
		if cpn != nil {
			discount = cpn.Discount.AmountOff(subtotal)
		}
		total := subtotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		ord = &Order{
			ID:            uuid.New().String(),
			UserID:        req.UserID,
			CartID:        c.ID,
			AddressID:     req.AddressID,
			Total:         total.Round(2),
			Discount:      discount.Round(2),
			Currency:      req.Currency,
			Status:        StatusPending,
			PaymentStatus: PaymentUnpaid,
		}
		if cpn != nil {
			ord.CouponCode = &cpn.Code
		}
		if err := s.orders.Insert(ctx, ord); err != nil {
			return errors.Wrap(err, "create order")
		}

		if err := s.orders.AppendHistory(ctx, HistoryEntry{
			ID:      uuid.New().String(),
			OrderID: ord.ID,
			To:      StatusPending,
			Actor:   ActorSystem,
		}); err != nil {
			return errors.Wrap(err, "append initial history")
		}

		orderItems, err := s.snapshotItems(ctx, ord.ID, items)
		if err != nil {
			return err
		}
		if err := s.orders.InsertItems(ctx, orderItems); err != nil {
			return errors.Wrap(err, "insert order items")
		}

		if cpn != nil {
			if err := s.coupons.Redeem(ctx, cpn.ID, req.UserID, ord.ID); err != nil {
				return err
			}
		}

		if err := s.carts.DeleteItems(ctx, c.ID); err != nil {
			return errors.Wrap(err, "clear cart items")
		}
		if err := s.carts.SetCoupon(ctx, c.ID, nil); err != nil {
			return errors.Wrap(err, "detach cart coupon")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

// snapshotItems converts cart lines to order item snapshots, filling in
// the live product name when the cart's own name snapshot is stale or
// missing, and the variant/product SKU.
func (s *Service) snapshotItems(ctx context.Context, orderID string, items []cart.Item) ([]Item, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load products for snapshot")
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrProductNotFound, "product %s", it.ProductID)
		}

		name := it.Name
		if name == "" {
			name = p.Name
		}

		sku := p.SKU
		if it.VariantID != nil {
			v, err := s.catalog.GetVariant(ctx, *it.VariantID)
			if err != nil {
				return nil, err
			}
			if v.SKU != "" {
				sku = v.SKU
			}
		}

		out = append(out, Item{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Name:      name,
			SKU:       sku,
		})
	}
	return out, nil
}

// UpdateStatusRequest holds the input for a status transition.
type UpdateStatusRequest struct {
	OrderID          string
	Target           Status
	ShippingProvider *string
	ShippingTracking *string
	Note             *string
	Actor            string
}

// UpdateStatus applies one transition of the order state machine. Illegal
// targets are rejected with the current status and its allowed-next set;
// moving into shipped demands shipping details; moving into cancelled
// restocks every variant line inside the same transaction. A same-status
// update is a no-op: no history row, no side effects, no notification.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error) {
	if _, err := ParseStatus(string(req.Target)); err != nil {
		return nil, err
	}
	actor := req.Actor
	if actor == "" {
		actor = ActorSystem
	}

	var (
		ord     *Order
		from    Status
		changed bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		ord, err = s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		from = ord.Status

		if req.Target == ord.Status {
			return nil
		}
		if !ord.Status.CanTransitionTo(req.Target) {
			return &InvalidTransitionError{
				From:    ord.Status,
				To:      req.Target,
				Allowed: ord.Status.AllowedNext(),
			}
		}

		if req.Target == StatusShipped {
			if !hasValue(req.ShippingProvider) || !hasValue(req.ShippingTracking) {
				return ErrMissingShippingDetails
			}
		}

		if req.Target == StatusCancelled {
			if err := s.restock(ctx, ord.ID); err != nil {
				return err
			}
		}

		if err := s.orders.UpdateStatus(ctx, ord.ID, req.Target, req.ShippingProvider, req.ShippingTracking); err != nil {
			return errors.Wrap(err, "update order status")
		}
		if err := s.orders.AppendHistory(ctx, HistoryEntry{
			ID:      uuid.New().String(),
			OrderID: ord.ID,
			From:    &from,
			To:      req.Target,
			Actor:   actor,
			Note:    req.Note,
		}); err != nil {
			return errors.Wrap(err, "append history")
		}

		ord.Status = req.Target
		if req.ShippingProvider != nil {
			ord.ShippingProvider = req.ShippingProvider
		}
		if req.ShippingTracking != nil {
			ord.ShippingTracking = req.ShippingTracking
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.notify(ctx, StatusChange{
			OrderID:          ord.ID,
			UserID:           ord.UserID,
			From:             from,
			To:               ord.Status,
			Total:            ord.Total,
			Currency:         ord.Currency,
			ShippingProvider: ord.ShippingProvider,
			ShippingTracking: ord.ShippingTracking,
			Note:             req.Note,
		})
	}
	return ord, nil
}

// Get returns one order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// Items returns the item snapshots of an order.
func (s *Service) Items(ctx context.Context, orderID string) ([]Item, error) {
	return s.orders.ItemsByOrder(ctx, orderID)
}

// History returns the status audit trail of an order.
func (s *Service) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	return s.orders.History(ctx, orderID)
}

// SetPaymentStatus records the payment state reported by the payment
// collaborator. The fulfilment status axis is untouched.
func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) (*Order, error) {
	if _, err := ParsePaymentStatus(string(status)); err != nil {
		return nil, err
	}
	var ord *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if ord, err = s.orders.Get(ctx, orderID); err != nil {
			return err
		}
		if ord.PaymentStatus == status {
			return nil
		}
		if err := s.orders.SetPaymentStatus(ctx, orderID, status); err != nil {
			return errors.Wrap(err, "set payment status")
		}
		ord.PaymentStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

// restock returns every variant line's quantity to inventory, one
// order_cancelled log entry per line.
func (s *Service) restock(ctx context.Context, orderID string) error {
	items, err := s.orders.ItemsByOrder(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}
	for _, it := range items {
		if it.VariantID == nil {
			continue
		}
		err := s.stock.Increment(ctx, *it.VariantID, it.Quantity, inventory.ReasonOrderCancelled, inventory.Ref{OrderID: &orderID})
		if err != nil {
			return errors.Wrap(err, "restock variant")
		}
	}
	return nil
}

// notify hands the committed change to the notifier. Notification is
// best-effort: a failure here must never undo the status change, so the
// error is logged and dropped.
func (s *Service) notify(ctx context.Context, change StatusChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.OrderStatusChanged(ctx, change); err != nil {
		zctx.From(ctx).Warn("order status notification failed",
			zap.String("order_id", change.OrderID),
			zap.String("to", string(change.To)),
			zap.Error(err),
		)
	}
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
