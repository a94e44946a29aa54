package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/catalog"
	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/inventory"
	"github.com/solemart/storefront/internal/domain/pricing"
	"github.com/solemart/storefront/internal/domain/txn"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts       map[string]*cart.Cart
	items       map[string][]cart.Item
	cleared     []string
	couponUnset bool
}

func (m *mockCartRepo) GetOrCreate(_ context.Context, _ cart.Owner) (*cart.Cart, error) {
	return nil, errors.New("not used")
}

func (m *mockCartRepo) Get(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return c, nil
}

func (m *mockCartRepo) Find(_ context.Context, _ cart.Owner) (*cart.Cart, error) {
	return nil, cart.ErrCartNotFound
}

func (m *mockCartRepo) Items(_ context.Context, cartID string) ([]cart.Item, error) {
	return m.items[cartID], nil
}

func (m *mockCartRepo) GetItem(_ context.Context, _ string) (*cart.Item, error) {
	return nil, cart.ErrItemNotFound
}

func (m *mockCartRepo) FindItem(_ context.Context, _, _ string, _ *string) (*cart.Item, error) {
	return nil, cart.ErrItemNotFound
}

func (m *mockCartRepo) InsertItem(_ context.Context, _ *cart.Item) error { return nil }

func (m *mockCartRepo) UpdateItemQuantity(_ context.Context, _ string, _ int, _ decimal.Decimal) error {
	return nil
}

func (m *mockCartRepo) MoveItem(_ context.Context, _, _ string) error { return nil }
func (m *mockCartRepo) DeleteItem(_ context.Context, _ string) error  { return nil }

func (m *mockCartRepo) DeleteItems(_ context.Context, cartID string) error {
	m.cleared = append(m.cleared, cartID)
	delete(m.items, cartID)
	return nil
}

func (m *mockCartRepo) SetCoupon(_ context.Context, _ string, code *string) error {
	if code == nil {
		m.couponUnset = true
	}
	return nil
}

func (m *mockCartRepo) Delete(_ context.Context, _ string) error { return nil }

type mockCatalogRepo struct {
	products map[string]catalog.Product
	variants map[string]catalog.Variant
}

func (m *mockCatalogRepo) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (m *mockCatalogRepo) GetProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &v, nil
}

type mockValidator struct {
	coupon      *coupon.Coupon
	validateErr error
	redeemed    []string
}

func (m *mockValidator) Validate(_ context.Context, _ string, _ decimal.Decimal, _ string) (*coupon.Coupon, error) {
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	return m.coupon, nil
}

func (m *mockValidator) Redeem(_ context.Context, couponID, _, orderID string) error {
	m.redeemed = append(m.redeemed, couponID+":"+orderID)
	return nil
}

type stockCall struct {
	variantID string
	qty       int
	reason    inventory.Reason
}

type mockLedger struct {
	decrements []stockCall
	increments []stockCall
	failOn     string
}

func (m *mockLedger) Decrement(_ context.Context, variantID string, qty int, reason inventory.Reason, _ inventory.Ref) error {
	if variantID == m.failOn {
		return inventory.ErrInsufficientStock
	}
	m.decrements = append(m.decrements, stockCall{variantID, qty, reason})
	return nil
}

func (m *mockLedger) Increment(_ context.Context, variantID string, qty int, reason inventory.Reason, _ inventory.Ref) error {
	m.increments = append(m.increments, stockCall{variantID, qty, reason})
	return nil
}

type mockOrderRepo struct {
	orders    map[string]*Order
	items     map[string][]Item
	history   []HistoryEntry
	insertErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: map[string]*Order{}, items: map[string][]Item{}}
}

func (m *mockOrderRepo) Insert(_ context.Context, o *Order) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) InsertItems(_ context.Context, items []Item) error {
	for _, it := range items {
		m.items[it.OrderID] = append(m.items[it.OrderID], it)
	}
	return nil
}

func (m *mockOrderRepo) ItemsByOrder(_ context.Context, orderID string) ([]Item, error) {
	return m.items[orderID], nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, status Status, provider, tracking *string) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if provider != nil {
		o.ShippingProvider = provider
	}
	if tracking != nil {
		o.ShippingTracking = tracking
	}
	return nil
}

func (m *mockOrderRepo) SetPaymentStatus(_ context.Context, orderID string, status PaymentStatus) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *mockOrderRepo) AppendHistory(_ context.Context, entry HistoryEntry) error {
	m.history = append(m.history, entry)
	return nil
}

func (m *mockOrderRepo) History(_ context.Context, orderID string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, e := range m.history {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockNotifier struct {
	changes []StatusChange
	err     error
}

func (m *mockNotifier) OrderStatusChanged(_ context.Context, change StatusChange) error {
	m.changes = append(m.changes, change)
	return m.err
}

// --- Helpers ---

func strPtr(s string) *string { return &s }

type fixture struct {
	carts    *mockCartRepo
	catalog  *mockCatalogRepo
	coupons  *mockValidator
	stock    *mockLedger
	orders   *mockOrderRepo
	notifier *mockNotifier
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		carts: &mockCartRepo{
			carts: map[string]*cart.Cart{},
			items: map[string][]cart.Item{},
		},
		catalog: &mockCatalogRepo{
			products: map[string]catalog.Product{},
			variants: map[string]catalog.Variant{},
		},
		coupons:  &mockValidator{},
		stock:    &mockLedger{},
		orders:   newMockOrderRepo(),
		notifier: &mockNotifier{},
	}
	f.svc = NewService(txn.Noop{}, f.carts, f.catalog, f.coupons, f.stock, f.orders, f.notifier)
	return f
}

// seedCheckout sets up a cart with two lines, one tracked variant line of
// qty 2 and one variant-less line of qty 1.
func (f *fixture) seedCheckout() {
	f.carts.carts["cart1"] = &cart.Cart{ID: "cart1", UserID: strPtr("u1")}
	f.carts.items["cart1"] = []cart.Item{
		{
			ID: "l1", CartID: "cart1", ProductID: "p1", VariantID: strPtr("v1"),
			Quantity: 2, UnitPrice: decimal.RequireFromString("100.00"), Name: "Widget",
		},
		{
			ID: "l2", CartID: "cart1", ProductID: "p2",
			Quantity: 1, UnitPrice: decimal.RequireFromString("50.00"), Name: "Gadget",
		},
	}
	f.catalog.products["p1"] = catalog.Product{ID: "p1", Name: "Widget", SKU: "W-1"}
	f.catalog.products["p2"] = catalog.Product{ID: "p2", Name: "Gadget", SKU: "G-1"}
	f.catalog.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", SKU: "W-1-V"}
}

func placeReq() PlaceOrderRequest {
	return PlaceOrderRequest{CartID: "cart1", UserID: "u1", Currency: "USD"}
}

// --- PlaceOrder ---

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()
	f.carts.carts["cart1"] = &cart.Cart{ID: "cart1"}

	_, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_NoCoupon(t *testing.T) {
	f := newFixture()
	f.seedCheckout()

	ord, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("250.00").Equal(ord.Total), ord.Total.String())
	assert.True(t, ord.Discount.IsZero())
	assert.Equal(t, StatusPending, ord.Status)
	assert.Equal(t, PaymentUnpaid, ord.PaymentStatus)

	// Only the variant line touches stock.
	require.Len(t, f.stock.decrements, 1)
	assert.Equal(t, stockCall{"v1", 2, inventory.ReasonOrderCreation}, f.stock.decrements[0])

	// Cart cleaned up, initial history row written.
	assert.Contains(t, f.carts.cleared, "cart1")
	assert.True(t, f.carts.couponUnset)
	require.Len(t, f.orders.history, 1)
	assert.Nil(t, f.orders.history[0].From)
	assert.Equal(t, StatusPending, f.orders.history[0].To)
	assert.Equal(t, ActorSystem, f.orders.history[0].Actor)
}

func TestPlaceOrder_SnapshotsItems(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	// A stale cart line with no name snapshot falls back to the live name.
	items := f.carts.items["cart1"]
	items[1].Name = ""
	f.carts.items["cart1"] = items

	ord, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	snapshots := f.orders.items[ord.ID]
	require.Len(t, snapshots, 2)
	assert.Equal(t, "Widget", snapshots[0].Name)
	assert.Equal(t, "W-1-V", snapshots[0].SKU)
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshots[0].UnitPrice))
	assert.Equal(t, "Gadget", snapshots[1].Name)
	assert.Equal(t, "G-1", snapshots[1].SKU)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	f.carts.carts["cart1"].CouponCode = strPtr("SAVE50")
	f.coupons.coupon = &coupon.Coupon{
		ID:       "cpn1",
		Code:     "SAVE50",
		Discount: pricing.Amount(decimal.NewFromInt(50)),
		Active:   true,
	}

	ord, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("200.00").Equal(ord.Total), ord.Total.String())
	assert.True(t, decimal.RequireFromString("50.00").Equal(ord.Discount))
	require.NotNil(t, ord.CouponCode)
	assert.Equal(t, "SAVE50", *ord.CouponCode)
	require.Len(t, f.coupons.redeemed, 1)
	assert.Equal(t, "cpn1:"+ord.ID, f.coupons.redeemed[0])
}

func TestPlaceOrder_RequestCouponOverridesCartCoupon(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	f.carts.carts["cart1"].CouponCode = strPtr("OLD")
	f.coupons.coupon = &coupon.Coupon{
		ID:       "cpn2",
		Code:     "NEW",
		Discount: pricing.Percent(decimal.NewFromInt(10)),
		Active:   true,
	}

	req := placeReq()
	req.CouponCode = strPtr("NEW")
	ord, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "NEW", *ord.CouponCode)
}

func TestPlaceOrder_CouponRejectedAbortsCheckout(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	f.carts.carts["cart1"].CouponCode = strPtr("DEAD")
	f.coupons.validateErr = coupon.ErrCouponExpired

	_, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, coupon.ErrCouponExpired)
	assert.Empty(t, f.stock.decrements)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceOrder_InsufficientStockAborts(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	f.stock.failOn = "v1"

	_, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Empty(t, f.orders.orders)
	assert.NotContains(t, f.carts.cleared, "cart1")
}

func TestPlaceOrder_DiscountFlooredAtZero(t *testing.T) {
	f := newFixture()
	f.seedCheckout()
	f.carts.carts["cart1"].CouponCode = strPtr("HUGE")
	f.coupons.coupon = &coupon.Coupon{
		ID:       "cpn3",
		Code:     "HUGE",
		Discount: pricing.Amount(decimal.NewFromInt(9999)),
		Active:   true,
	}

	ord, err := f.svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)
	assert.True(t, ord.Total.IsZero(), ord.Total.String())
}

func TestPlaceOrder_MissingInput(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1", Currency: "USD"})
	require.Error(t, err)

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: "cart1", UserID: "u1"})
	require.Error(t, err)
}

// --- UpdateStatus ---

func (f *fixture) seedOrder(status Status) *Order {
	o := &Order{
		ID:            "o1",
		UserID:        "u1",
		CartID:        "cart1",
		Total:         decimal.RequireFromString("250.00"),
		Currency:      "USD",
		Status:        status,
		PaymentStatus: PaymentUnpaid,
	}
	f.orders.orders[o.ID] = o
	f.orders.items[o.ID] = []Item{
		{ID: "s1", OrderID: "o1", ProductID: "p1", VariantID: strPtr("v1"), Quantity: 2, UnitPrice: decimal.RequireFromString("100.00"), Name: "Widget"},
		{ID: "s2", OrderID: "o1", ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00"), Name: "Gadget"},
	}
	return o
}

func TestUpdateStatus_LegalTransition(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	ord, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusProcessing,
		Actor:   "admin:42",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, ord.Status)

	require.Len(t, f.orders.history, 1)
	entry := f.orders.history[0]
	require.NotNil(t, entry.From)
	assert.Equal(t, StatusPending, *entry.From)
	assert.Equal(t, StatusProcessing, entry.To)
	assert.Equal(t, "admin:42", entry.Actor)

	require.Len(t, f.notifier.changes, 1)
	assert.Equal(t, StatusProcessing, f.notifier.changes[0].To)
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusDelivered,
	})

	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusPending, tErr.From)
	assert.Equal(t, StatusDelivered, tErr.To)
	assert.ElementsMatch(t, []Status{StatusProcessing, StatusCancelled}, tErr.Allowed)
	assert.Empty(t, f.orders.history)
	assert.Empty(t, f.notifier.changes)
}

func TestUpdateStatus_UnknownTarget(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  Status("returned"),
	})
	require.Error(t, err)
}

func TestUpdateStatus_SameStatusIsNoOp(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	ord, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, ord.Status)
	assert.Empty(t, f.orders.history)
	assert.Empty(t, f.notifier.changes)
}

func TestUpdateStatus_ShippedRequiresShippingDetails(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusProcessing)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusShipped,
	})
	require.ErrorIs(t, err, ErrMissingShippingDetails)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:          "o1",
		Target:           StatusShipped,
		ShippingProvider: strPtr("dhl"),
		ShippingTracking: strPtr(""),
	})
	require.ErrorIs(t, err, ErrMissingShippingDetails)
}

func TestUpdateStatus_ShippedStoresShippingDetails(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusProcessing)

	ord, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:          "o1",
		Target:           StatusShipped,
		ShippingProvider: strPtr("dhl"),
		ShippingTracking: strPtr("JD014"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, ord.Status)
	require.NotNil(t, ord.ShippingProvider)
	assert.Equal(t, "dhl", *ord.ShippingProvider)
	require.Len(t, f.notifier.changes, 1)
	assert.Equal(t, "JD014", *f.notifier.changes[0].ShippingTracking)
}

func TestUpdateStatus_CancelRestocksVariantLines(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusProcessing)

	ord, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ord.Status)

	// Only the variant line is restocked, with the cancellation reason.
	require.Len(t, f.stock.increments, 1)
	assert.Equal(t, stockCall{"v1", 2, inventory.ReasonOrderCancelled}, f.stock.increments[0])
}

func TestUpdateStatus_NotifierFailureDoesNotFailUpdate(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)
	f.notifier.err = errors.New("smtp down")

	ord, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1",
		Target:  StatusProcessing,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, ord.Status)
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "nope",
		Target:  StatusProcessing,
	})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

// --- SetPaymentStatus ---

func TestSetPaymentStatus(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	ord, err := f.svc.SetPaymentStatus(context.Background(), "o1", PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, ord.PaymentStatus)
	// Fulfilment axis untouched.
	assert.Equal(t, StatusPending, ord.Status)
}

func TestSetPaymentStatus_Unknown(t *testing.T) {
	f := newFixture()
	f.seedOrder(StatusPending)

	_, err := f.svc.SetPaymentStatus(context.Background(), "o1", PaymentStatus("chargeback"))
	require.Error(t, err)
}
