//go:build integration

// Package integration runs the repository layer against a real PostgreSQL
// instance. These tests cover the behaviors that unit tests with fakes
// cannot: row-level atomicity of the stock decrement and advisory-lock
// serialization of coupon redemptions under real concurrency.
package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/solemart/storefront/internal/domain/cart"
	"github.com/solemart/storefront/internal/domain/coupon"
	"github.com/solemart/storefront/internal/domain/inventory"
	"github.com/solemart/storefront/internal/domain/order"
	"github.com/solemart/storefront/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	pool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

// --- Seed helpers ---

func seedProduct(t *testing.T, ctx context.Context, name string, price string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, name, base_price) VALUES ($1, $2, $3)`,
		id, name, decimal.RequireFromString(price),
	)
	require.NoError(t, err)
	return id
}

func seedVariant(t *testing.T, ctx context.Context, productID string, stock *int64) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(ctx,
		`INSERT INTO product_variants (id, product_id, stock) VALUES ($1, $2, $3)`,
		id, productID, stock,
	)
	require.NoError(t, err)
	return id
}

func seedCoupon(t *testing.T, ctx context.Context, code string, maxRedemptions int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(ctx,
		`INSERT INTO coupons (id, code, discount_type, value, max_redemptions) VALUES ($1, $2, 'percent', 10, $3)`,
		id, code, maxRedemptions,
	)
	require.NoError(t, err)
	return id
}

func variantStock(t *testing.T, ctx context.Context, variantID string) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT stock FROM product_variants WHERE id = $1`, variantID,
	).Scan(&stock))
	return stock
}

func int64Ptr(i int64) *int64 { return &i }

func strPtr(s string) *string { return &s }

// --- Tests ---

// Ten checkouts race for the last unit; exactly one may win and the counter
// must never go negative.
func TestDecrement_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	productID := seedProduct(t, ctx, "Last Unit", "10.00")
	variantID := seedVariant(t, ctx, productID, int64Ptr(1))

	store := repository.NewStore(pool)
	ledger := repository.NewInventoryLedger(store)

	var g errgroup.Group
	wins := make(chan struct{}, 10)
	for range 10 {
		g.Go(func() error {
			err := store.InTx(ctx, func(ctx context.Context) error {
				return ledger.Decrement(ctx, variantID, 1, inventory.ReasonOrderCreation, inventory.Ref{})
			})
			if err == nil {
				wins <- struct{}{}
				return nil
			}
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(wins)

	assert.Len(t, wins, 1)
	assert.EqualValues(t, 0, variantStock(t, ctx, variantID))

	var logged int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_log WHERE variant_id = $1`, variantID,
	).Scan(&logged))
	assert.Equal(t, 1, logged)
}

// Untracked variants are never decremented and never logged.
func TestDecrement_UntrackedVariant(t *testing.T) {
	ctx := context.Background()
	productID := seedProduct(t, ctx, "Untracked", "10.00")
	variantID := seedVariant(t, ctx, productID, nil)

	store := repository.NewStore(pool)
	ledger := repository.NewInventoryLedger(store)

	require.NoError(t, ledger.Decrement(ctx, variantID, 1000, inventory.ReasonOrderCreation, inventory.Ref{}))

	var logged int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_log WHERE variant_id = $1`, variantID,
	).Scan(&logged))
	assert.Zero(t, logged)
}

// Two checkouts race for a coupon with one remaining redemption. The
// advisory lock serializes them; exactly one redemption row lands.
func TestCouponCap_ConcurrentRedemptions(t *testing.T) {
	ctx := context.Background()
	couponID := seedCoupon(t, ctx, "LASTSLOT", 1)

	store := repository.NewStore(pool)
	validator := coupon.NewRepoValidator(repository.NewCouponRepository(store))

	var g errgroup.Group
	wins := make(chan struct{}, 2)
	for range 2 {
		userID := uuid.New().String()
		g.Go(func() error {
			err := store.InTx(ctx, func(ctx context.Context) error {
				c, err := validator.Validate(ctx, "LASTSLOT", decimal.NewFromInt(100), userID)
				if err != nil {
					return err
				}
				return validator.Redeem(ctx, c.ID, userID, uuid.New().String())
			})
			if err == nil {
				wins <- struct{}{}
				return nil
			}
			if errors.Is(err, coupon.ErrMaxRedemptionsReached) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(wins)

	assert.Len(t, wins, 1)

	var redemptions int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1`, couponID,
	).Scan(&redemptions))
	assert.Equal(t, 1, redemptions)
}

// Full checkout against real tables: stock reserved, snapshots written,
// cart emptied; cancellation restores the stock.
func TestPlaceOrderAndCancel_EndToEnd(t *testing.T) {
	ctx := context.Background()
	productID := seedProduct(t, ctx, "Espresso Machine", "1000.00")
	variantID := seedVariant(t, ctx, productID, int64Ptr(5))

	store := repository.NewStore(pool)
	cartRepo := repository.NewCartRepository(store)
	catalogRepo := repository.NewCatalogRepository(store)
	couponValidator := coupon.NewRepoValidator(repository.NewCouponRepository(store))
	ledger := repository.NewInventoryLedger(store)
	orderRepo := repository.NewOrderRepository(store)
	svc := order.NewService(store, cartRepo, catalogRepo, couponValidator, ledger, orderRepo, nil)

	userID := uuid.New().String()
	c, err := cartRepo.GetOrCreate(ctx, cart.Owner{UserID: &userID})
	require.NoError(t, err)
	require.NoError(t, cartRepo.InsertItem(ctx, &cart.Item{
		ID:        uuid.New().String(),
		CartID:    c.ID,
		ProductID: productID,
		VariantID: &variantID,
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("1000.00"),
		Name:      "Espresso Machine",
	}))

	ord, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		CartID:   c.ID,
		UserID:   userID,
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2000.00").Equal(ord.Total))
	assert.EqualValues(t, 3, variantStock(t, ctx, variantID))

	items, err := cartRepo.Items(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	history, err := svc.History(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].From)
	assert.Equal(t, order.StatusPending, history[0].To)

	_, err = svc.UpdateStatus(ctx, order.UpdateStatusRequest{
		OrderID: ord.ID,
		Target:  order.StatusCancelled,
		Note:    strPtr("customer request"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, variantStock(t, ctx, variantID))

	history, err = svc.History(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.StatusCancelled, history[1].To)
}
