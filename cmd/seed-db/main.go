package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/solemart/storefront/internal/repository"
)

type variantJSON struct {
	ID    string           `json:"id"`
	SKU   string           `json:"sku"`
	Price *decimal.Decimal `json:"price"`
	Stock *int64           `json:"stock"`
}

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	BasePrice decimal.Decimal `json:"base_price"`
	Variants  []variantJSON   `json:"variants"`
}

type flashSaleProductJSON struct {
	ProductID    string           `json:"product_id"`
	DiscountType *string          `json:"discount_type"`
	Value        *decimal.Decimal `json:"value"`
}

type flashSaleJSON struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	DiscountType string                 `json:"discount_type"`
	Value        decimal.Decimal        `json:"value"`
	Priority     int                    `json:"priority"`
	StartsAt     time.Time              `json:"starts_at"`
	EndsAt       time.Time              `json:"ends_at"`
	Products     []flashSaleProductJSON `json:"products"`
}

type couponJSON struct {
	ID               string           `json:"id"`
	Code             string           `json:"code"`
	DiscountType     string           `json:"discount_type"`
	Value            decimal.Decimal  `json:"value"`
	MinOrder         *decimal.Decimal `json:"min_order"`
	MaxRedemptions   *int             `json:"max_redemptions"`
	PerCustomerLimit *int             `json:"per_customer_limit"`
	StartsAt         *time.Time       `json:"starts_at"`
	EndsAt           *time.Time       `json:"ends_at"`
}

type seedJSON struct {
	Products   []productJSON   `json:"products"`
	FlashSales []flashSaleJSON `json:"flash_sales"`
	Coupons    []couponJSON    `json:"coupons"`
}

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedJSON
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedFlashSales(ctx, pool, seed.FlashSales); err != nil {
		return errors.Wrap(err, "seed flash sales")
	}
	if err := seedCoupons(ctx, pool, seed.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, sku, base_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, sku = $3, base_price = $4`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, sku, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET sku = $3, price = $4, stock = $5`

	upsertFlashSaleSQL = `INSERT INTO flash_sales (id, name, discount_type, value, priority, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = $2, discount_type = $3, value = $4,
			priority = $5, starts_at = $6, ends_at = $7`

	upsertFlashSaleProductSQL = `INSERT INTO flash_sale_products (id, flash_sale_id, product_id, discount_type, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (flash_sale_id, product_id) DO UPDATE SET discount_type = $4, value = $5`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, value, min_order,
			max_redemptions, per_customer_limit, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET discount_type = $3, value = $4, min_order = $5,
			max_redemptions = $6, per_customer_limit = $7, starts_at = $8, ends_at = $9`
)

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.SKU, p.BasePrice); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		for _, v := range p.Variants {
			if _, err := pool.Exec(ctx, upsertVariantSQL, v.ID, p.ID, v.SKU, v.Price, v.Stock); err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
		}
		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}
	return nil
}

func seedFlashSales(ctx context.Context, pool *pgxpool.Pool, sales []flashSaleJSON) error {
	slog.Info("upserting flash sales", slog.Int("count", len(sales)))

	for _, fs := range sales {
		_, err := pool.Exec(ctx, upsertFlashSaleSQL,
			fs.ID, fs.Name, fs.DiscountType, fs.Value, fs.Priority, fs.StartsAt, fs.EndsAt,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert flash sale %s", fs.ID)
		}
		for _, fp := range fs.Products {
			_, err := pool.Exec(ctx, upsertFlashSaleProductSQL,
				fs.ID+":"+fp.ProductID, fs.ID, fp.ProductID, fp.DiscountType, fp.Value,
			)
			if err != nil {
				return errors.Wrapf(err, "upsert flash sale product %s/%s", fs.ID, fp.ProductID)
			}
		}
		slog.Info("upserted flash sale", slog.String("id", fs.ID), slog.String("name", fs.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, coupons []couponJSON) error {
	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.ID, c.Code, c.DiscountType, c.Value, c.MinOrder,
			c.MaxRedemptions, c.PerCustomerLimit, c.StartsAt, c.EndsAt,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}
	return nil
}
