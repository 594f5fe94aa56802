// Package dbtest opens throwaway SQLite databases carrying the same tables,
// unique indexes and checks as the goose migrations, for repository tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// numeric columns are TEXT so decimal values round-trip exactly.
var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'draft',
		price TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		file_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		download_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		price TEXT,
		file_key TEXT,
		file_name TEXT,
		mime_type TEXT,
		file_size INTEGER,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE carts (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_id TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		currency TEXT NOT NULL DEFAULT 'USD',
		expires_at DATETIME NOT NULL,
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK ((user_id IS NULL) <> (session_id IS NULL))
	)`,
	`CREATE UNIQUE INDEX ux_carts_active_user ON carts (user_id) WHERE status = 'active' AND user_id IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_carts_active_session ON carts (session_id) WHERE status = 'active' AND session_id IS NOT NULL`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 1),
		unit_price TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_cart_items_cart_product_variant
		ON cart_items (cart_id, product_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'))`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_number TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		subtotal TEXT NOT NULL,
		discount TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		payment_session_id TEXT NOT NULL,
		payment_intent_id TEXT,
		billing_email TEXT,
		billing_name TEXT,
		completed_at DATETIME,
		refunded_at DATETIME,
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_orders_payment_session_id ON orders (payment_session_id)`,
	`CREATE UNIQUE INDEX ux_orders_order_number ON orders (order_number)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		product_title TEXT NOT NULL,
		product_slug TEXT NOT NULL,
		variant_name TEXT,
		price TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_at DATETIME
	)`,
	`CREATE TABLE download_tokens (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		order_item_id TEXT NOT NULL REFERENCES order_items(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		max_downloads INTEGER NOT NULL,
		download_count INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_used_ip TEXT,
		last_used_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK (download_count <= max_downloads)
	)`,
	`CREATE UNIQUE INDEX ux_download_tokens_token ON download_tokens (token)`,
	`CREATE UNIQUE INDEX ux_download_tokens_order_item ON download_tokens (order_item_id)`,
	`CREATE TABLE payment_customers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT 'stripe',
		provider_customer_id TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_customers_user ON payment_customers (user_id)`,
	`CREATE TABLE coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		discount_type TEXT NOT NULL,
		value TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'all',
		product_ids TEXT,
		max_uses INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		starts_at DATETIME,
		ends_at DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_coupons_code ON coupons (UPPER(code))`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a fresh in-memory database with the full schema. Timestamps
// are written in UTC so text comparisons order correctly.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// ProductOption customizes a seeded product.
type ProductOption func(*models.Product)

func WithStatus(status enums.ProductStatus) ProductOption {
	return func(p *models.Product) { p.Status = status }
}

// MustProduct inserts a published product priced at price (e.g. "19.99").
func MustProduct(t testing.TB, conn *gorm.DB, title, price string, opts ...ProductOption) *models.Product {
	t.Helper()
	id := uuid.New()
	product := &models.Product{
		ID:       id,
		Title:    title,
		Slug:     fmt.Sprintf("%s-%s", title, id.String()[:8]),
		Status:   enums.ProductStatusPublished,
		Price:    decimal.RequireFromString(price),
		Currency: enums.CurrencyUSD,
		FileKey:  fmt.Sprintf("products/%s/%s.zip", id, title),
		FileName: title + ".zip",
		MimeType: "application/zip",
		FileSize: 1024,
	}
	for _, opt := range opts {
		opt(product)
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustVariant inserts a variant; an empty price means no override.
func MustVariant(t testing.TB, conn *gorm.DB, productID uuid.UUID, name, price string) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: productID,
		Name:      name,
	}
	if price != "" {
		variant.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if err := conn.Create(variant).Error; err != nil {
		t.Fatalf("create variant: %v", err)
	}
	return variant
}
