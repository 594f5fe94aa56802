package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// Product is a purchasable digital asset. The catalog service owns writes;
// this service only reads listings and bumps DownloadCount.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title         string              `gorm:"column:title;not null"`
	Slug          string              `gorm:"column:slug;not null;uniqueIndex"`
	Status        enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'draft'"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	Currency      enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	FileKey       string              `gorm:"column:file_key;not null"`
	FileName      string              `gorm:"column:file_name;not null"`
	MimeType      string              `gorm:"column:mime_type;not null"`
	FileSize      int64               `gorm:"column:file_size;not null;default:0"`
	DownloadCount int64               `gorm:"column:download_count;not null;default:0"`
	Variants      []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant optionally overrides the product's price and file.
type ProductVariant struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	Name      string              `gorm:"column:name;not null"`
	Price     decimal.NullDecimal `gorm:"column:price;type:numeric(10,2)"`
	FileKey   *string             `gorm:"column:file_key"`
	FileName  *string             `gorm:"column:file_name"`
	MimeType  *string             `gorm:"column:mime_type"`
	FileSize  *int64              `gorm:"column:file_size"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
