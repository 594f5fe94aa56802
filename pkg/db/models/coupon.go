package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/assetdrop-backend/pkg/db/types"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

type Coupon struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string                   `gorm:"column:code;not null"`
	DiscountType enums.CouponDiscountType `gorm:"column:discount_type;not null"`
	Value        decimal.Decimal          `gorm:"column:value;type:numeric(10,2);not null"`
	Scope        enums.CouponScope        `gorm:"column:scope;not null;default:'all'"`
	ProductIDs   dbtypes.UUIDArray        `gorm:"column:product_ids;type:uuid[]"`
	MaxUses      *int                     `gorm:"column:max_uses"`
	UsedCount    int                      `gorm:"column:used_count;not null;default:0"`
	StartsAt     *time.Time               `gorm:"column:starts_at"`
	EndsAt       *time.Time               `gorm:"column:ends_at"`
	IsActive     bool                     `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
