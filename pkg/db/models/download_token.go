package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadToken grants time and count limited access to one order item's file.
type DownloadToken struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Token         string     `gorm:"column:token;not null"`
	OrderItemID   uuid.UUID  `gorm:"column:order_item_id;type:uuid;not null"`
	UserID        uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	ExpiresAt     time.Time  `gorm:"column:expires_at;not null"`
	MaxDownloads  int        `gorm:"column:max_downloads;not null"`
	DownloadCount int        `gorm:"column:download_count;not null;default:0"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true"`
	LastUsedIP    *string    `gorm:"column:last_used_ip"`
	LastUsedAt    *time.Time `gorm:"column:last_used_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
