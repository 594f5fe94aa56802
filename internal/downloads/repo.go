package downloads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/repo"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
)

// Repository persists download tokens.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, token *models.DownloadToken) error
	FindByToken(ctx context.Context, token string) (*models.DownloadToken, error)
	// Consume counts one download when the token is active, unexpired and
	// below its ceiling. It reports whether a row changed.
	Consume(ctx context.Context, token, ip string, now time.Time) (bool, error)
	DeactivateForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Tx(tx)}
}

func (r *repository) Create(ctx context.Context, token *models.DownloadToken) error {
	repo.EnsureID(&token.ID)
	return r.DB(ctx).Create(token).Error
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.DownloadToken, error) {
	var row models.DownloadToken
	if err := r.DB(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Consume(ctx context.Context, token, ip string, now time.Time) (bool, error) {
	var lastIP *string
	if ip != "" {
		lastIP = &ip
	}
	res := r.DB(ctx).Model(&models.DownloadToken{}).
		Where("token = ? AND is_active = ? AND expires_at > ? AND download_count < max_downloads", token, true, now).
		Updates(map[string]any{
			"download_count": gorm.Expr("download_count + 1"),
			"last_used_ip":   lastIP,
			"last_used_at":   now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) DeactivateForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	items := r.DB(ctx).Model(&models.OrderItem{}).Select("id").Where("order_id = ?", orderID)
	res := r.DB(ctx).Model(&models.DownloadToken{}).
		Where("order_item_id IN (?) AND is_active = ?", items, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *repository) FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
