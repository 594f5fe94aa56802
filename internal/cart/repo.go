package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/repo"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// Repository persists carts and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindActive(ctx context.Context, id Identity) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	// UpdateStatus moves the cart from one status to another and reports
	// whether the row was still in the from status.
	UpdateStatus(ctx context.Context, cartID uuid.UUID, from, to enums.CartStatus) (bool, error)
	ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]models.Cart, error)

	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	ListItemsByID(ctx context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error)
	CountItems(ctx context.Context, cartID uuid.UUID) (int64, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	FindLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	MoveItem(ctx context.Context, itemID, toCartID uuid.UUID) error
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB(ctx).Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindActive(ctx context.Context, id Identity) (*models.Cart, error) {
	q := r.DB(ctx).Where("status = ?", enums.CartStatusActive)
	if id.UserID != nil {
		q = q.Where("user_id = ?", *id.UserID)
	} else {
		q = q.Where("session_id = ?", id.SessionID)
	}
	var cart models.Cart
	if err := q.Order("created_at DESC").First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) error {
	repo.EnsureID(&cart.ID)
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	return r.DB(ctx).Omit("Items").Create(cart).Error
}

func (r *repository) UpdateStatus(ctx context.Context, cartID uuid.UUID, from, to enums.CartStatus) (bool, error) {
	res := r.DB(ctx).Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]models.Cart, error) {
	var carts []models.Cart
	q := r.DB(ctx).
		Where("status = ? AND expires_at < ?", enums.CartStatusActive, before).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.DB(ctx).
		Preload("Product").
		Preload("Variant").
		Where("cart_id = ?", cartID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListItemsByID(ctx context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	err := r.DB(ctx).
		Preload("Product").
		Preload("Variant").
		Where("cart_id = ? AND id IN ?", cartID, itemIDs).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CountItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.CartItem{}).Where("cart_id = ?", cartID).Count(&count).Error
	return count, err
}

func (r *repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.DB(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartItem, error) {
	q := r.DB(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID == nil {
		q = q.Where("variant_id IS NULL")
	} else {
		q = q.Where("variant_id = ?", *variantID)
	}
	var item models.CartItem
	if err := q.First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	repo.EnsureID(&item.ID)
	return r.DB(ctx).Omit("Product", "Variant").Create(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.DB(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{}).Error
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.DB(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

func (r *repository) MoveItem(ctx context.Context, itemID, toCartID uuid.UUID) error {
	return r.DB(ctx).Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("cart_id", toCartID).Error
}
