package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/assetdrop-backend/internal/repo"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// Repository persists orders and their immutable lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	// FindByPaymentIntentForUpdate locks the order row for the rest of the
	// transaction.
	FindByPaymentIntentForUpdate(ctx context.Context, paymentIntentID string) (*models.Order, error)
	List(ctx context.Context, filter listFilter) ([]models.Order, error)
	// TransitionStatus moves the order to status when it is currently in one
	// of from and reports whether it did.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, fields map[string]any) (bool, error)
}

type listFilter struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
	From   *time.Time
	To     *time.Time
	Search string
	// Before and BeforeID continue a created_at DESC, id DESC listing.
	Before   *time.Time
	BeforeID *uuid.UUID
	Limit    int
}

// likeEscaper makes user search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Tx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	repo.EnsureID(&order.ID)
	return r.DB(ctx).Omit("Items").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		repo.EnsureID(&items[i].ID)
	}
	return r.DB(ctx).Omit("DownloadToken").Create(&items).Error
}

func (r *repository) withLines(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Items.DownloadToken")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withLines(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withLines(ctx).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("payment_session_id = ?", sessionID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntentForUpdate(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, f listFilter) ([]models.Order, error) {
	q := r.DB(ctx).Model(&models.Order{}).Preload("Items")
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		q = q.Where(
			`(LOWER(order_number) LIKE ? ESCAPE '\' OR LOWER(COALESCE(billing_email, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(billing_name, '')) LIKE ? ESCAPE '\')`,
			like, like, like,
		)
	}
	if f.Before != nil {
		before := f.Before.UTC()
		if f.BeforeID != nil {
			q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", before, before, *f.BeforeID)
		} else {
			q = q.Where("created_at < ?", before)
		}
	}

	var orders []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Limit(f.Limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}
