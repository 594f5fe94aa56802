package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/repo"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
)

// Repository reads catalog rows owned by the catalog service. The only write
// is the download counter bumped when an order is created.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	IncrementDownloadCounts(ctx context.Context, counts map[uuid.UUID]int) error
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant returns gorm.ErrRecordNotFound when the variant belongs to
// another product.
func (r *repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.DB(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) IncrementDownloadCounts(ctx context.Context, counts map[uuid.UUID]int) error {
	for productID, n := range counts {
		if n <= 0 {
			continue
		}
		res := r.DB(ctx).Model(&models.Product{}).
			Where("id = ?", productID).
			UpdateColumn("download_count", gorm.Expr("download_count + ?", n))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.Join(gorm.ErrRecordNotFound, errors.New("product "+productID.String()))
		}
	}
	return nil
}
