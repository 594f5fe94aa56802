package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/repo"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
)

const providerStripe = "stripe"

// CustomerRepository maps users to their payment processor customer.
type CustomerRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.PaymentCustomer, error)
	Create(ctx context.Context, customer *models.PaymentCustomer) error
}

type customerRepository struct {
	repo.Base
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{Base: repo.NewBase(db)}
}

func (r *customerRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.PaymentCustomer, error) {
	var customer models.PaymentCustomer
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) Create(ctx context.Context, customer *models.PaymentCustomer) error {
	repo.EnsureID(&customer.ID)
	if customer.Provider == "" {
		customer.Provider = providerStripe
	}
	return r.DB(ctx).Create(customer).Error
}
