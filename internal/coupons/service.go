package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

// Service validates coupon codes at checkout and records redemptions once an
// order completes. Discount amounts are not applied to totals.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	return &Service{repo: repo, now: time.Now}, nil
}

// Validate returns the coupon when code is redeemable now for a cart holding
// productIDs.
func (s *Service) Validate(ctx context.Context, code string, productIDs []uuid.UUID) (*models.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	now := s.now()
	switch {
	case !coupon.IsActive:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not yet valid")
	case coupon.EndsAt != nil && !now.Before(*coupon.EndsAt):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	case coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	}

	if coupon.Scope == enums.CouponScopeProducts && !appliesToAny(coupon, productIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon does not apply to cart items").
			WithDetails(map[string]any{"code": coupon.Code})
	}
	return coupon, nil
}

func appliesToAny(coupon *models.Coupon, productIDs []uuid.UUID) bool {
	for _, id := range productIDs {
		if coupon.ProductIDs.Contains(id) {
			return true
		}
	}
	return false
}

// RecordUsage counts one redemption of code. A code that disappeared or hit
// its limit in the meantime is reported but the purchase stands.
func (s *Service) RecordUsage(ctx context.Context, code string) error {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	updated, err := s.repo.IncrementUsage(ctx, coupon.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	return nil
}
