package downloads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

const tokenBytes = 32

type catalog interface {
	Owned(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*products.Listing, error)
}

// Service issues and redeems download entitlements.
type Service interface {
	// IssueTx creates the token for one order item inside the order
	// transaction.
	IssueTx(ctx context.Context, tx *gorm.DB, orderItemID, userID uuid.UUID) (*models.DownloadToken, error)
	Issue(ctx context.Context, orderItemID, userID uuid.UUID) (*models.DownloadToken, error)
	Redeem(ctx context.Context, token, callerIP string) (*Redemption, error)
	// DeactivateForOrderTx revokes every token of the order's items.
	DeactivateForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// Redemption describes the file a successful redemption unlocked.
type Redemption struct {
	URL                string `json:"url"`
	FileName           string `json:"file_name"`
	MimeType           string `json:"mime_type"`
	Size               int64  `json:"size"`
	RemainingDownloads int    `json:"remaining_downloads"`
}

type ServiceParams struct {
	Repo    Repository
	Catalog catalog
	Locator FileLocator
	Config  config.DownloadsConfig
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	catalog catalog
	locator FileLocator
	cfg     config.DownloadsConfig
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("downloads repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Locator == nil {
		return nil, fmt.Errorf("file locator required")
	}
	if params.Config.TokenTTL <= 0 || params.Config.MaxDownloads <= 0 {
		return nil, fmt.Errorf("download token ttl and max downloads must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    params.Repo,
		catalog: params.Catalog,
		locator: params.Locator,
		cfg:     params.Config,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) IssueTx(ctx context.Context, tx *gorm.DB, orderItemID, userID uuid.UUID) (*models.DownloadToken, error) {
	value, err := newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate download token")
	}
	token := &models.DownloadToken{
		Token:         value,
		OrderItemID:   orderItemID,
		UserID:        userID,
		ExpiresAt:     s.now().UTC().Add(s.cfg.TokenTTL),
		MaxDownloads:  s.cfg.MaxDownloads,
		DownloadCount: 0,
		IsActive:      true,
	}
	if err := s.repo.WithTx(tx).Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *service) Issue(ctx context.Context, orderItemID, userID uuid.UUID) (*models.DownloadToken, error) {
	token, err := s.IssueTx(ctx, nil, orderItemID, userID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store download token")
	}
	return token, nil
}

// Redeem resolves the file before spending a download so a storage or
// catalog failure leaves the count untouched.
func (s *service) Redeem(ctx context.Context, token, callerIP string) (*Redemption, error) {
	if !wellFormed(token) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "download link not found")
	}
	now := s.now().UTC()

	row, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if !redeemable(row, now) {
		return nil, classify(row, now)
	}

	item, err := s.repo.FindOrderItem(ctx, row.OrderItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	listing, err := s.catalog.Owned(ctx, item.ProductID, item.VariantID)
	if err != nil {
		return nil, err
	}
	file := listing.File()
	location, err := s.locator.Locate(ctx, file)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locate download file")
	}

	consumed, err := s.repo.Consume(ctx, token, callerIP, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem download token")
	}
	if row, err = s.load(ctx, token); err != nil {
		return nil, err
	}
	if !consumed {
		return nil, classify(row, now)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_item_id":  item.ID.String(),
		"download_count": row.DownloadCount,
		"max_downloads":  row.MaxDownloads,
	})
	s.logg.Info(logCtx, "download redeemed")

	return &Redemption{
		URL:                location,
		FileName:           file.Name,
		MimeType:           file.MimeType,
		Size:               file.Size,
		RemainingDownloads: max(row.MaxDownloads-row.DownloadCount, 0),
	}, nil
}

func (s *service) load(ctx context.Context, token string) (*models.DownloadToken, error) {
	row, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "download link not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load download token")
	}
	return row, nil
}

func redeemable(row *models.DownloadToken, now time.Time) bool {
	return row.IsActive && row.ExpiresAt.After(now) && row.DownloadCount < row.MaxDownloads
}

// classify explains why a token could not be consumed.
func classify(row *models.DownloadToken, now time.Time) error {
	switch {
	case !row.IsActive:
		return pkgerrors.New(pkgerrors.CodeNotFound, "download link not found")
	case !row.ExpiresAt.After(now):
		return pkgerrors.New(pkgerrors.CodeGone, "download link expired")
	case row.DownloadCount >= row.MaxDownloads:
		return pkgerrors.New(pkgerrors.CodeForbidden, "download limit reached")
	default:
		return pkgerrors.New(pkgerrors.CodeConflict, "download link busy, retry")
	}
}

func (s *service) DeactivateForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return s.repo.WithTx(tx).DeactivateForOrder(ctx, orderID)
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func wellFormed(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
