package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

// Listing is a product with the optional variant a buyer selected.
type Listing struct {
	Product *models.Product
	Variant *models.ProductVariant
}

// UnitPrice is the variant price when it overrides the product price.
func (l Listing) UnitPrice() decimal.Decimal {
	if l.Variant != nil && l.Variant.Price.Valid {
		return l.Variant.Price.Decimal
	}
	return l.Product.Price
}

func (l Listing) Currency() enums.Currency {
	if l.Product.Currency == "" {
		return enums.CurrencyUSD
	}
	return l.Product.Currency
}

// File is the object delivered for a purchased line.
type File struct {
	Key      string
	Name     string
	MimeType string
	Size     int64
}

// File prefers the variant's own file and falls back to the product's base
// file.
func (l Listing) File() File {
	if v := l.Variant; v != nil && v.FileKey != nil && *v.FileKey != "" {
		f := File{Key: *v.FileKey, Name: l.Product.FileName, MimeType: l.Product.MimeType}
		if v.FileName != nil {
			f.Name = *v.FileName
		}
		if v.MimeType != nil {
			f.MimeType = *v.MimeType
		}
		if v.FileSize != nil {
			f.Size = *v.FileSize
		}
		return f
	}
	return File{
		Key:      l.Product.FileKey,
		Name:     l.Product.FileName,
		MimeType: l.Product.MimeType,
		Size:     l.Product.FileSize,
	}
}

// Catalog resolves listings for the cart and download flows.
type Catalog struct {
	repo Repository
}

func NewCatalog(repo Repository) (*Catalog, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &Catalog{repo: repo}, nil
}

// Purchasable loads a listing that can be added to a cart: the product must
// be published and the variant, when given, must belong to it.
func (c *Catalog) Purchasable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Listing, error) {
	listing, err := c.load(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	if listing.Product.Status != enums.ProductStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available for purchase")
	}
	return listing, nil
}

// Owned loads a listing regardless of publication state; buyers keep access
// to files of products archived after purchase.
func (c *Catalog) Owned(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Listing, error) {
	return c.load(ctx, productID, variantID)
}

func (c *Catalog) load(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Listing, error) {
	product, err := c.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	listing := &Listing{Product: product}
	if variantID == nil {
		return listing, nil
	}
	variant, err := c.repo.FindVariant(ctx, productID, *variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	listing.Variant = variant
	return listing, nil
}
