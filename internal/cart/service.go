package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalog interface {
	Purchasable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*products.Listing, error)
}

// Service resolves carts for users and anonymous sessions and mutates their
// contents.
type Service interface {
	Resolve(ctx context.Context, id Identity) (*models.Cart, error)
	Get(ctx context.Context, id Identity) (*View, error)
	// Contents returns the resolved cart with its items read from the store,
	// bypassing the view cache.
	Contents(ctx context.Context, id Identity) (*models.Cart, []models.CartItem, error)
	AddItem(ctx context.Context, id Identity, input AddItemInput) (*View, error)
	RemoveItem(ctx context.Context, id Identity, itemID uuid.UUID) (*View, error)
	Clear(ctx context.Context, id Identity) (*View, error)
	MergeGuestCart(ctx context.Context, userID uuid.UUID, sessionID string) (*View, error)
	// Convert marks a cart converted after its order committed.
	Convert(ctx context.Context, cartID, orderID uuid.UUID) error
	AbandonExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Catalog catalog
	Cache   CacheStore
	Outbox  outbox.Emitter
	Config  config.CartConfig
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog catalog
	cache   *cartCache
	outbox  outbox.Emitter
	cfg     config.CartConfig
	logg    *logger.Logger
	group   singleflight.Group
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cart cache store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Config.Expiry <= 0 {
		return nil, fmt.Errorf("cart expiry must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		catalog: params.Catalog,
		cache: &cartCache{
			store:       params.Cache,
			logg:        logg,
			identityTTL: params.Config.IdentityCacheTTL,
			viewTTL:     params.Config.ViewCacheTTL,
		},
		outbox: params.Outbox,
		cfg:    params.Config,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Resolve(ctx context.Context, id Identity) (*models.Cart, error) {
	id, err := id.normalize()
	if err != nil {
		return nil, err
	}
	// the shared call outlives any single caller so one cancellation cannot
	// fail the others waiting on it
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.cache.identityKey(id), func() (any, error) {
		return s.resolve(shared, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cart := *res.Val.(*models.Cart)
		return &cart, nil
	}
}

func (s *service) resolve(ctx context.Context, id Identity) (*models.Cart, error) {
	if cartID, ok := s.cache.lookupCartID(ctx, id); ok {
		cart, err := s.repo.FindByID(ctx, cartID)
		switch {
		case err == nil && cart.Status == enums.CartStatusActive && ownedBy(cart, id):
			s.cache.touch(ctx, id)
			return cart, nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
	}

	cart, err := s.repo.FindActive(ctx, id)
	if err == nil {
		s.cache.storeCartID(ctx, id, cart.ID)
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}

	cart, err = s.create(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.storeCartID(ctx, id, cart.ID)
	return cart, nil
}

func (s *service) create(ctx context.Context, id Identity) (*models.Cart, error) {
	currency := enums.Currency(s.cfg.DefaultCurrency)
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	cart := &models.Cart{
		Status:    enums.CartStatusActive,
		Currency:  currency,
		ExpiresAt: s.now().UTC().Add(s.cfg.Expiry),
	}
	if id.isUser() {
		cart.UserID = id.UserID
	} else {
		session := id.SessionID
		cart.SessionID = &session
	}

	err := s.repo.Create(ctx, cart)
	if err == nil {
		logCtx := s.logg.WithCartID(ctx, cart.ID.String())
		s.logg.Info(logCtx, "cart created")
		return cart, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}

	// Another resolver created the active cart first.
	winner, err := s.repo.FindActive(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload active cart")
	}
	return winner, nil
}

func ownedBy(cart *models.Cart, id Identity) bool {
	if id.UserID != nil {
		return cart.UserID != nil && *cart.UserID == *id.UserID
	}
	return cart.SessionID != nil && *cart.SessionID == id.SessionID
}

func (s *service) Get(ctx context.Context, id Identity) (*View, error) {
	cart, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if view, ok := s.cache.loadView(ctx, cart.ID); ok {
		return view, nil
	}
	return s.render(ctx, cart)
}

func (s *service) Contents(ctx context.Context, id Identity) (*models.Cart, []models.CartItem, error) {
	cart, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	return cart, items, nil
}

// render builds the view from the store and caches it.
func (s *service) render(ctx context.Context, cart *models.Cart) (*View, error) {
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	view := newView(cart, items)
	s.cache.storeView(ctx, view)
	return view, nil
}

func (s *service) AddItem(ctx context.Context, id Identity, input AddItemInput) (*View, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	cart, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	listing, err := s.catalog.Purchasable(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}

	_, err = s.repo.FindLine(ctx, cart.ID, input.ProductID, input.VariantID)
	if err == nil {
		return s.Get(ctx, id)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}

	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  1,
		UnitPrice: listing.UnitPrice(),
		Currency:  listing.Currency(),
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		if !db.IsUniqueViolation(err, "ux_cart_items_cart_product_variant") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
		}
		// A concurrent add of the same line won; adding is idempotent.
	}

	s.cache.invalidate(ctx, []uuid.UUID{cart.ID})
	return s.render(ctx, cart)
}

func (s *service) RemoveItem(ctx context.Context, id Identity, itemID uuid.UUID) (*View, error) {
	cart, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindItem(ctx, cart.ID, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	s.cache.invalidate(ctx, []uuid.UUID{cart.ID})
	return s.render(ctx, cart)
}

func (s *service) Clear(ctx context.Context, id Identity) (*View, error) {
	cart, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	s.cache.invalidate(ctx, []uuid.UUID{cart.ID})
	return s.render(ctx, cart)
}

// MergeGuestCart folds the session's active cart into the user's. Lines the
// user already holds are dropped from the guest cart rather than summed.
func (s *service) MergeGuestCart(ctx context.Context, userID uuid.UUID, sessionID string) (*View, error) {
	owner := UserIdentity(userID)
	guestID, err := SessionIdentity(sessionID).normalize()
	if err != nil {
		return nil, err
	}

	guest, err := s.repo.FindActive(ctx, guestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.Get(ctx, owner)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}

	userCart, err := s.Resolve(ctx, owner)
	if err != nil {
		return nil, err
	}

	moved, dropped := 0, 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		held, err := repo.ListItems(ctx, userCart.ID)
		if err != nil {
			return err
		}
		incoming, err := repo.ListItems(ctx, guest.ID)
		if err != nil {
			return err
		}
		for _, item := range incoming {
			if holdsLine(held, item) {
				if err := repo.DeleteItem(ctx, guest.ID, item.ID); err != nil {
					return err
				}
				dropped++
				continue
			}
			if err := repo.MoveItem(ctx, item.ID, userCart.ID); err != nil {
				return err
			}
			held = append(held, item)
			moved++
		}
		_, err = repo.UpdateStatus(ctx, guest.ID, enums.CartStatusActive, enums.CartStatusMerged)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest cart")
	}

	s.cache.invalidate(ctx, []uuid.UUID{userCart.ID, guest.ID}, owner, guestID)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":       userCart.ID.String(),
		"guest_cart_id": guest.ID.String(),
		"moved":         moved,
		"dropped":       dropped,
	})
	s.logg.Info(logCtx, "guest cart merged")

	return s.render(ctx, userCart)
}

func holdsLine(items []models.CartItem, candidate models.CartItem) bool {
	for _, item := range items {
		if item.SameLine(candidate.ProductID, candidate.VariantID) {
			return true
		}
	}
	return false
}

func (s *service) Convert(ctx context.Context, cartID, orderID uuid.UUID) error {
	var cart *models.Cart
	converted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		cart, err = repo.FindByID(ctx, cartID)
		if err != nil {
			return err
		}
		converted, err = repo.UpdateStatus(ctx, cartID, enums.CartStatusActive, enums.CartStatusConverted)
		if err != nil || !converted {
			return err
		}
		if err := repo.DeleteItems(ctx, cartID); err != nil {
			return err
		}
		event := payloads.CartConvertedEvent{CartID: cartID, OrderID: orderID}
		if cart.UserID != nil {
			event.UserID = *cart.UserID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartConverted,
			AggregateType: enums.AggregateCart,
			AggregateID:   cartID,
			Data:          event,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
	}

	s.cache.invalidate(ctx, []uuid.UUID{cartID}, identityOf(cart.UserID, cart.SessionID))
	if converted {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"cart_id":  cartID.String(),
			"order_id": orderID.String(),
		})
		s.logg.Info(logCtx, "cart converted")
	}
	return nil
}

// AbandonExpired moves active carts whose expiry passed before now to
// abandoned and returns how many changed.
func (s *service) AbandonExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	carts, err := s.repo.ListExpiredActive(ctx, now.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired carts")
	}

	abandoned := 0
	for i := range carts {
		cart := carts[i]
		changed := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			var err error
			changed, err = repo.UpdateStatus(ctx, cart.ID, enums.CartStatusActive, enums.CartStatusAbandoned)
			if err != nil || !changed {
				return err
			}
			count, err := repo.CountItems(ctx, cart.ID)
			if err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCartAbandoned,
				AggregateType: enums.AggregateCart,
				AggregateID:   cart.ID,
				Data: payloads.CartAbandonedEvent{
					CartID:    cart.ID,
					UserID:    cart.UserID,
					ItemCount: int(count),
					ExpiredAt: cart.ExpiresAt,
				},
			})
		})
		if err != nil {
			return abandoned, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "abandon cart")
		}
		if changed {
			abandoned++
			s.cache.invalidate(ctx, []uuid.UUID{cart.ID}, identityOf(cart.UserID, cart.SessionID))
		}
	}
	return abandoned, nil
}
