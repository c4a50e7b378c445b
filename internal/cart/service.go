package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Service exposes the cart mutations. Each call reads the cart, adjusts the
// stock ledger for tracked products and writes the new item list in one
// storage transaction, so the ledger and the carts never disagree.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddToCart(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error)
	UpdateCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int64) (*models.Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ExpireIdle(ctx context.Context, cutoff time.Time, limit int) (ExpireResult, error)
}

// MaxItemQuantity caps the quantity of a single cart line, untracked
// products included.
const MaxItemQuantity int64 = 10_000

type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int64
}

// ExpireResult summarizes one idle-cart sweep.
type ExpireResult struct {
	Expired       int
	ReleasedUnits int64
}

type service struct {
	store   storage.Store
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewService builds a cart service. ledgerMetrics may be nil.
func NewService(store storage.Store, logg *logger.Logger, ledgerMetrics *metrics.LedgerMetrics) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:   store,
		logg:    logg,
		metrics: ledgerMetrics,
		now:     time.Now,
	}, nil
}

// GetCart returns the user's cart, creating an empty one on first access.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out *models.Cart
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		cart, err := loadOrCreate(ctx, tx, userID)
		out = cart
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AddToCart(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	if input.Quantity > MaxItemQuantity {
		return nil, quantityLimit(input.Quantity)
	}

	var out *models.Cart
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		product, err := tx.GetProductByID(ctx, input.ProductID)
		if err != nil {
			return err
		}
		cart, err := loadOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		idx := cart.ItemFor(product.ID)
		if idx >= 0 && cart.Items[idx].Quantity > MaxItemQuantity-input.Quantity {
			return quantityLimit(cart.Items[idx].Quantity + input.Quantity)
		}

		if product.Tracked() {
			if err := s.reserve(ctx, tx, product.ID, input.Quantity); err != nil {
				return err
			}
		}

		items := cloneItems(cart.Items)
		if idx >= 0 {
			items[idx].Quantity += input.Quantity
		} else {
			items = append(items, models.CartItem{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				ImageURL:  product.ImageURL,
				Quantity:  input.Quantity,
			})
		}

		updated, err := tx.UpdateCart(ctx, userID, storage.CartUpdate{Items: items, ExpectedVersion: cart.Version})
		out = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateCartItem sets the quantity of an item already in the cart. Only the
// difference against the current quantity is reserved or released; zero
// removes the item.
func (s *service) UpdateCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int64) (*models.Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be zero or a positive integer")
	}
	if quantity > MaxItemQuantity {
		return nil, quantityLimit(quantity)
	}

	var out *models.Cart
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		cart, err := tx.GetCartByUserID(ctx, userID)
		if err != nil {
			return err
		}
		idx := cart.ItemFor(productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
		}
		if quantity == 0 {
			out, err = s.removeAt(ctx, tx, cart, idx)
			return err
		}

		// An unchanged quantity still rewrites the cart to bump updatedAt.
		current := cart.Items[idx].Quantity
		tracked, err := isTracked(ctx, tx, productID)
		if err != nil {
			return err
		}
		if tracked && quantity != current {
			if quantity > current {
				err = s.reserve(ctx, tx, productID, quantity-current)
			} else {
				err = s.release(ctx, tx, productID, current-quantity)
			}
			if err != nil {
				return err
			}
		}

		items := cloneItems(cart.Items)
		items[idx].Quantity = quantity
		out, err = tx.UpdateCart(ctx, userID, storage.CartUpdate{Items: items, ExpectedVersion: cart.Version})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveFromCart drops productID from the cart. Removing an item that is not
// there returns the cart unchanged and releases nothing.
func (s *service) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (*models.Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}

	var out *models.Cart
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		cart, err := tx.GetCartByUserID(ctx, userID)
		if err != nil {
			return err
		}
		idx := cart.ItemFor(productID)
		if idx < 0 {
			out = cart
			return nil
		}
		out, err = s.removeAt(ctx, tx, cart, idx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearCart empties the cart and releases every tracked item's reservation.
// Either all releases and the emptied cart commit, or none do.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out *models.Cart
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		cart, err := tx.GetCartByUserID(ctx, userID)
		if err != nil {
			return err
		}
		out, _, err = s.empty(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireIdle empties carts that have not changed since cutoff, releasing their
// reservations. Each cart commits on its own; failures are collected and the
// sweep carries on.
func (s *service) ExpireIdle(ctx context.Context, cutoff time.Time, limit int) (ExpireResult, error) {
	carts, err := s.store.ListIdleCarts(ctx, cutoff, limit)
	if err != nil {
		return ExpireResult{}, err
	}

	var (
		result ExpireResult
		errs   error
	)
	for _, candidate := range carts {
		var released int64
		expired := false
		err := s.store.Atomic(ctx, func(tx storage.Store) error {
			cart, err := tx.GetCartByUserID(ctx, candidate.UserID)
			if err != nil {
				return err
			}
			// Touched since it was listed.
			if cart.Version != candidate.Version || len(cart.Items) == 0 {
				return nil
			}
			var emptied *models.Cart
			emptied, released, err = s.empty(ctx, tx, cart)
			if err != nil {
				return err
			}
			expired = true
			return tx.EmitEvent(ctx, outbox.DomainEvent{
				EventType:     enums.EventCartExpired,
				AggregateType: enums.AggregateCart,
				AggregateID:   emptied.ID,
				Data: outbox.CartExpiredEvent{
					CartID:        emptied.ID,
					UserID:        emptied.UserID,
					ReleasedUnits: released,
				},
				OccurredAt: s.now().UTC(),
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire cart %s: %w", candidate.ID, err))
			continue
		}
		if !expired {
			continue
		}
		result.Expired++
		result.ReleasedUnits += released
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id":        candidate.ID.String(),
			"user_id":        candidate.UserID.String(),
			"released_units": released,
		}), "idle cart expired")
	}
	return result, errs
}

func (s *service) removeAt(ctx context.Context, tx storage.Store, cart *models.Cart, idx int) (*models.Cart, error) {
	item := cart.Items[idx]
	tracked, err := isTracked(ctx, tx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if tracked {
		if err := s.release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}
	items := make([]models.CartItem, 0, len(cart.Items)-1)
	items = append(items, cart.Items[:idx]...)
	items = append(items, cart.Items[idx+1:]...)
	return tx.UpdateCart(ctx, cart.UserID, storage.CartUpdate{Items: items, ExpectedVersion: cart.Version})
}

func (s *service) empty(ctx context.Context, tx storage.Store, cart *models.Cart) (*models.Cart, int64, error) {
	var released int64
	for _, item := range cart.LockOrder() {
		tracked, err := isTracked(ctx, tx, item.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if !tracked {
			continue
		}
		if err := s.release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, 0, err
		}
		released += item.Quantity
	}
	updated, err := tx.UpdateCart(ctx, cart.UserID, storage.CartUpdate{Items: nil, ExpectedVersion: cart.Version})
	if err != nil {
		return nil, 0, err
	}
	return updated, released, nil
}

func (s *service) reserve(ctx context.Context, tx storage.Store, productID uuid.UUID, qty int64) error {
	err := tx.TryReserveStock(ctx, productID, qty)
	switch {
	case err == nil:
		s.metrics.Observe(metrics.LedgerOpReserve, metrics.ResultOK)
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		s.metrics.Observe(metrics.LedgerOpReserve, metrics.ResultInsufficient)
	default:
		s.metrics.Observe(metrics.LedgerOpReserve, metrics.ResultError)
	}
	return err
}

func (s *service) release(ctx context.Context, tx storage.Store, productID uuid.UUID, qty int64) error {
	err := tx.ReleaseReservedStock(ctx, productID, qty)
	if err != nil {
		s.metrics.Observe(metrics.LedgerOpRelease, metrics.ResultError)
		return err
	}
	s.metrics.Observe(metrics.LedgerOpRelease, metrics.ResultOK)
	return nil
}

func loadOrCreate(ctx context.Context, tx storage.Store, userID uuid.UUID) (*models.Cart, error) {
	cart, err := tx.GetCartByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	return tx.CreateCart(ctx, &models.Cart{UserID: userID})
}

// isTracked reports whether releases for productID go through the ledger. A
// product that no longer exists has nothing left to release.
func isTracked(ctx context.Context, tx storage.Store, productID uuid.UUID) (bool, error) {
	product, err := tx.GetProductByID(ctx, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return product.Tracked(), nil
}

func cloneItems(items []models.CartItem) []models.CartItem {
	return append([]models.CartItem(nil), items...)
}

func quantityLimit(requested int64) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "cart line quantity cannot exceed %d", MaxItemQuantity).
		WithDetails(map[string]any{"field": "quantity", "requested": requested, "max": MaxItemQuantity})
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	return nil
}
