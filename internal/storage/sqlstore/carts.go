package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *Store) GetCartByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, notFoundOr(err, "cart not found")
	}
	return &cart, nil
}

// CreateCart inserts cart unless the user already has one; either way the
// stored cart is returned.
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart == nil || cart.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart user is required")
	}
	var out *models.Cart
	err := s.atomic(ctx, func(tx *Store) error {
		now := time.Now().UTC()
		row := models.Cart{
			ID:        cart.ID,
			UserID:    cart.UserID,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}

		res := tx.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Omit(clause.Associations).
			Create(&row)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "create cart")
		}
		if res.RowsAffected == 1 && len(cart.Items) > 0 {
			if err := tx.insertItems(ctx, row.ID, cart.Items); err != nil {
				return err
			}
		}

		stored, err := tx.GetCartByUserID(ctx, cart.UserID)
		out = stored
		return err
	})
	return out, err
}

func (s *Store) UpdateCart(ctx context.Context, userID uuid.UUID, update storage.CartUpdate) (*models.Cart, error) {
	var out *models.Cart
	err := s.atomic(ctx, func(tx *Store) error {
		res := tx.db.WithContext(ctx).
			Model(&models.Cart{}).
			Where("user_id = ? AND version = ?", userID, update.ExpectedVersion).
			UpdateColumns(map[string]any{
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update cart")
		}

		var cart models.Cart
		if err := tx.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
			return notFoundOr(err, "cart not found")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently").
				WithDetails(map[string]any{"expectedVersion": update.ExpectedVersion, "currentVersion": cart.Version})
		}

		if err := tx.db.WithContext(ctx).Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
		}
		if err := tx.insertItems(ctx, cart.ID, update.Items); err != nil {
			return err
		}

		stored, err := tx.GetCartByUserID(ctx, userID)
		out = stored
		return err
	})
	return out, err
}

func (s *Store) insertItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.CartItem, len(items))
	for i, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.CartID = cartID
		item.Position = i
		rows[i] = item
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cart items")
	}
	return nil
}

// ListIdleCarts returns non-empty carts untouched since cutoff, oldest first.
func (s *Store) ListIdleCarts(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	var carts []models.Cart
	err := s.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("updated_at < ?", cutoff.UTC()).
		Where("EXISTS (SELECT 1 FROM cart_items ci WHERE ci.cart_id = carts.id)").
		Order("updated_at ASC").
		Limit(limit).
		Find(&carts).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list idle carts")
	}
	return carts, nil
}
