package sqlstore

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
)

func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFoundOr(err, "product not found")
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := s.db.WithContext(ctx).Model(&models.Product{}).Order("created_at ASC").Order("id ASC")
	if cursor != nil {
		query = query.Where("created_at > ? OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Product
	if err := query.Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	page, next := pagination.Page(rows, params.Limit, productCursor)
	return page, next, nil
}

func productCursor(p models.Product) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	product.Reserved = 0
	product.CreatedAt = now
	product.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return nil
}

func (s *Store) SetProductStock(ctx context.Context, id uuid.UUID, stock *int64) (*models.Product, error) {
	var out *models.Product
	err := s.atomic(ctx, func(tx *Store) error {
		if _, err := tx.GetProductByID(ctx, id); err != nil {
			return err
		}

		var held int64
		if err := tx.db.WithContext(ctx).
			Model(&models.CartItem{}).
			Where("product_id = ?", id).
			Select("COALESCE(SUM(quantity), 0)").
			Scan(&held).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum cart reservations")
		}

		var stockValue any
		reserved := int64(0)
		if stock != nil {
			if *stock < held {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "stock below units reserved by carts").
					WithDetails(map[string]any{"productId": id.String(), "reserved": held})
			}
			stockValue = *stock
			reserved = held
		}

		if err := tx.db.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", id).
			UpdateColumns(map[string]any{
				"stock":      stockValue,
				"reserved":   reserved,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set product stock")
		}

		product, err := tx.GetProductByID(ctx, id)
		out = product
		return err
	})
	return out, err
}
