package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const releaseExpr = "CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END"

const snapshotQuery = `
SELECT p.id AS product_id,
       p.reserved AS reserved,
       COALESCE((SELECT SUM(ci.quantity) FROM cart_items ci WHERE ci.product_id = p.id), 0) AS held
FROM products p
WHERE p.stock IS NOT NULL
ORDER BY p.id
`

// Repository is the gorm-backed Ledger. Each adjustment is one UPDATE whose
// WHERE clause carries the precondition, so concurrent callers serialize on
// the product row instead of racing a prior read.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) products(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Product{})
}

func (r *Repository) ReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	if err := ValidateQuantity(qty); err != nil {
		return err
	}
	res := r.products(ctx).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr("reserved + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if db.IsCheckViolation(res.Error) {
		// products_reserved_le_stock rejected the write. On Postgres the
		// enclosing transaction is aborted, so no re-read here.
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, res.Error, "reservation exceeds stock").
			WithDetails(map[string]any{"productId": productID.String(), "requested": qty})
	}
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (r *Repository) TryReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	if err := ValidateQuantity(qty); err != nil {
		return err
	}
	res := r.products(ctx).
		Where("id = ? AND (stock IS NULL OR stock - reserved >= ?)", productID, qty).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr("reserved + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	product, err := r.find(ctx, productID)
	if err != nil {
		return err
	}
	if err := CheckAvailability(product, qty); err != nil {
		return err
	}
	// The row changed between the update and the re-read.
	return pkgerrors.New(pkgerrors.CodeConflict, "product stock changed concurrently").
		WithDetails(map[string]any{"productId": productID.String()})
}

func (r *Repository) ReleaseReservedStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	if err := ValidateQuantity(qty); err != nil {
		return err
	}
	res := r.products(ctx).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr(releaseExpr, qty, qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release reserved stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (r *Repository) DecreaseStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	if err := ValidateQuantity(qty); err != nil {
		return err
	}
	res := r.products(ctx).
		Where("id = ? AND stock IS NOT NULL AND stock >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"reserved":   gorm.Expr(releaseExpr, qty, qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrease stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	product, err := r.find(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Tracked() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product is not inventory tracked").
			WithDetails(map[string]any{"productId": productID.String()})
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "stock below requested quantity").
		WithDetails(map[string]any{"productId": productID.String(), "stock": *product.Stock, "requested": qty})
}

func (r *Repository) ListReservationSnapshots(ctx context.Context) ([]Snapshot, error) {
	var rows []snapshotRow
	if err := r.db.WithContext(ctx).Raw(snapshotQuery).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservation snapshots")
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, Snapshot{ProductID: row.ProductID, Reserved: row.Reserved, Held: row.Held})
	}
	return out, nil
}

// SyncReserved rewrites reserved from the cart item records, but only while it
// still equals observed; a concurrent cart mutation makes it a no-op (false).
func (r *Repository) SyncReserved(ctx context.Context, productID uuid.UUID, observed int64) (bool, error) {
	res := r.products(ctx).
		Where("id = ? AND reserved = ?", productID, observed).
		UpdateColumns(map[string]any{
			"reserved":   gorm.Expr("(SELECT COALESCE(SUM(ci.quantity), 0) FROM cart_items ci WHERE ci.product_id = ?)", productID),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "sync reserved stock")
	}
	return res.RowsAffected == 1, nil
}

type snapshotRow struct {
	ProductID uuid.UUID
	Reserved  int64
	Held      int64
}

func (r *Repository) find(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}
