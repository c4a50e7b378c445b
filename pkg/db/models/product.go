package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry plus its ledger counters. A nil Stock means the
// product is not inventory tracked. The check tags mirror the CHECK
// constraints of the SQL migrations.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Description string          `gorm:"column:description;not null;default:''" json:"description"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;check:price >= 0" json:"price"`
	ImageURL    string          `gorm:"column:image_url;not null;default:''" json:"imageUrl"`
	Stock       *int64          `gorm:"column:stock;check:stock IS NULL OR (stock >= 0 AND reserved <= stock)" json:"stock,omitempty"`
	Reserved    int64           `gorm:"column:reserved;not null;default:0;check:reserved >= 0" json:"reserved"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Tracked reports whether the ledger applies to this product.
func (p Product) Tracked() bool {
	return p.Stock != nil
}
