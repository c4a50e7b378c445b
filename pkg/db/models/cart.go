package models

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the single shopping cart owned by a user. Version increments on
// every write and guards against lost updates.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"userId"`
	Version   int64      `gorm:"column:version;not null;default:0" json:"version"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updated_at;index" json:"updatedAt"`
}

// CartItem snapshots product fields at add time. For tracked products the row
// doubles as the reservation record for Quantity units.
type CartItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CartID    uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product" json:"cartId"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product;index" json:"productId"`
	Name      string          `gorm:"column:name;not null" json:"name"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	ImageURL  string          `gorm:"column:image_url;not null;default:''" json:"imageUrl"`
	Quantity  int64           `gorm:"column:quantity;not null;check:quantity > 0" json:"quantity"`
	Position  int             `gorm:"column:position;not null" json:"position"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"createdAt"`
}

// ItemFor returns the index of productID in the cart, or -1.
func (c *Cart) ItemFor(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// LockOrder returns the items sorted by product id. Ledger updates that span
// several products walk this order so concurrent transactions take product
// row locks in the same sequence.
func (c *Cart) LockOrder() []CartItem {
	items := slices.Clone(c.Items)
	slices.SortFunc(items, func(a, b CartItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return items
}
