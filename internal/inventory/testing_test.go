package inventory

import (
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:inventory_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return conn
}

func ptr(v int64) *int64 { return &v }

func seedProduct(t *testing.T, db *gorm.DB, stock *int64, reserved int64) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		Name:     "widget",
		Price:    decimal.RequireFromString("9.99"),
		Stock:    stock,
		Reserved: reserved,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func seedCartItem(t *testing.T, db *gorm.DB, productID uuid.UUID, qty int64) {
	t.Helper()
	cart := models.Cart{ID: uuid.New(), UserID: uuid.New(), Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := db.Omit("Items").Create(&cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	item := models.CartItem{
		ID:        uuid.New(),
		CartID:    cart.ID,
		ProductID: productID,
		Name:      "widget",
		Price:     decimal.RequireFromString("9.99"),
		Quantity:  qty,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

func loadProduct(t *testing.T, db *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p
}
