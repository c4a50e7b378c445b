// Package storetest builds throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/angelmondragon/storefront-backend/internal/storage/jsonstore"
	"github.com/angelmondragon/storefront-backend/internal/storage/sqlstore"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQL returns a sqlstore on a private in-memory SQLite database along with
// the raw connection for assertions.
func SQL(t testing.TB) (*sqlstore.Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:store_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := db.Open(sqlite.Open(dsn))
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

	store, err := sqlstore.New(db.NewFromGorm(conn), logger.Nop())
	if err != nil {
		t.Fatalf("sqlstore: %v", err)
	}
	return store, conn
}

// JSON returns a jsonstore backed by a file in a temp directory.
func JSON(t testing.TB) (*jsonstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := jsonstore.Open(path, logger.Nop())
	if err != nil {
		t.Fatalf("jsonstore: %v", err)
	}
	return store, path
}

// Stock is shorthand for a tracked stock value.
func Stock(v int64) *int64 { return &v }

type productCreator interface {
	CreateProduct(ctx context.Context, product *models.Product) error
}

// Product creates a product priced at 10.00 with the given stock (nil for untracked).
func Product(t testing.TB, store productCreator, name string, stock *int64) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:  name,
		Price: decimal.RequireFromString("10.00"),
		Stock: stock,
	}
	if err := store.CreateProduct(context.Background(), product); err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}
