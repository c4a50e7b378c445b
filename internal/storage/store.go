// Package storage defines the persistence surface shared by the SQL and JSON
// file backends.
package storage

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
)

// CartUpdate replaces a cart's item list. The write only applies when the
// stored version still equals ExpectedVersion.
type CartUpdate struct {
	Items           []models.CartItem
	ExpectedVersion int64
}

type ProductStore interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, string, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	// SetProductStock sets stock (nil untracks) and recomputes reserved from cart items.
	SetProductStock(ctx context.Context, id uuid.UUID, stock *int64) (*models.Product, error)
}

type CartStore interface {
	GetCartByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	UpdateCart(ctx context.Context, userID uuid.UUID, update CartUpdate) (*models.Cart, error)
	ListIdleCarts(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type EventEmitter interface {
	EmitEvent(ctx context.Context, event outbox.DomainEvent) error
}

// Store is everything the services need from a backend. Atomic runs fn against
// a Store whose writes commit together or not at all.
type Store interface {
	ProductStore
	CartStore
	OrderStore
	UserStore
	EventEmitter
	inventory.Ledger
	inventory.ReservationSource

	Atomic(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Name() string
}
