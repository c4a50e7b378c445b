package orders

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
	"github.com/shopspring/decimal"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Service places and reads orders.
type Service interface {
	PlaceOrder(ctx context.Context, actor Actor) (*models.Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, actor Actor, limit int) ([]models.Order, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

type service struct {
	store   storage.Store
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

func NewService(store storage.Store, logg *logger.Logger, ledgerMetrics *metrics.LedgerMetrics) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, logg: logg, metrics: ledgerMetrics, now: time.Now}, nil
}

// PlaceOrder turns the caller's cart into an order. Reservations held by the
// cart become permanent stock decrements and the cart is emptied without
// releasing anything, all in one transaction with the order_placed event.
func (s *service) PlaceOrder(ctx context.Context, actor Actor) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}

	var placed *models.Order
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		cart, err := tx.GetCartByUserID(ctx, actor.UserID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
			}
			return err
		}
		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		}

		order := &models.Order{
			UserID:    actor.UserID,
			Status:    enums.OrderStatusPlaced,
			Items:     make([]models.OrderItem, 0, len(cart.Items)),
			CreatedAt: s.now().UTC(),
		}
		for _, item := range cart.LockOrder() {
			product, err := tx.GetProductByID(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if product.Tracked() {
				if err := s.decrease(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		total := decimal.Zero
		for _, item := range cart.Items {
			total = total.Add(item.Price.Mul(decimal.NewFromInt(item.Quantity)))
			order.Items = append(order.Items, models.OrderItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Price:     item.Price,
				ImageURL:  item.ImageURL,
				Quantity:  item.Quantity,
			})
		}
		order.TotalAmount = total

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if _, err := tx.UpdateCart(ctx, actor.UserID, storage.CartUpdate{Items: nil, ExpectedVersion: cart.Version}); err != nil {
			return err
		}
		if err := tx.EmitEvent(ctx, placedEvent(order, actor)); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": placed.ID.String(),
		"user_id":  actor.UserID.String(),
		"items":    len(placed.Items),
	}), "order placed")
	return placed, nil
}

// GetOrder hides other users' orders behind NOT_FOUND; admins see all.
func (s *service) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor, limit int) ([]models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.store.ListOrdersByUser(ctx, actor.UserID, limit)
}

func (s *service) decrease(ctx context.Context, tx storage.Store, productID uuid.UUID, qty int64) error {
	if err := tx.DecreaseStock(ctx, productID, qty); err != nil {
		s.metrics.Observe(metrics.LedgerOpDecrease, metrics.ResultError)
		return err
	}
	s.metrics.Observe(metrics.LedgerOpDecrease, metrics.ResultOK)
	return nil
}

func placedEvent(order *models.Order, actor Actor) outbox.DomainEvent {
	items := make([]outbox.OrderPlacedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, outbox.OrderPlacedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: outbox.OrderPlacedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       items,
		},
		OccurredAt: order.CreatedAt,
	}
}
