package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/internal/storage/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID uuid.UUID, qty int64) models.CartItem {
	return models.CartItem{ProductID: productID, Name: "item", Price: decimal.RequireFromString("1.50"), Quantity: qty}
}

func TestCreateCartIsIdempotentPerUser(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Version)

	second, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = store.CreateCart(ctx, &models.Cart{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateCartChecksVersion(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", nil)
	userID := uuid.New()

	cart, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)

	updated, err := store.UpdateCart(ctx, userID, storage.CartUpdate{Items: []models.CartItem{item(p.ID, 2)}, ExpectedVersion: cart.Version})
	require.NoError(t, err)
	assert.Equal(t, cart.Version+1, updated.Version)
	require.Len(t, updated.Items, 1)
	assert.EqualValues(t, 2, updated.Items[0].Quantity)

	_, err = store.UpdateCart(ctx, userID, storage.CartUpdate{Items: nil, ExpectedVersion: cart.Version})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "stale version should conflict, got %v", err)

	current, err := store.GetCartByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, current.Items, 1)

	_, err = store.UpdateCart(ctx, uuid.New(), storage.CartUpdate{ExpectedVersion: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateCartKeepsItemOrder(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	a := storetest.Product(t, store, "a", nil)
	b := storetest.Product(t, store, "b", nil)
	c := storetest.Product(t, store, "c", nil)
	userID := uuid.New()
	cart, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)

	updated, err := store.UpdateCart(ctx, userID, storage.CartUpdate{
		Items:           []models.CartItem{item(c.ID, 1), item(a.ID, 1), item(b.ID, 1)},
		ExpectedVersion: cart.Version,
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 3)
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID}, []uuid.UUID{updated.Items[0].ProductID, updated.Items[1].ProductID, updated.Items[2].ProductID})
}

func TestAtomicRollsBackLedgerAndCart(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(5))
	userID := uuid.New()
	cart, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(tx storage.Store) error {
		if err := tx.TryReserveStock(ctx, p.ID, 2); err != nil {
			return err
		}
		if _, err := tx.UpdateCart(ctx, userID, storage.CartUpdate{Items: []models.CartItem{item(p.ID, 2)}, ExpectedVersion: cart.Version}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	product, err := store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, product.Reserved)
	current, err := store.GetCartByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, current.Items)
	assert.Equal(t, cart.Version, current.Version)
}

func TestSetProductStockRecomputesReserved(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", nil)
	userID := uuid.New()
	cart, err := store.CreateCart(ctx, &models.Cart{UserID: userID})
	require.NoError(t, err)
	_, err = store.UpdateCart(ctx, userID, storage.CartUpdate{Items: []models.CartItem{item(p.ID, 3)}, ExpectedVersion: cart.Version})
	require.NoError(t, err)

	_, err = store.SetProductStock(ctx, p.ID, storetest.Stock(2))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "stock below held units should fail, got %v", err)

	tracked, err := store.SetProductStock(ctx, p.ID, storetest.Stock(10))
	require.NoError(t, err)
	require.NotNil(t, tracked.Stock)
	assert.EqualValues(t, 10, *tracked.Stock)
	assert.EqualValues(t, 3, tracked.Reserved)

	untracked, err := store.SetProductStock(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, untracked.Stock)
	assert.EqualValues(t, 0, untracked.Reserved)

	_, err = store.SetProductStock(ctx, uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListProductsPaginates(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		storetest.Product(t, store, name, nil)
		time.Sleep(2 * time.Millisecond)
	}

	page, next, err := store.ListProducts(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "a", page[0].Name)

	rest, next, err := store.ListProducts(ctx, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].Name)
	assert.Empty(t, next)

	_, _, err = store.ListProducts(ctx, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListIdleCartsSkipsEmptyAndRecent(t *testing.T) {
	store, conn := storetest.SQL(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", nil)
	stale, empty, recent := uuid.New(), uuid.New(), uuid.New()

	for _, user := range []uuid.UUID{stale, recent} {
		cart, err := store.CreateCart(ctx, &models.Cart{UserID: user})
		require.NoError(t, err)
		_, err = store.UpdateCart(ctx, user, storage.CartUpdate{Items: []models.CartItem{item(p.ID, 1)}, ExpectedVersion: cart.Version})
		require.NoError(t, err)
	}
	_, err := store.CreateCart(ctx, &models.Cart{UserID: empty})
	require.NoError(t, err)
	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, conn.Model(&models.Cart{}).Where("user_id IN ?", []uuid.UUID{stale, empty}).Update("updated_at", old).Error)

	carts, err := store.ListIdleCarts(ctx, time.Now().UTC().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, stale, carts[0].UserID)
	assert.Len(t, carts[0].Items, 1)
}

func TestOrdersRoundTrip(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()
	userID := uuid.New()
	order := &models.Order{
		UserID:      userID,
		Status:      enums.OrderStatusPlaced,
		TotalAmount: decimal.RequireFromString("3.00"),
		Items: []models.OrderItem{
			{ProductID: uuid.New(), Name: "x", Price: decimal.RequireFromString("1.50"), Quantity: 2},
		},
	}
	require.NoError(t, store.CreateOrder(ctx, order))
	require.NotEqual(t, uuid.Nil, order.ID)

	got, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("3.00")))

	list, err := store.ListOrdersByUser(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetOrder(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUsersAreUniqueByEmail(t *testing.T) {
	store, _ := storetest.SQL(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{Email: "Shopper@Example.com", PasswordHash: "h", Role: enums.UserRoleShopper}))
	err := store.CreateUser(ctx, &models.User{Email: "shopper@example.com", PasswordHash: "h", Role: enums.UserRoleShopper})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "duplicate email should conflict, got %v", err)

	user, err := store.GetUserByEmail(ctx, " SHOPPER@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "shopper@example.com", user.Email)
}

func TestEmitEventPersistsOutboxRow(t *testing.T) {
	store, conn := storetest.SQL(t)
	ctx := context.Background()
	orderID := uuid.New()

	require.NoError(t, store.EmitEvent(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          outbox.OrderPlacedEvent{OrderID: orderID},
	}))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)
}

func TestPingAndName(t *testing.T) {
	store, _ := storetest.SQL(t)
	assert.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "sql", store.Name())
}
