package cart

import (
	"bytes"
	"context"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/internal/storage/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSQLService(t *testing.T) (Service, storage.Store, *gorm.DB) {
	t.Helper()
	store, conn := storetest.SQL(t)
	svc, err := NewService(store, logger.Nop(), nil)
	require.NoError(t, err)
	return svc, store, conn
}

func reservedOf(t *testing.T, store storage.Store, id uuid.UUID) int64 {
	t.Helper()
	product, err := store.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return product.Reserved
}

func heldOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var held int64
	require.NoError(t, conn.Model(&models.CartItem{}).
		Where("product_id = ?", id).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&held).Error)
	return held
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
	return typed
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	store, _ := storetest.SQL(t)
	_, err := NewService(nil, logger.Nop(), nil)
	assert.Error(t, err)
	_, err = NewService(store, nil, nil)
	assert.Error(t, err)
}

func TestGetCartCreatesLazily(t *testing.T) {
	svc, _, _ := newSQLService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, first.Items)

	second, err := svc.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRejectsMissingUserAndBadInput(t *testing.T) {
	svc, _, _ := newSQLService(t)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = svc.AddToCart(ctx, uuid.New(), AddItemInput{ProductID: uuid.Nil, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.AddToCart(ctx, uuid.New(), AddItemInput{ProductID: uuid.New(), Quantity: 0})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.UpdateCartItem(ctx, uuid.New(), uuid.New(), -1)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	svc, _, _ := newSQLService(t)
	_, err := svc.AddToCart(context.Background(), uuid.New(), AddItemInput{ProductID: uuid.New(), Quantity: 1})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestReservedMatchesCartQuantities(t *testing.T) {
	svc, store, conn := newSQLService(t)
	ctx := context.Background()
	p1 := storetest.Product(t, store, "p1", storetest.Stock(20))
	p2 := storetest.Product(t, store, "p2", storetest.Stock(20))
	alice, bob := uuid.New(), uuid.New()

	steps := []func() error{
		func() error { _, err := svc.AddToCart(ctx, alice, AddItemInput{ProductID: p1.ID, Quantity: 3}); return err },
		func() error { _, err := svc.AddToCart(ctx, bob, AddItemInput{ProductID: p1.ID, Quantity: 2}); return err },
		func() error { _, err := svc.AddToCart(ctx, alice, AddItemInput{ProductID: p2.ID, Quantity: 4}); return err },
		func() error { _, err := svc.AddToCart(ctx, alice, AddItemInput{ProductID: p1.ID, Quantity: 1}); return err },
		func() error { _, err := svc.UpdateCartItem(ctx, bob, p1.ID, 6); return err },
		func() error { _, err := svc.UpdateCartItem(ctx, alice, p2.ID, 1); return err },
		func() error { _, err := svc.RemoveFromCart(ctx, alice, p1.ID); return err },
		func() error { _, err := svc.AddToCart(ctx, bob, AddItemInput{ProductID: p2.ID, Quantity: 5}); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		for _, p := range []*models.Product{p1, p2} {
			require.Equal(t, heldOf(t, conn, p.ID), reservedOf(t, store, p.ID), "product %s after step %d", p.Name, i)
		}
	}
	assert.EqualValues(t, 6, reservedOf(t, store, p1.ID))
	assert.EqualValues(t, 6, reservedOf(t, store, p2.ID))
}

func TestOverRequestLeavesLedgerAndCartUntouched(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(4))
	userID := uuid.New()

	before, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 4})
	typed := requireCode(t, err, pkgerrors.CodeInsufficientStock)
	assert.EqualValues(t, 3, typed.Details().(map[string]any)["availableStock"])

	assert.EqualValues(t, 1, reservedOf(t, store, p.ID))
	after, err := svc.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	require.Len(t, after.Items, 1)
	assert.EqualValues(t, 1, after.Items[0].Quantity)
}

func TestUpdateToZeroEqualsRemove(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(10))
	viaUpdate, viaRemove := uuid.New(), uuid.New()

	for _, user := range []uuid.UUID{viaUpdate, viaRemove} {
		_, err := svc.AddToCart(ctx, user, AddItemInput{ProductID: p.ID, Quantity: 3})
		require.NoError(t, err)
	}
	require.EqualValues(t, 6, reservedOf(t, store, p.ID))

	updated, err := svc.UpdateCartItem(ctx, viaUpdate, p.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, -1, updated.ItemFor(p.ID))
	assert.EqualValues(t, 3, reservedOf(t, store, p.ID))

	removed, err := svc.RemoveFromCart(ctx, viaRemove, p.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, removed.ItemFor(p.ID))
	assert.EqualValues(t, 0, reservedOf(t, store, p.ID))
}

func TestUpdateMissingItemIsNotFound(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(10))
	userID := uuid.New()
	_, err := svc.GetCart(ctx, userID)
	require.NoError(t, err)

	_, err = svc.UpdateCartItem(ctx, userID, p.ID, 2)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestClearCartReleasesExactAmounts(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p1 := storetest.Product(t, store, "p1", storetest.Stock(10))
	p2 := storetest.Product(t, store, "p2", storetest.Stock(10))
	userID, other := uuid.New(), uuid.New()

	_, err := svc.AddToCart(ctx, other, AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p1.ID, Quantity: 2})
	require.NoError(t, err)
	before, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p2.ID, Quantity: 3})
	require.NoError(t, err)

	cleared, err := svc.ClearCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)
	assert.Greater(t, cleared.Version, before.Version)
	assert.False(t, cleared.UpdatedAt.Before(before.UpdatedAt))

	assert.EqualValues(t, 1, reservedOf(t, store, p1.ID))
	assert.EqualValues(t, 0, reservedOf(t, store, p2.ID))
}

func TestClearMissingCartIsNotFound(t *testing.T) {
	svc, _, _ := newSQLService(t)
	_, err := svc.ClearCart(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestRemoveTwiceReleasesOnce(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(10))
	userID, other := uuid.New(), uuid.New()

	_, err := svc.AddToCart(ctx, other, AddItemInput{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	first, err := svc.RemoveFromCart(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, reservedOf(t, store, p.ID))

	second, err := svc.RemoveFromCart(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, reservedOf(t, store, p.ID))
	assert.Equal(t, first.Version, second.Version)
}

func TestEndToEndReservationScenario(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(5))
	userID := uuid.New()

	cart, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 3, reservedOf(t, store, p.ID))
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 3, cart.Items[0].Quantity)

	cart, err = svc.UpdateCartItem(ctx, userID, p.ID, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, reservedOf(t, store, p.ID))
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 5, cart.Items[0].Quantity)

	_, err = svc.UpdateCartItem(ctx, userID, p.ID, 6)
	typed := requireCode(t, err, pkgerrors.CodeInsufficientStock)
	assert.EqualValues(t, 0, typed.Details().(map[string]any)["availableStock"])
	assert.EqualValues(t, 5, reservedOf(t, store, p.ID))
}

func TestUntrackedProductsSkipLedger(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "digital", nil)
	userID := uuid.New()

	_, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 500})
	require.NoError(t, err)
	_, err = svc.UpdateCartItem(ctx, userID, p.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reservedOf(t, store, p.ID))

	_, err = svc.ClearCart(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reservedOf(t, store, p.ID))
}

func TestItemSnapshotKeepsAddTimeFields(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "original", storetest.Stock(10))
	userID := uuid.New()

	cart, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "original", cart.Items[0].Name)
	assert.True(t, p.Price.Equal(cart.Items[0].Price))
}

func TestConcurrentAddsNeverOversell(t *testing.T) {
	svc, store, conn := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "scarce", storetest.Stock(3))

	const shoppers = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddToCart(ctx, uuid.New(), AddItemInput{ProductID: p.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, shoppers-3, insufficient)
	assert.EqualValues(t, 3, reservedOf(t, store, p.ID))
	assert.EqualValues(t, 3, heldOf(t, conn, p.ID))
}

func TestExpireIdleReleasesAndEmits(t *testing.T) {
	svc, store, conn := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(10))
	idle, fresh := uuid.New(), uuid.New()

	_, err := svc.AddToCart(ctx, idle, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Cart{}).
		Where("user_id = ?", idle).
		Update("updated_at", time.Now().UTC().Add(-2*time.Hour)).Error)
	_, err = svc.AddToCart(ctx, fresh, AddItemInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	result, err := svc.ExpireIdle(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.EqualValues(t, 2, result.ReleasedUnits)
	assert.EqualValues(t, 3, reservedOf(t, store, p.ID))

	cart, err := svc.GetCart(ctx, idle)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventCartExpired).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, cart.ID, events[0].AggregateID)
}

func TestJSONBackendHandlesUntrackedCarts(t *testing.T) {
	store, _ := storetest.JSON(t)
	svc, err := NewService(store, logger.Nop(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", nil)
	userID := uuid.New()

	_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	cart, err := svc.UpdateCartItem(ctx, userID, p.ID, 5)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 5, cart.Items[0].Quantity)

	cart, err = svc.ClearCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestItemQuantityIsCapped(t *testing.T) {
	sqlStore, _ := storetest.SQL(t)
	jsonStore, _ := storetest.JSON(t)

	for _, store := range []storage.Store{sqlStore, jsonStore} {
		t.Run(store.Name(), func(t *testing.T) {
			svc, err := NewService(store, logger.Nop(), nil)
			require.NoError(t, err)
			ctx := context.Background()
			p := storetest.Product(t, store, "unlimited", nil)
			userID := uuid.New()

			_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: math.MaxInt64})
			requireCode(t, err, pkgerrors.CodeValidation)

			cart, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: MaxItemQuantity})
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)

			_, err = svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
			typed := requireCode(t, err, pkgerrors.CodeValidation)
			assert.Equal(t, map[string]any{"field": "quantity", "requested": MaxItemQuantity + 1, "max": MaxItemQuantity}, typed.Details())

			_, err = svc.UpdateCartItem(ctx, userID, p.ID, MaxItemQuantity+1)
			requireCode(t, err, pkgerrors.CodeValidation)

			cart, err = svc.GetCart(ctx, userID)
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			assert.Equal(t, MaxItemQuantity, cart.Items[0].Quantity)
		})
	}
}

func TestUpdateWithSameQuantityTouchesCart(t *testing.T) {
	svc, store, _ := newSQLService(t)
	ctx := context.Background()
	p := storetest.Product(t, store, "p", storetest.Stock(5))
	userID := uuid.New()

	before, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	after, err := svc.UpdateCartItem(ctx, userID, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	require.Len(t, after.Items, 1)
	assert.EqualValues(t, 2, after.Items[0].Quantity)
	assert.EqualValues(t, 2, reservedOf(t, store, p.ID))
}

// releaseRecorder notes the product order of ledger releases.
type releaseRecorder struct {
	storage.Store
	released *[]uuid.UUID
}

func (r releaseRecorder) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	return r.Store.Atomic(ctx, func(tx storage.Store) error {
		return fn(releaseRecorder{Store: tx, released: r.released})
	})
}

func (r releaseRecorder) ReleaseReservedStock(ctx context.Context, id uuid.UUID, qty int64) error {
	*r.released = append(*r.released, id)
	return r.Store.ReleaseReservedStock(ctx, id, qty)
}

func TestClearReleasesInProductOrder(t *testing.T) {
	base, _ := storetest.SQL(t)
	var released []uuid.UUID
	store := releaseRecorder{Store: base, released: &released}
	svc, err := NewService(store, logger.Nop(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	products := []*models.Product{
		storetest.Product(t, base, "a", storetest.Stock(10)),
		storetest.Product(t, base, "b", storetest.Stock(10)),
		storetest.Product(t, base, "c", storetest.Stock(10)),
	}
	userID := uuid.New()
	// Add in descending id order so cart order and lock order differ.
	sorted := slices.Clone(products)
	slices.SortFunc(sorted, func(a, b *models.Product) int { return bytes.Compare(b.ID[:], a.ID[:]) })
	for _, p := range sorted {
		_, err := svc.AddToCart(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
		require.NoError(t, err)
	}

	_, err = svc.ClearCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, released, 3)
	for i := 1; i < len(released); i++ {
		assert.Negative(t, bytes.Compare(released[i-1][:], released[i][:]), "release %d out of product order", i)
	}
}
