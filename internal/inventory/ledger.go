// Package inventory owns the stock ledger: per-product stock and reserved
// counters plus the adjustments carts and orders apply to them.
package inventory

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
)

// Ledger applies adjustments to a product's counters. Every call is a single
// atomic update at the storage layer.
type Ledger interface {
	// ReserveStock adds qty to reserved without checking availability.
	ReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error
	// TryReserveStock adds qty to reserved only if stock-reserved >= qty (or stock is untracked).
	TryReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error
	// ReleaseReservedStock subtracts qty from reserved, never going below zero.
	ReleaseReservedStock(ctx context.Context, productID uuid.UUID, qty int64) error
	// DecreaseStock converts qty reserved units into a permanent stock decrement.
	DecreaseStock(ctx context.Context, productID uuid.UUID, qty int64) error
}

// ReservationSource exposes what the reconciler needs to compare the stored
// reserved counter against the per-cart-item reservation records.
type ReservationSource interface {
	ListReservationSnapshots(ctx context.Context) ([]Snapshot, error)
	SyncReserved(ctx context.Context, productID uuid.UUID, observed int64) (bool, error)
}

// Snapshot pairs a tracked product's stored counter with the sum of cart
// quantities holding it, read in one statement.
type Snapshot struct {
	ProductID uuid.UUID
	Reserved  int64
	Held      int64
}

// Drifted reports whether the counter disagrees with the records.
func (s Snapshot) Drifted() bool {
	return s.Reserved != s.Held
}

// Available returns stock-reserved, or nil when the product is untracked.
func Available(p *models.Product) *int64 {
	if p == nil || p.Stock == nil {
		return nil
	}
	available := *p.Stock - p.Reserved
	return &available
}

// CheckAvailability rejects a request for qty more units of p when the
// product is tracked and does not have them available.
func CheckAvailability(p *models.Product, qty int64) error {
	available := Available(p)
	if available == nil {
		return nil
	}
	if *available <= 0 || qty > *available {
		return pkgerrors.InsufficientStock(p.ID, *available)
	}
	return nil
}

// ValidateQuantity guards ledger adjustments against zero and negative deltas.
func ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"quantity": qty})
	}
	return nil
}
