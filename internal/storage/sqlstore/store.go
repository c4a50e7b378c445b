// Package sqlstore implements storage.Store on gorm (Postgres in production,
// SQLite for development and tests).
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const Name = "sql"

type Store struct {
	client *db.Client // nil once bound to a transaction
	db     *gorm.DB
	ledger *inventory.Repository
	outbox *outbox.Service
	logg   *logger.Logger
}

var _ storage.Store = (*Store)(nil)

func New(client *db.Client, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	conn := client.DB()
	return &Store{
		client: client,
		db:     conn,
		ledger: inventory.NewRepository(conn),
		outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		logg:   logg,
	}, nil
}

func (s *Store) Name() string { return Name }

func (s *Store) withTx(tx *gorm.DB) *Store {
	return &Store{
		db:     tx,
		ledger: s.ledger.WithTx(tx),
		outbox: s.outbox,
		logg:   s.logg,
	}
}

// Atomic runs fn in a database transaction. Nested calls reuse the open one.
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	if s.client == nil {
		return fn(s)
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

func (s *Store) atomic(ctx context.Context, fn func(tx *Store) error) error {
	return s.Atomic(ctx, func(tx storage.Store) error {
		return fn(tx.(*Store))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx)
}

func (s *Store) EmitEvent(ctx context.Context, event outbox.DomainEvent) error {
	return s.atomic(ctx, func(tx *Store) error {
		if err := tx.outbox.Emit(ctx, tx.db, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue outbox event")
		}
		return nil
	})
}

func (s *Store) ReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	return s.ledger.ReserveStock(ctx, productID, qty)
}

func (s *Store) TryReserveStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	return s.ledger.TryReserveStock(ctx, productID, qty)
}

func (s *Store) ReleaseReservedStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	return s.ledger.ReleaseReservedStock(ctx, productID, qty)
}

func (s *Store) DecreaseStock(ctx context.Context, productID uuid.UUID, qty int64) error {
	return s.ledger.DecreaseStock(ctx, productID, qty)
}

func (s *Store) ListReservationSnapshots(ctx context.Context) ([]inventory.Snapshot, error) {
	return s.ledger.ListReservationSnapshots(ctx)
}

func (s *Store) SyncReserved(ctx context.Context, productID uuid.UUID, observed int64) (bool, error) {
	return s.ledger.SyncReserved(ctx, productID, observed)
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
