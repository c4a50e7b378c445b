// Package backend opens the storage.Store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/internal/storage/jsonstore"
	"github.com/angelmondragon/storefront-backend/internal/storage/sqlstore"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

// Backend is an opened store plus whatever must be closed with it.
type Backend struct {
	Store storage.Store
	// TracksStock is false for the JSON file backend, which cannot run the
	// ledger or the reconciler.
	TracksStock bool

	dbClient *db.Client
}

func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendJSON:
		store, err := jsonstore.Open(cfg.Store.JSONPath, logg)
		if err != nil {
			return nil, err
		}
		logg.Warn(logg.WithField(ctx, "path", cfg.Store.JSONPath), "json store backend: stock tracking disabled")
		return &Backend{Store: store}, nil

	case config.StoreBackendSQL:
		client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap database: %w", err)
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("dev migrations: %w", err)
		}
		store, err := sqlstore.New(client, logg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Store: store, TracksStock: true, dbClient: client}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// DB is the SQL connection behind the store, or nil for the JSON backend.
func (b *Backend) DB() *db.Client {
	if b == nil {
		return nil
	}
	return b.dbClient
}

func (b *Backend) Close() error {
	if b == nil || b.dbClient == nil {
		return nil
	}
	return b.dbClient.Close()
}
