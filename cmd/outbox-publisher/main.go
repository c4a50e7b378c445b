package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	cfg, logg := bootstrap.Init(serviceName)
	boot := context.Background()

	if cfg.Store.Backend != config.StoreBackendSQL {
		bootstrap.Must(boot, logg, "backend", fmt.Errorf("outbox events live in the sql backend, got %q", cfg.Store.Backend))
	}

	dbClient, err := db.New(boot, cfg.DB, cfg.FeatureFlags, logg)
	bootstrap.Must(boot, logg, "database", err)
	defer dbClient.Close()
	bootstrap.Must(boot, logg, "dev migrations", migrate.MaybeRunDev(boot, cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	bootstrap.Must(boot, logg, "pubsub", err)
	defer pubsubClient.Close()

	relay, err := NewRelay(RelayParams{
		Outbox: cfg.Outbox,
		Logger: logg,
		DB:     dbClient,
		Rows:   outbox.NewRepository(dbClient.DB()),
		Topic:  pubsubClient,
	})
	bootstrap.Must(boot, logg, "relay", err)

	ctx := bootstrap.Context(cfg, logg, serviceName, map[string]any{"topic": pubsubClient.DomainTopic()})
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg.Info(ctx, "outbox publisher starting")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return
	}
	logg.Info(ctx, "outbox publisher stopped")
}
