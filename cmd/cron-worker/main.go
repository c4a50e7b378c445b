package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/storage/backend"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	serviceName = "cron-worker"
	lockName    = "cron-worker"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, logg := bootstrap.Init(serviceName)
	boot := context.Background()

	store, err := backend.Open(boot, cfg, logg)
	bootstrap.Must(boot, logg, "store", err)
	defer store.Close()

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(boot, cfg.Redis, logg)
		bootstrap.Must(boot, logg, "redis", err)
		defer redisClient.Close()
		redisLock, err := cron.NewRedisLock(redisClient, lockName, cfg.Cron.LockTTL)
		bootstrap.Must(boot, logg, "cron lock", err)
		lock = redisLock
	} else {
		logg.Warn(boot, "redis not configured; cron lock is process-local")
	}

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	registry := cron.NewRegistry()

	// The JSON backend keeps no reserved counters, so there is nothing to reconcile.
	if store.TracksStock {
		reconciler, err := inventory.NewReconciler(store.Store, logg)
		bootstrap.Must(boot, logg, "reconciler", err)
		job, err := cron.NewReservationReconcileJob(cron.ReservationReconcileJobParams{
			Logger:     logg,
			Reconciler: reconciler,
			Metrics:    ledgerMetrics,
			Events:     store.Store,
		})
		bootstrap.Must(boot, logg, "reconcile job", err)
		bootstrap.Must(boot, logg, "register reconcile job", registry.Register(job))
	}

	if conn := store.DB(); conn != nil {
		pruneJob, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
			Logger:    logg,
			Outbox:    outbox.NewRepository(conn.DB()),
			Retention: cfg.Outbox.Retention,
		})
		bootstrap.Must(boot, logg, "outbox prune job", err)
		bootstrap.Must(boot, logg, "register outbox prune job", registry.Register(pruneJob))
	}

	cartService, err := cart.NewService(store.Store, logg, ledgerMetrics)
	bootstrap.Must(boot, logg, "cart service", err)
	expiryJob, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{
		Logger:  logg,
		Carts:   cartService,
		IdleTTL: cfg.Cart.IdleTTL,
	})
	bootstrap.Must(boot, logg, "cart expiry job", err)
	bootstrap.Must(boot, logg, "register cart expiry job", registry.Register(expiryJob))

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	bootstrap.Must(boot, logg, "cron service", err)

	ctx := bootstrap.Context(cfg, logg, serviceName, map[string]any{"backend": store.Store.Name()})
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
		}
		return
	}

	logg.Info(ctx, "cron worker starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return
	}
	logg.Info(ctx, "cron worker stopped")
}
