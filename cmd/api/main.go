package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/storage/backend"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, logg := bootstrap.Init(serviceName)
	boot := context.Background()

	store, err := backend.Open(boot, cfg, logg)
	bootstrap.Must(boot, logg, "store", err)
	defer store.Close()

	// Left nil without Redis; the router then disables idempotency and login throttling.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(boot, cfg.Redis, logg)
		bootstrap.Must(boot, logg, "redis", err)
		defer redisClient.Close()
	} else {
		logg.Warn(boot, "redis not configured; idempotency and login rate limiting disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	authService, err := auth.NewService(auth.ServiceParams{
		Users:       store.Store,
		Hasher:      security.NewHasher(cfg.Password),
		JWTConfig:   cfg.JWT,
		AdminEmails: cfg.Auth.AdminEmails,
	})
	bootstrap.Must(boot, logg, "auth service", err)
	productService, err := products.NewService(store.Store, logg)
	bootstrap.Must(boot, logg, "product service", err)
	cartService, err := cart.NewService(store.Store, logg, ledgerMetrics)
	bootstrap.Must(boot, logg, "cart service", err)
	orderService, err := orders.NewService(store.Store, logg, ledgerMetrics)
	bootstrap.Must(boot, logg, "order service", err)

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Store:    store.Store,
			Redis:    redisClient,
			Auth:     authService,
			Products: productService,
			Cart:     cartService,
			Orders:   orderService,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		}),
		ReadHeaderTimeout: cfg.App.ReadTimeout,
		ReadTimeout:       cfg.App.ReadTimeout,
		WriteTimeout:      cfg.App.WriteTimeout,
	}

	ctx := bootstrap.Context(cfg, logg, serviceName, map[string]any{
		"addr":    addr,
		"backend": store.Store.Name(),
	})
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}
