// Package bootstrap holds the startup steps every binary under cmd/ shares.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Init loads .env (when present) and the config, then returns a logger built
// from the configured level. It exits the process when config is invalid.
func Init(service string) (*config.Config, *logger.Logger) {
	logg := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	Must(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg
}

// Context returns the root context carrying the fields every log line of a
// process should have.
func Context(cfg *config.Config, logg *logger.Logger, service string, extra map[string]any) context.Context {
	fields := map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": service,
		"instance":    instance.GetID(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return logg.WithFields(context.Background(), fields)
}

// Must logs and exits when a startup step failed.
func Must(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("startup failed: %s", step), err)
	os.Exit(1)
}
