package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultCartIdleTTL     = 72 * time.Hour
	defaultCartExpiryBatch = 200
)

type cartExpirer interface {
	ExpireIdle(ctx context.Context, cutoff time.Time, limit int) (cart.ExpireResult, error)
}

type CartExpiryJobParams struct {
	Logger    *logger.Logger
	Carts     cartExpirer
	IdleTTL   time.Duration
	BatchSize int
}

func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultCartIdleTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCartExpiryBatch
	}
	return &cartExpiryJob{
		logg:  params.Logger,
		carts: params.Carts,
		ttl:   ttl,
		batch: batch,
		now:   time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg  *logger.Logger
	carts cartExpirer
	ttl   time.Duration
	batch int
	now   func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-idle-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	result, err := j.carts.ExpireIdle(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"carts_expired":  result.Expired,
		"units_released": result.ReleasedUnits,
	})
	if err != nil {
		return fmt.Errorf("cart idle expiry: %w", err)
	}
	j.logg.Info(logCtx, "idle cart expiry complete")
	return nil
}
