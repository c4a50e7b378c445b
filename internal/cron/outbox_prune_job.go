package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention  = 30 * 24 * time.Hour
	defaultOutboxPruneBatch = 500
)

type outboxPruner interface {
	PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxPruneJobParams struct {
	Logger    *logger.Logger
	Outbox    outboxPruner
	Retention time.Duration
	BatchSize int
}

// NewOutboxPruneJob deletes published outbox rows older than Retention.
// Parked rows stay until an operator looks at them.
func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxPruneJob{
		logg:      params.Logger,
		outbox:    params.Outbox,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batch <= 0 {
		job.batch = defaultOutboxPruneBatch
	}
	return job, nil
}

type outboxPruneJob struct {
	logg      *logger.Logger
	outbox    outboxPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

// Run deletes in batches so no single statement holds locks for long, and
// stops early when ctx is done.
func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for ctx.Err() == nil {
		n, err := j.outbox.PrunePublished(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("outbox prune after %d rows: %w", total, err)
		}
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox prune complete")
	return ctx.Err()
}
