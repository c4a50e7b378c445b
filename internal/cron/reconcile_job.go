package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type reconciler interface {
	Reconcile(ctx context.Context) (inventory.ReconcileResult, error)
}

type eventEmitter interface {
	EmitEvent(ctx context.Context, event outbox.DomainEvent) error
}

type ReservationReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
	Metrics    *metrics.LedgerMetrics
	// Events, when set, receives one reservation_drifted event per repair.
	Events eventEmitter
}

func NewReservationReconcileJob(params ReservationReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reservationReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		events:     params.Events,
	}, nil
}

type reservationReconcileJob struct {
	logg       *logger.Logger
	reconciler reconciler
	metrics    *metrics.LedgerMetrics
	events     eventEmitter
}

func (j *reservationReconcileJob) Name() string { return "reservation-reconcile" }

// Run repairs drifted reserved counters. A partial failure still reports the
// products that were repaired before returning the aggregated error.
func (j *reservationReconcileJob) Run(ctx context.Context) error {
	result, err := j.reconciler.Reconcile(ctx)
	for _, snap := range result.Repaired {
		j.metrics.Observe(metrics.LedgerOpSync, metrics.ResultOK)
		err = multierr.Append(err, j.announce(ctx, snap))
	}
	j.metrics.ObserveDrift(len(result.Repaired))

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"products_checked":  result.Checked,
		"products_repaired": len(result.Repaired),
		"products_skipped":  result.Skipped,
	})
	if err != nil {
		j.metrics.Observe(metrics.LedgerOpSync, metrics.ResultError)
		return fmt.Errorf("reservation reconcile: %w", err)
	}
	j.logg.Info(logCtx, "reservation reconcile complete")
	return nil
}

// announce queues the repair for downstream consumers. It runs after the
// counter was synced, so a failed emit loses the event but not the repair.
func (j *reservationReconcileJob) announce(ctx context.Context, snap inventory.Snapshot) error {
	if j.events == nil {
		return nil
	}
	err := j.events.EmitEvent(ctx, outbox.DomainEvent{
		EventType:     enums.EventReservationDrifted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   snap.ProductID,
		Data: outbox.ReservationDriftedEvent{
			ProductID: snap.ProductID,
			Reserved:  snap.Reserved,
			Held:      snap.Held,
		},
	})
	if err != nil {
		return fmt.Errorf("emit drift for %s: %w", snap.ProductID, err)
	}
	return nil
}
