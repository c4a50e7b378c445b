package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"go.uber.org/multierr"
)

// Reconciler repairs products whose reserved counter drifted away from the
// sum of cart item reservation records.
type Reconciler struct {
	source ReservationSource
	logg   *logger.Logger
}

// ReconcileResult summarizes one pass.
type ReconcileResult struct {
	Checked  int
	Repaired []Snapshot
	// Skipped counts drifted products whose counter moved before the repair landed.
	Skipped int
}

func NewReconciler(source ReservationSource, logg *logger.Logger) (*Reconciler, error) {
	if source == nil {
		return nil, fmt.Errorf("reservation source required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{source: source, logg: logg}, nil
}

func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	snapshots, err := r.source.ListReservationSnapshots(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	result := ReconcileResult{Checked: len(snapshots)}
	var errs error
	for _, snap := range snapshots {
		if !snap.Drifted() {
			continue
		}
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"product_id": snap.ProductID.String(),
			"reserved":   snap.Reserved,
			"held":       snap.Held,
		})
		synced, err := r.source.SyncReserved(ctx, snap.ProductID, snap.Reserved)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sync product %s: %w", snap.ProductID, err))
			continue
		}
		if !synced {
			result.Skipped++
			r.logg.Info(logCtx, "reserved counter moved during reconciliation")
			continue
		}
		result.Repaired = append(result.Repaired, snap)
		r.logg.Warn(logCtx, "reserved counter drift repaired")
	}
	return result, errs
}
