package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeReconciler struct {
	result inventory.ReconcileResult
	err    error
}

func (f *fakeReconciler) Reconcile(context.Context) (inventory.ReconcileResult, error) {
	return f.result, f.err
}

func TestReservationReconcileJobCountsRepairs(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger := metrics.NewLedgerMetrics(reg)
	job, err := NewReservationReconcileJob(ReservationReconcileJobParams{
		Logger: logger.Nop(),
		Reconciler: &fakeReconciler{result: inventory.ReconcileResult{
			Checked:  3,
			Repaired: []inventory.Snapshot{{ProductID: uuid.New(), Reserved: 4, Held: 1}},
		}},
		Metrics: ledger,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var drift float64
	for _, mf := range mfs {
		if mf.GetName() == "storefront_inventory_reserved_drift_total" {
			drift = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if drift != 1 {
		t.Fatalf("expected drift=1, got %f", drift)
	}
}

func TestReservationReconcileJobReturnsError(t *testing.T) {
	job, err := NewReservationReconcileJob(ReservationReconcileJobParams{
		Logger:     logger.Nop(),
		Reconciler: &fakeReconciler{err: errors.New("sync failed")},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected reconcile error")
	}
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) EmitEvent(_ context.Context, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestReservationReconcileJobAnnouncesRepairs(t *testing.T) {
	drifted := inventory.Snapshot{ProductID: uuid.New(), Reserved: 7, Held: 2}
	emitter := &recordingEmitter{}
	job, err := NewReservationReconcileJob(ReservationReconcileJobParams{
		Logger:     logger.Nop(),
		Reconciler: &fakeReconciler{result: inventory.ReconcileResult{Checked: 1, Repaired: []inventory.Snapshot{drifted}}},
		Events:     emitter,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %d", len(emitter.events))
	}
	event := emitter.events[0]
	if event.EventType != enums.EventReservationDrifted || event.AggregateID != drifted.ProductID {
		t.Fatalf("unexpected event %+v", event)
	}
	if data, ok := event.Data.(outbox.ReservationDriftedEvent); !ok || data.Reserved != 7 || data.Held != 2 {
		t.Fatalf("unexpected payload %+v", event.Data)
	}

	emitter.err = errors.New("disk full")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected emit failure to surface")
	}
}

type fakeExpirer struct {
	cutoff time.Time
	limit  int
	result cart.ExpireResult
	err    error
}

func (f *fakeExpirer) ExpireIdle(_ context.Context, cutoff time.Time, limit int) (cart.ExpireResult, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.result, f.err
}

func TestCartExpiryJobUsesIdleTTL(t *testing.T) {
	expirer := &fakeExpirer{result: cart.ExpireResult{Expired: 2, ReleasedUnits: 5}}
	job, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger:  logger.Nop(),
		Carts:   expirer,
		IdleTTL: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.(*cartExpiryJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := now.Add(-2 * time.Hour); !expirer.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, expirer.cutoff)
	}
	if expirer.limit != defaultCartExpiryBatch {
		t.Fatalf("expected default batch, got %d", expirer.limit)
	}
}

func TestCartExpiryJobRequiresService(t *testing.T) {
	if _, err := NewCartExpiryJob(CartExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing service error")
	}
}

type fakeLocker struct {
	holder   string
	released []string
}

func (f *fakeLocker) AcquireLock(_ context.Context, _ string, token string, _ time.Duration) (bool, error) {
	if f.holder != "" {
		return false, nil
	}
	f.holder = token
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, _ string, token string) error {
	f.released = append(f.released, token)
	if f.holder == token {
		f.holder = ""
	}
	return nil
}

func TestRedisLockReleasesOwnToken(t *testing.T) {
	locker := &fakeLocker{}
	first, err := NewRedisLock(locker, "", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	second, _ := NewRedisLock(locker, "", 0)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, got ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance should not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if len(locker.released) != 0 {
		t.Fatalf("non-owner should not release, got %v", locker.released)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if locker.holder != "" {
		t.Fatal("lock should be free after owner release")
	}
}
