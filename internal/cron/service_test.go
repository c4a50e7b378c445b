package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panics" }

func (panickingJob) Run(context.Context) error { panic("nil map") }

type slowJob struct{ deadlineSeen bool }

func (s *slowJob) Name() string { return "slow" }

func (s *slowJob) Run(ctx context.Context) error {
	_, s.deadlineSeen = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

type failingLock struct{}

func (failingLock) Acquire(context.Context) (bool, error) { return false, errors.New("redis down") }
func (failingLock) Release(context.Context) error         { return nil }

func TestRunOnceContinuesPastFailedJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	failing := &countingJob{name: "reservation-reconcile", err: errors.New("boom")}
	after := &countingJob{name: "cart-idle-expiry"}
	lock := &LocalLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failing, after),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if failing.runs != 1 || after.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", failing.runs, after.runs)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("lock should be released after the cycle")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	outcomes := map[string]string{}
	for _, mf := range mfs {
		if mf.GetName() != "storefront_cron_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var job, result string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "job":
					job = l.GetValue()
				case "result":
					result = l.GetValue()
				}
			}
			outcomes[job] = result
		}
	}
	if outcomes["reservation-reconcile"] != metrics.JobFailed || outcomes["cart-idle-expiry"] != metrics.JobSucceeded {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "guarded"}
	lock := &LocalLock{}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected to take the local lock")
	}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run while the lock is held, ran %d", job.runs)
	}
}

func TestRunOnceReportsLockErrors(t *testing.T) {
	job := &countingJob{name: "guarded"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: failingLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatal("jobs must not run without the lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "tick"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &LocalLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("Run executes one cycle before waiting, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing lock error")
	}
}

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	after := &countingJob{name: "after"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(panickingJob{}, after), Lock: &LocalLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if after.runs != 1 {
		t.Fatal("a panicking job must not stop the cycle")
	}
}

func TestJobTimeoutBoundsEachJob(t *testing.T) {
	job := &slowJob{}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(job),
		Lock:       &LocalLock{},
		JobTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- service.RunOnce(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job timeout was not applied")
	}
	if !job.deadlineSeen {
		t.Fatal("job context should carry a deadline")
	}
}
