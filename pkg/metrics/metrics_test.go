// Copyright 2025 Certen Protocol

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakePool struct{ size int }

func (p fakePool) Size() int { return p.size }

type fakeBacklog struct{ n int }

func (b fakeBacklog) Backlog() int { return b.n }

type fakeCounters struct {
	overrides, breaches int
	err                 error
}

func (c fakeCounters) OverrideCount(ctx context.Context) (int, error)           { return c.overrides, c.err }
func (c fakeCounters) BreachCount(ctx context.Context) (int, error)             { return c.breaches, c.err }
func (c fakeCounters) FailedContinuationCount(ctx context.Context) (int, error) { return 0, nil }
func (c fakeCounters) UnclosedCycles(ctx context.Context) (int, error)          { return 0, nil }
func (c fakeCounters) DissolutionEvents(ctx context.Context) (int, error)       { return 0, nil }

func newTestRegistry(t *testing.T) (*Registry, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r, reg
}

func TestRefreshWitnessPoolSize(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RefreshWitnessPoolSize(fakePool{size: 7})
	if got := testutil.ToFloat64(r.WitnessPoolSize); got != 7 {
		t.Fatalf("expected gauge 7, got %v", got)
	}
}

func TestRefreshValidatorBusBacklogSumsAcrossStreams(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RefreshValidatorBusBacklog(fakeBacklog{n: 3}, fakeBacklog{n: 5})
	if got := testutil.ToFloat64(r.ValidatorBusBacklog); got != 8 {
		t.Fatalf("expected gauge 8, got %v", got)
	}
}

func TestRefreshCostCountersSetsBothGauges(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.RefreshCostCounters(context.Background(), fakeCounters{overrides: 2, breaches: 1}); err != nil {
		t.Fatalf("RefreshCostCounters: %v", err)
	}
	if got := testutil.ToFloat64(r.OverrideCount); got != 2 {
		t.Fatalf("expected override gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(r.BreachCount); got != 1 {
		t.Fatalf("expected breach gauge 1, got %v", got)
	}
}

func TestRefreshCostCountersPropagatesError(t *testing.T) {
	r, _ := newTestRegistry(t)
	wantErr := errors.New("scan failed")
	if err := r.RefreshCostCounters(context.Background(), fakeCounters{err: wantErr}); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestObserveReconciliationWaitRecordsIntoHistogram(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ObserveReconciliationWait("motion-1", 250*time.Millisecond)
	if got := testutil.CollectAndCount(r.ReconciliationWait); got != 1 {
		t.Fatalf("expected 1 observation, got %d", got)
	}
}

func TestRecordCheckpointReplayIncrementsByStage(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RecordCheckpointReplay("rfp", "T-001")
	r.RecordCheckpointReplay("rfp", "T-002")
	r.RecordCheckpointReplay("duke", "T-001")

	if got := testutil.ToFloat64(r.CheckpointReplayTotal.WithLabelValues("rfp")); got != 2 {
		t.Fatalf("expected rfp count 2, got %v", got)
	}
	if got := testutil.ToFloat64(r.CheckpointReplayTotal.WithLabelValues("duke")); got != 1 {
		t.Fatalf("expected duke count 1, got %v", got)
	}
}

func TestPollerRefreshUpdatesAllGauges(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := NewPoller(r, fakePool{size: 4}, fakeCounters{overrides: 1, breaches: 0}, time.Millisecond, nil, fakeBacklog{n: 2})
	p.refresh(context.Background())

	if got := testutil.ToFloat64(r.WitnessPoolSize); got != 4 {
		t.Fatalf("expected pool size 4, got %v", got)
	}
	if got := testutil.ToFloat64(r.ValidatorBusBacklog); got != 2 {
		t.Fatalf("expected backlog 2, got %v", got)
	}
	if got := testutil.ToFloat64(r.OverrideCount); got != 1 {
		t.Fatalf("expected override count 1, got %v", got)
	}
}
