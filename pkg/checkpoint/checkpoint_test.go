// Copyright 2025 Certen Protocol

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), fixedClock(time.Unix(0, 0)))

	rec := &Record{UnitID: "unit-1", Status: StatusCompleted, Payload: json.RawMessage(`{"x":1}`)}
	if err := store.Put("rfp", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get("rfp", "unit-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || string(got.Payload) != `{"x":1}` {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)
	_, err := store.Get("rfp", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreClearInvalidatesButRetainsManifest(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)
	if err := store.Put("rfp", &Record{UnitID: "unit-1", Status: StatusCompleted}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Clear("rfp"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if store.Has("rfp", "unit-1") {
		t.Fatal("expected cleared unit to report not-found")
	}

	ids, err := store.ListUnitIDs("rfp")
	if err != nil {
		t.Fatalf("ListUnitIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "unit-1" {
		t.Fatalf("expected manifest to retain unit-1 after clear, got %v", ids)
	}
}

func TestStoreListCompletedFiltersStatus(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)
	if err := store.Put("rfp", &Record{UnitID: "u1", Status: StatusCompleted}); err != nil {
		t.Fatalf("Put u1: %v", err)
	}
	if err := store.Put("rfp", &Record{UnitID: "u2", Status: StatusFailed}); err != nil {
		t.Fatalf("Put u2: %v", err)
	}

	completed, err := store.ListCompleted("rfp")
	if err != nil {
		t.Fatalf("ListCompleted: %v", err)
	}
	if len(completed) != 1 || completed[0].UnitID != "u1" {
		t.Fatalf("expected only u1 completed, got %+v", completed)
	}
}

func TestCounterTrackerAllocatesMonotonically(t *testing.T) {
	c := NewCounterTracker()
	if got := c.Next("T", "SEC"); got != "T-SEC-001" {
		t.Fatalf("expected T-SEC-001, got %s", got)
	}
	if got := c.Next("T", "SEC"); got != "T-SEC-002" {
		t.Fatalf("expected T-SEC-002, got %s", got)
	}
	if got := c.Next("C", ""); got != "C-001" {
		t.Fatalf("expected C-001, got %s", got)
	}
}

func TestCounterTrackerObserveResumesHighWaterMark(t *testing.T) {
	c := NewCounterTracker()
	c.Observe("T-SEC-004")
	c.Observe("T-SEC-002")
	c.Observe("R-SEC-001") // distinct kind, must not collide

	if got := c.Next("T", "SEC"); got != "T-SEC-005" {
		t.Fatalf("expected T-SEC-005 after observing up to 004, got %s", got)
	}
	if got := c.Next("R", "SEC"); got != "R-SEC-002" {
		t.Fatalf("expected R-SEC-002, got %s", got)
	}
}

func TestGeneratorSkipsCompletedUnitsOnResume(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)
	calls := map[string]int{}

	makeUnit := func(id string, fail bool) Unit {
		return Unit{
			ID: id,
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				calls[id]++
				if fail {
					return nil, errors.New("boom")
				}
				return json.RawMessage(`{"ok":true}`), nil
			},
		}
	}

	gen := NewGenerator("rfp", store, BackoffConfig{Base: time.Millisecond, MaxRetries: 1})
	gen.Sleep = func(time.Duration) {}

	units := []Unit{makeUnit("u1", false), makeUnit("u2", false)}
	if _, err := gen.Run(context.Background(), units); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if calls["u1"] != 1 || calls["u2"] != 1 {
		t.Fatalf("expected each unit produced once, got %v", calls)
	}

	// Second run over the same units must not re-invoke Produce; checkpoints
	// are the program counter.
	if _, err := gen.Run(context.Background(), units); err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if calls["u1"] != 1 || calls["u2"] != 1 {
		t.Fatalf("expected no re-invocation on resume, got %v", calls)
	}
}

func TestGeneratorRetriesThenFails(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)
	attempts := 0

	unit := Unit{
		ID: "u1",
		Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
			attempts++
			return nil, errors.New("always fails")
		},
	}

	gen := NewGenerator("rfp", store, BackoffConfig{Base: time.Millisecond, MaxRetries: 3})
	gen.Sleep = func(time.Duration) {}

	_, err := gen.Run(context.Background(), []Unit{unit})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	rec, getErr := store.Get("rfp", "u1")
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if rec.Status != StatusFailed || rec.Attempts != 3 {
		t.Fatalf("unexpected failed record: %+v", rec)
	}
}

func TestGeneratorLintRejectsOutput(t *testing.T) {
	store := NewStore(eventstore.NewMemoryKV(), nil)

	unit := Unit{
		ID: "u1",
		Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
			return json.RawMessage(`{"bad":true}`), nil
		},
		Lint: func(payload json.RawMessage) error {
			return errors.New("forbidden pattern detected")
		},
	}

	gen := NewGenerator("rfp", store, BackoffConfig{Base: time.Millisecond, MaxRetries: 2})
	gen.Sleep = func(time.Duration) {}

	_, err := gen.Run(context.Background(), []Unit{unit})
	if err == nil {
		t.Fatal("expected lint rejection to surface as an error")
	}
}
