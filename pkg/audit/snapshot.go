// Copyright 2025 Certen Protocol
//
// Cost snapshot (§4.14): a counter bundle surfaced at every cycle boundary
// (cycle = conclave open -> adjourn), announced publicly at cycle opening.
// It is not itself a constitutional event — §6.2's closed event-type
// vocabulary has no entry for it — so this package treats it as a derived,
// queryable report over state the rest of the system already records as
// events, not as something appended to the chain.

package audit

import (
	"context"
	"fmt"
	"time"
)

// CostSnapshot is the §4.14 counter bundle.
type CostSnapshot struct {
	CycleID                 string    `json:"cycle_id"`
	TakenAt                 time.Time `json:"taken_at"`
	OverrideCount           int       `json:"override_count"`
	BreachCount             int       `json:"breach_count"`
	FailedContinuationCount int       `json:"failed_continuation_count"`
	UnclosedCycles          int       `json:"unclosed_cycles"`
	DissolutionEvents       int       `json:"dissolution_events"`
}

// Counters supplies the raw counts a snapshot bundles. Each method is free
// to source its count however is natural for that subsystem: a rolling
// window store, a breach repository, or an event-store scan.
type Counters interface {
	OverrideCount(ctx context.Context) (int, error)
	BreachCount(ctx context.Context) (int, error)
	FailedContinuationCount(ctx context.Context) (int, error)
	UnclosedCycles(ctx context.Context) (int, error)
	DissolutionEvents(ctx context.Context) (int, error)
}

// SnapshotRepository persists cost snapshots for historical reporting.
type SnapshotRepository interface {
	Insert(ctx context.Context, s CostSnapshot) error
	Latest(ctx context.Context) (*CostSnapshot, error)
}

// SnapshotScheduler takes a cost snapshot at each cycle boundary.
type SnapshotScheduler struct {
	Counters Counters
	Repo     SnapshotRepository
	Clock    func() time.Time
}

// TakeSnapshot computes and persists a cost snapshot for cycleID. Callers
// announce the returned snapshot publicly at cycle opening (§4.14); this
// method only computes and records it.
func (s *SnapshotScheduler) TakeSnapshot(ctx context.Context, cycleID string) (*CostSnapshot, error) {
	overrideCount, err := s.Counters.OverrideCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: override count: %w", err)
	}
	breachCount, err := s.Counters.BreachCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: breach count: %w", err)
	}
	failedContinuation, err := s.Counters.FailedContinuationCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: failed continuation count: %w", err)
	}
	unclosed, err := s.Counters.UnclosedCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: unclosed cycles: %w", err)
	}
	dissolutions, err := s.Counters.DissolutionEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: dissolution events: %w", err)
	}

	snap := CostSnapshot{
		CycleID:                 cycleID,
		TakenAt:                 s.Clock(),
		OverrideCount:           overrideCount,
		BreachCount:             breachCount,
		FailedContinuationCount: failedContinuation,
		UnclosedCycles:          unclosed,
		DissolutionEvents:       dissolutions,
	}
	if err := s.Repo.Insert(ctx, snap); err != nil {
		return nil, fmt.Errorf("audit: persist cost snapshot: %w", err)
	}
	return &snap, nil
}
