// Copyright 2025 Certen Protocol
//
// ReconciliationGate implements await_all_validations (§4.7, P2): it
// blocks until every vote_id registered under a motion has reached
// {validated, dlq_fallback_applied}, or raises ErrReconciliationIncomplete
// on timeout. It never silently succeeds.

package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

// ErrReconciliationIncomplete is raised when the timeout elapses with one
// or more votes still pending.
var ErrReconciliationIncomplete = errors.New("validation: reconciliation incomplete")

// ReconciliationCompletePayload is written once per vote, when that vote
// reaches a terminal outcome — spec.md §8.4 S1 expects 3 distinct
// ReconciliationComplete events for a 3-vote motion, not one batched event
// naming all three vote_ids.
type ReconciliationCompletePayload struct {
	MotionID string `json:"motion_id"`
	VoteID   string `json:"vote_id"`
}

// ReconciliationGate wraps an Aggregator with the blocking await.
type ReconciliationGate struct {
	aggregator *Aggregator
	writer     Appender
	pollEvery  time.Duration

	// OnWait, if set, is called once AwaitAll reaches a terminal state with
	// how long it waited, for recording the gate's wait-time distribution.
	OnWait func(motionID string, waited time.Duration)
}

// NewReconciliationGate builds a gate polling the aggregator's state.
func NewReconciliationGate(aggregator *Aggregator, writer Appender, pollEvery time.Duration) *ReconciliationGate {
	if pollEvery <= 0 {
		pollEvery = 10 * time.Millisecond
	}
	return &ReconciliationGate{aggregator: aggregator, writer: writer, pollEvery: pollEvery}
}

// AwaitAll blocks until every vote in voteIDs has reached a terminal
// outcome, or timeout elapses. Per P2, the caller's remedies on timeout are
// bounded to: extend the timeout, trigger halt, or (with an explicit,
// separately-logged keeper override) adjourn with named unresolved votes —
// none of those are decided here; this method only ever returns success or
// ErrReconciliationIncomplete.
func (g *ReconciliationGate) AwaitAll(ctx context.Context, motionID string, voteIDs []string, timeout time.Duration) error {
	started := time.Now()
	deadline := started.Add(timeout)
	ticker := time.NewTicker(g.pollEvery)
	defer ticker.Stop()

	for {
		if g.allResolved(voteIDs) {
			if g.OnWait != nil {
				g.OnWait(motionID, time.Since(started))
			}
			for _, voteID := range voteIDs {
				if _, err := g.writer.Append(ctx, eventstore.ReconciliationComplete, ReconciliationCompletePayload{
					MotionID: motionID, VoteID: voteID,
				}, "reconciliation-gate", "reconciliation-gate"); err != nil {
					return fmt.Errorf("validation: write reconciliation complete for vote %s: %w", voteID, err)
				}
			}
			return nil
		}
		if time.Now().After(deadline) {
			if g.OnWait != nil {
				g.OnWait(motionID, time.Since(started))
			}
			return fmt.Errorf("%w: motion %s", ErrReconciliationIncomplete, motionID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *ReconciliationGate) allResolved(voteIDs []string) bool {
	for _, id := range voteIDs {
		outcome, ok := g.aggregator.Outcome(id)
		if !ok {
			return false
		}
		if outcome != OutcomeValidated && outcome != OutcomeDlqFallback {
			return false
		}
	}
	return true
}
