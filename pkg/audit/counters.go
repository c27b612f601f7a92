// Copyright 2025 Certen Protocol
//
// EventScanCounters derives cost-snapshot counts by walking the event
// store, the same sequential Store.GetEvent pattern eventstore.Verifier
// uses for its chain walk. It holds the concrete *eventstore.Store, not a
// narrowed interface, for the same reason pkg/observer.Reader does:
// Store.Head() returns an unexported record type.

package audit

import (
	"context"

	"github.com/archon72/conclave/pkg/eventstore"
)

// EventScanCounters implements Counters by scanning the full event store on
// every call. It is correct but O(n) per count; a production deployment at
// scale would maintain running counters instead, but no such aggregator
// exists elsewhere in this tree to delegate to.
type EventScanCounters struct {
	Store *eventstore.Store
}

func (c *EventScanCounters) count(ctx context.Context, match func(eventstore.EventType) bool) (int, error) {
	head, err := c.Store.Head()
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, nil
	}
	n := 0
	for seq := int64(1); seq <= head.Sequence; seq++ {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		ev, err := c.Store.GetEvent(seq)
		if err != nil {
			return n, err
		}
		if match(ev.EventType) {
			n++
		}
	}
	return n, nil
}

func (c *EventScanCounters) OverrideCount(ctx context.Context) (int, error) {
	return c.count(ctx, func(t eventstore.EventType) bool { return t == eventstore.OverrideInvoked })
}

func (c *EventScanCounters) BreachCount(ctx context.Context) (int, error) {
	return c.count(ctx, func(t eventstore.EventType) bool {
		return t == eventstore.BreachDeclared || t == eventstore.BreachEscalated
	})
}

// FailedContinuationCount counts motions that failed or were left with an
// incomplete reconciliation rather than ratified (§8.4 S3's
// ReconciliationIncomplete path has no dedicated event type in §6.2's
// closed vocabulary, so MotionFailed is the observable proxy for a failed
// continuation here).
func (c *EventScanCounters) FailedContinuationCount(ctx context.Context) (int, error) {
	return c.count(ctx, func(t eventstore.EventType) bool { return t == eventstore.MotionFailed })
}

// UnclosedCycles counts CeremonyStarted events with no matching
// CeremonyCompleted; a cycle here is a ceremony, the unit with an explicit
// open/close lifecycle in §6.2's vocabulary.
func (c *EventScanCounters) UnclosedCycles(ctx context.Context) (int, error) {
	head, err := c.Store.Head()
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, nil
	}
	started, completed := 0, 0
	for seq := int64(1); seq <= head.Sequence; seq++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		ev, err := c.Store.GetEvent(seq)
		if err != nil {
			return 0, err
		}
		switch ev.EventType {
		case eventstore.CeremonyStarted:
			started++
		case eventstore.CeremonyCompleted:
			completed++
		}
	}
	if completed > started {
		return 0, nil
	}
	return started - completed, nil
}

// DissolutionEvents counts cessation executions; CessationExecuted is the
// closed vocabulary's only irreversible-dissolution event type.
func (c *EventScanCounters) DissolutionEvents(ctx context.Context) (int, error) {
	return c.count(ctx, func(t eventstore.EventType) bool { return t == eventstore.CessationExecuted })
}

var _ Counters = (*EventScanCounters)(nil)
