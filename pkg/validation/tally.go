// Copyright 2025 Certen Protocol
//
// EventTally recomputes a motion's authoritative tally by replaying
// VoteCast and VoteOverride events from the store, the same event-scan
// pattern audit.EventScanCounters uses for its cost counters. Unlike
// deliberation.Engine.Tally (an in-memory snapshot of optimistic choices
// only, by design never mutated by an override), this walk reflects every
// override applied so far, which is what the P6 check after an override
// (§4.7) needs.

package validation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
)

// EventTally implements TallyChecker by scanning the event store.
type EventTally struct {
	Store *eventstore.Store
}

// CheckP6 implements TallyChecker.
func (c *EventTally) CheckP6(ctx context.Context, motionID string) error {
	t, err := c.Tally(ctx, motionID)
	if err != nil {
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("validation: P6 violated for motion %s: ayes=%d nays=%d abstains=%d total=%d",
			motionID, t.Ayes, t.Nays, t.Abstains, t.TotalVotes)
	}
	return nil
}

// Tally recomputes motionID's authoritative tally, reflecting every
// VoteOverride applied so far.
func (c *EventTally) Tally(ctx context.Context, motionID string) (deliberation.Tally, error) {
	head, err := c.Store.Head()
	if err != nil {
		return deliberation.Tally{}, err
	}
	if head == nil {
		return deliberation.Tally{}, nil
	}

	choices := make(map[string]deliberation.VoteChoice)
	var order []string

	for seq := int64(1); seq <= head.Sequence; seq++ {
		select {
		case <-ctx.Done():
			return deliberation.Tally{}, ctx.Err()
		default:
		}
		ev, err := c.Store.GetEvent(seq)
		if err != nil {
			return deliberation.Tally{}, err
		}
		switch ev.EventType {
		case eventstore.VoteCast:
			var p deliberation.VoteCastPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MotionID != motionID {
				continue
			}
			if _, seen := choices[p.VoteID]; !seen {
				order = append(order, p.VoteID)
			}
			choices[p.VoteID] = p.OptimisticChoice
		case eventstore.VoteOverride:
			var p VoteOverridePayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MotionID != motionID {
				continue
			}
			choices[p.VoteID] = p.NewChoice
		}
	}

	var t deliberation.Tally
	for _, id := range order {
		t.TotalVotes++
		switch choices[id] {
		case deliberation.VoteAye:
			t.Ayes++
		case deliberation.VoteNay:
			t.Nays++
		default:
			t.Abstains++
		}
	}
	return t, nil
}

var _ TallyChecker = (*EventTally)(nil)
