// Copyright 2025 Certen Protocol

package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

// defaultPageSize caps a single stream page so a query against fewer than
// 10,000 events can complete well inside the 30s SLA (§4.12).
const defaultPageSize = 1000

// Reader serves the forward-stream and head endpoints, and reconciles an
// observer's reported gap against the primary chain. It holds the
// concrete *eventstore.Store directly (not a narrowed interface):
// Store.Head() returns an unexported record type, so any interface this
// package declared could never be satisfied from outside eventstore.
type Reader struct {
	Store    *eventstore.Store
	Halt     *eventstore.HaltManager
	Verifier *eventstore.Verifier
	Clock    func() time.Time
}

// Head returns the current chain tip.
func (r *Reader) Head() (*HeadInfo, error) {
	head, err := r.Store.Head()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return &HeadInfo{}, nil
	}
	return &HeadInfo{Sequence: head.Sequence, ContentHash: head.ContentHash}, nil
}

// StreamForward returns events in [from, from+limit) in sequence order,
// stopping early at the chain tip. limit <= 0 uses defaultPageSize.
func (r *Reader) StreamForward(ctx context.Context, from int64, limit int) (*EventPage, error) {
	if from < 1 {
		from = 1
	}
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	head, err := r.Store.Head()
	if err != nil {
		return nil, err
	}
	var headSeq int64
	if head != nil {
		headSeq = head.Sequence
	}

	page := &EventPage{NextSequence: from, HeadSequence: headSeq}
	for seq := from; seq < from+int64(limit) && seq <= headSeq; seq++ {
		select {
		case <-ctx.Done():
			return page, ctx.Err()
		default:
		}
		ev, err := r.Store.GetEvent(seq)
		if err != nil {
			return page, fmt.Errorf("observer: stream sequence %d: %w", seq, err)
		}
		page.Events = append(page.Events, ev)
		page.NextSequence = seq + 1
	}
	return page, nil
}

// ReconcileGap checks an observer-reported gap in [observerHead+1, primary
// head] against the primary chain using the same chain-walk the integrity
// verifier runs (§4.2), rather than re-deriving gap detection here. Any
// confirmed sequence_gap finding triggers the halt (I7).
func (r *Reader) ReconcileGap(ctx context.Context, observerHead int64, triggeredBy string) (*GapReport, error) {
	head, err := r.Store.Head()
	if err != nil {
		return nil, err
	}
	var primaryHead int64
	if head != nil {
		primaryHead = head.Sequence
	}

	report := &GapReport{ObserverHead: observerHead, PrimaryHead: primaryHead}
	if observerHead >= primaryHead {
		return report, nil
	}

	verification, err := r.Verifier.Verify(ctx, observerHead+1, primaryHead)
	if err != nil {
		return nil, err
	}
	for _, f := range verification.Findings {
		if f.Kind == "sequence_gap" {
			report.Confirmed = append(report.Confirmed, f)
		}
	}
	if len(report.Confirmed) == 0 {
		return report, nil
	}

	if err := r.Halt.Trigger("confirmed observer-reported sequence gap", triggeredBy, r.Clock()); err != nil {
		return report, err
	}
	report.Halted = true
	return report, nil
}
