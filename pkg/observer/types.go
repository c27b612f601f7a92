// Copyright 2025 Certen Protocol
//
// Observer Read API (§4.12): public, unauthenticated read access to the
// constitutional record with a 99.9% SLA. This package never writes to the
// event store; every type here describes a read or a push-subscription.

package observer

import (
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/merkle"
)

// EventPage is one page of a forward stream from a sequence number.
type EventPage struct {
	Events       []*eventstore.Event `json:"events"`
	NextSequence int64               `json:"next_sequence"`
	HeadSequence int64               `json:"head_sequence"`
}

// HeadInfo is the current chain tip.
type HeadInfo struct {
	Sequence    int64  `json:"sequence"`
	ContentHash string `json:"content_hash"`
}

// AnchorProof is a Merkle inclusion proof for one event against a periodic
// anchor snapshot (§4.12: "fetch a Merkle-style proof for a given event
// against a periodic anchor").
type AnchorProof struct {
	EventSequence  int64                  `json:"event_sequence"`
	Inclusion      *merkle.InclusionProof `json:"inclusion"`
	AnchorSequence int64                  `json:"anchor_sequence"`
	AnchorRoot     string                 `json:"anchor_root"`
	AnchoredAt     time.Time              `json:"anchored_at"`
}

// GapReport is the outcome of reconciling an observer's reported local gap
// against the primary (§4.12: "Gaps reported by observers against their
// local view are reconciled against the primary; any confirmed
// primary-side gap escalates to integrity-violation halt").
type GapReport struct {
	ObserverHead int64                `json:"observer_head"`
	PrimaryHead  int64                `json:"primary_head"`
	Confirmed    []eventstore.Finding `json:"confirmed_gaps"`
	Halted       bool                 `json:"halted"`
}

// WebhookSubscription registers a push-notification endpoint for a set of
// event types.
type WebhookSubscription struct {
	ID         string                 `json:"id"`
	URL        string                 `json:"url"`
	EventTypes []eventstore.EventType `json:"event_types"` // empty means all types
	CreatedAt  time.Time              `json:"created_at"`
}

// matches reports whether ev's type is in the subscription's filter (no
// filter means subscribe to everything).
func (s WebhookSubscription) matches(ev *eventstore.Event) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == ev.EventType {
			return true
		}
	}
	return false
}
