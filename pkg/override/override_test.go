// Copyright 2025 Certen Protocol

package override

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

type recordingEvents struct {
	types []eventstore.EventType
}

func (r *recordingEvents) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	r.types = append(r.types, eventType)
	return &eventstore.Event{EventType: eventType}, nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, ownerID string, at time.Time, content []byte) ([]byte, error) {
	return []byte("sig:" + ownerID), nil
}

func newOverseer(events *recordingEvents, clock func() time.Time) (*Overseer, *MemoryRollingWindowStore) {
	store := NewMemoryRollingWindowStore()
	return &Overseer{
		Events:     events,
		Store:      store,
		Signer:     fakeSigner{},
		PrevHashOf: func() (string, error) { return eventstore.GenesisHash, nil },
		Clock:      clock,
	}, store
}

func TestInvokeRecordsOverrideInvokedBeforeThreshold(t *testing.T) {
	events := &recordingEvents{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o, _ := newOverseer(events, func() time.Time { return now })

	result, err := o.Invoke(context.Background(), Request{
		KeeperID: "keeper-1", Kind: KindKeeperAction, Scope: "halt-clear", Duration: time.Hour,
		Reason: "emergency fix", SpokenDeclaration: "I accept attribution.",
	}, false)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if events.types[0] != eventstore.OverrideInvoked {
		t.Fatalf("expected OverrideInvoked first, got %v", events.types)
	}
	if result.Payload.Threshold != ThresholdNone {
		t.Fatalf("expected no threshold crossed on first override, got %s", result.Payload.Threshold)
	}
	if len(result.Payload.KeeperSignature) == 0 {
		t.Fatal("expected a keeper signature on the payload")
	}
}

func TestInvokeFourthOverrideInADayRaisesIncident(t *testing.T) {
	events := &recordingEvents{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o, _ := newOverseer(events, func() time.Time { return now })

	var last *Result
	for i := 0; i < 4; i++ {
		r, err := o.Invoke(context.Background(), Request{KeeperID: "keeper-1", Reason: "r", SpokenDeclaration: "I accept attribution."}, false)
		if err != nil {
			t.Fatalf("Invoke #%d: %v", i, err)
		}
		last = r
	}
	if last.Payload.Threshold != ThresholdIncident {
		t.Fatalf("expected incident threshold on the 4th same-day override, got %s", last.Payload.Threshold)
	}
	found := false
	for _, ty := range events.types {
		if ty == eventstore.BreachDeclared {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a BreachDeclared event for the incident threshold")
	}
}

func TestInvokeHardBlockRejectsWithoutCeremony(t *testing.T) {
	events := &recordingEvents{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o, store := newOverseer(events, func() time.Time { return now })

	for i := 0; i < 20; i++ {
		if err := store.Record(context.Background(), "keeper-1", now.Add(-time.Duration(i)*time.Hour*24)); err != nil {
			t.Fatalf("seed Record: %v", err)
		}
	}

	if _, err := o.Invoke(context.Background(), Request{KeeperID: "keeper-1", Reason: "r", SpokenDeclaration: "I accept attribution."}, false); err == nil {
		t.Fatal("expected hard block without an authorizing ceremony")
	}
	if _, err := o.Invoke(context.Background(), Request{KeeperID: "keeper-1", Reason: "r", SpokenDeclaration: "I accept attribution."}, true); err != nil {
		t.Fatalf("expected ceremony-authorized override to succeed, got %v", err)
	}
}
