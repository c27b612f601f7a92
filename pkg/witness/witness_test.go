// Copyright 2025 Certen Protocol

package witness

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/signing"
)

func setupWitnesses(t *testing.T, ids ...string) (*signing.Registry, *Pool) {
	t.Helper()
	reg := signing.NewRegistry()
	pool := NewPool(0)
	km := signing.NewKeyManager(reg, &noopAppender{}, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	for _, id := range ids {
		if _, err := km.Register(context.Background(), id, id, "system"); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		pool.Register(id)
	}
	return reg, pool
}

type noopAppender struct{ seq int64 }

func (a *noopAppender) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	a.seq++
	return &eventstore.Event{Sequence: a.seq, EventType: eventType, AgentID: agentID}, nil
}

func TestSelectAndAttestPicksDeterministically(t *testing.T) {
	reg, pool := setupWitnesses(t, "w1", "w2", "w3", "w4")
	signer := NewRegistrySigner(reg, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	sel := NewSelector(pool, signer)

	attrs, err := sel.SelectAndAttest(context.Background(), "seed-1", 2, []byte("content"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attestations, got %d", len(attrs))
	}

	attrs2, err := sel.SelectAndAttest(context.Background(), "seed-1", 2, []byte("content"))
	if err != nil {
		t.Fatalf("select 2: %v", err)
	}
	// Cooldown is 0 here, so every witness stays eligible and the same seed
	// must rank them identically.
	for i := range attrs {
		if attrs[i].WitnessID != attrs2[i].WitnessID {
			t.Fatalf("expected witness %s at position %d for the same seed, got %s", attrs[i].WitnessID, i, attrs2[i].WitnessID)
		}
	}
}

func TestSelectAndAttestFailsWhenPoolTooSmall(t *testing.T) {
	reg, pool := setupWitnesses(t, "w1")
	signer := NewRegistrySigner(reg, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	sel := NewSelector(pool, signer)

	if _, err := sel.SelectAndAttest(context.Background(), "seed", 3, []byte("x")); err == nil {
		t.Fatal("expected witness pool exhausted error")
	}
}

func TestVerifierAcceptsValidAttestation(t *testing.T) {
	reg, pool := setupWitnesses(t, "w1", "w2")
	fixedClock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	signer := NewRegistrySigner(reg, fixedClock)
	sel := NewSelector(pool, signer)

	attrs, err := sel.SelectAndAttest(context.Background(), "seed", 1, []byte("data"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	verifier := NewVerifier(reg, fixedClock)
	ok, err := verifier.VerifyAttribution(attrs[0].WitnessID, []byte("data"), attrs[0].Signature)
	if err != nil || !ok {
		t.Fatalf("expected valid attestation, ok=%v err=%v", ok, err)
	}
}

func TestDetectAnomaliesFlagsConcentration(t *testing.T) {
	selections := [][]string{
		{"w1", "w2"}, {"w1", "w3"}, {"w1", "w4"}, {"w2", "w3"}, {"w1", "w3"},
	}
	report := DetectAnomalies(selections, 4, 3, 3)
	found := false
	for _, w := range report.ConcentrationWarnings {
		if w == "w1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected w1 to be flagged for concentration, got %+v", report.ConcentrationWarnings)
	}
}

func TestDetectAnomaliesFlagsPoolBelowMinimum(t *testing.T) {
	report := DetectAnomalies(nil, 2, 5, 3)
	if !report.PoolBelowMinimum {
		t.Fatal("expected pool-below-minimum breach")
	}
}
