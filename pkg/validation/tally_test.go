// Copyright 2025 Certen Protocol

package validation

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
)

type tallyFakeSigner struct{}

func (tallyFakeSigner) Sign(ctx context.Context, ownerID string, at time.Time, content []byte) ([]byte, error) {
	return []byte("sig:" + ownerID), nil
}
func (tallyFakeSigner) Mode() eventstore.ModeWatermark { return eventstore.WatermarkDevStub }

type tallyFakeWitness struct{}

func (tallyFakeWitness) SelectAndAttest(ctx context.Context, seed string, minCount int, content []byte) ([]eventstore.WitnessAttribution, error) {
	return []eventstore.WitnessAttribution{{WitnessID: "w1", Signature: []byte("sig")}}, nil
}

func newTallyTestWriter(t *testing.T) (*eventstore.Writer, *eventstore.Store) {
	t.Helper()
	store := eventstore.NewStore(eventstore.NewMemoryKV())
	halt := eventstore.NewHaltManager(eventstore.NewMemoryKV(), eventstore.NewMemoryKV())
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	w := eventstore.NewWriter(store, halt, tallyFakeSigner{}, tallyFakeWitness{}, clock, eventstore.WriterConfig{WitnessFloor: 1})
	return w, store
}

func TestEventTallyReflectsNoOverrides(t *testing.T) {
	writer, store := newTallyTestWriter(t)
	ctx := context.Background()

	votes := []struct {
		id, archon string
		choice     deliberation.VoteChoice
	}{
		{"v1", "a1", deliberation.VoteAye},
		{"v2", "a2", deliberation.VoteAye},
		{"v3", "a3", deliberation.VoteAbstain},
	}
	for _, v := range votes {
		if _, err := writer.Append(ctx, eventstore.VoteCast, deliberation.VoteCastPayload{
			VoteID: v.id, MotionID: "m1", ArchonID: v.archon, OptimisticChoice: v.choice, RawText: string(v.choice),
		}, v.archon, v.archon); err != nil {
			t.Fatalf("append vote %s: %v", v.id, err)
		}
	}

	et := &EventTally{Store: store}
	tally, err := et.Tally(ctx, "m1")
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally.Ayes != 2 || tally.Abstains != 1 || tally.TotalVotes != 3 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	if err := et.CheckP6(ctx, "m1"); err != nil {
		t.Fatalf("CheckP6: %v", err)
	}
}

func TestEventTallyAppliesOverride(t *testing.T) {
	writer, store := newTallyTestWriter(t)
	ctx := context.Background()

	if _, err := writer.Append(ctx, eventstore.VoteCast, deliberation.VoteCastPayload{
		VoteID: "v1", MotionID: "m1", ArchonID: "a1", OptimisticChoice: deliberation.VoteAye, RawText: "aye",
	}, "a1", "a1"); err != nil {
		t.Fatalf("append vote: %v", err)
	}
	if _, err := writer.Append(ctx, eventstore.VoteOverride, VoteOverridePayload{
		VoteID: "v1", MotionID: "m1", OldChoice: deliberation.VoteAye, NewChoice: deliberation.VoteNay,
	}, RoleWitness, RoleWitness); err != nil {
		t.Fatalf("append override: %v", err)
	}

	et := &EventTally{Store: store}
	tally, err := et.Tally(ctx, "m1")
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally.Ayes != 0 || tally.Nays != 1 || tally.TotalVotes != 1 {
		t.Fatalf("expected override to flip choice to nay, got %+v", tally)
	}
}

func TestEventTallyIgnoresOtherMotions(t *testing.T) {
	writer, store := newTallyTestWriter(t)
	ctx := context.Background()

	for _, m := range []string{"m1", "m2"} {
		if _, err := writer.Append(ctx, eventstore.VoteCast, deliberation.VoteCastPayload{
			VoteID: "v-" + m, MotionID: m, ArchonID: "a1", OptimisticChoice: deliberation.VoteAye, RawText: "aye",
		}, "a1", "a1"); err != nil {
			t.Fatalf("append vote for %s: %v", m, err)
		}
	}

	et := &EventTally{Store: store}
	tally, err := et.Tally(ctx, "m1")
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally.TotalVotes != 1 {
		t.Fatalf("expected only m1's vote counted, got %+v", tally)
	}
}
