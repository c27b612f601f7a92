// Copyright 2025 Certen Protocol

package eventstore

import (
	"context"
	"testing"
	"time"
)

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, ownerID string, at time.Time, content []byte) ([]byte, error) {
	return []byte("sig:" + ownerID), nil
}
func (fakeSigner) Mode() ModeWatermark { return WatermarkDevStub }

type fakeWitness struct{ n int }

func (f fakeWitness) SelectAndAttest(ctx context.Context, seed string, minCount int, content []byte) ([]WitnessAttribution, error) {
	out := make([]WitnessAttribution, 0, f.n)
	for i := 0; i < f.n; i++ {
		out = append(out, WitnessAttribution{WitnessID: seed, Signature: []byte("w")})
	}
	return out, nil
}

func newTestWriter(t *testing.T) (*Writer, *Store, *HaltManager) {
	t.Helper()
	store := NewStore(NewMemoryKV())
	halt := NewHaltManager(NewMemoryKV(), NewMemoryKV())
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWriter(store, halt, fakeSigner{}, fakeWitness{n: 1}, func() time.Time { return fixed }, WriterConfig{WitnessFloor: 1})
	return w, store, halt
}

func TestAppendFirstEventChainsToGenesis(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ev, err := w.Append(context.Background(), MotionProposed, map[string]string{"motion": "m1"}, "archon-1", "archon-1")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ev.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", ev.Sequence)
	}
	if ev.PrevHash != GenesisHash {
		t.Fatalf("expected prev_hash to be genesis, got %s", ev.PrevHash)
	}
}

func TestAppendRejectsUnknownEventType(t *testing.T) {
	w, _, _ := newTestWriter(t)
	_, err := w.Append(context.Background(), EventType("NotARealType"), nil, "a", "a")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestAppendChainsSequentially(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()
	first, err := w.Append(ctx, MotionProposed, map[string]string{"motion": "m1"}, "a", "a")
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	second, err := w.Append(ctx, StatementMade, map[string]string{"text": "hello"}, "a", "a")
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if second.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", second.Sequence)
	}
	if second.PrevHash != first.ContentHash {
		t.Fatalf("prev_hash %s does not chain to first content_hash %s", second.PrevHash, first.ContentHash)
	}
}

func TestHaltBlocksNonAllowlistedEvents(t *testing.T) {
	w, _, halt := newTestWriter(t)
	ctx := context.Background()
	if _, err := w.Append(ctx, HaltTriggered, map[string]string{"reason": "integrity_violation", "triggered_by": "keeper-1"}, "keeper-1", "keeper-1"); err != nil {
		t.Fatalf("trigger halt: %v", err)
	}
	halted, err := halt.IsHalted()
	if err != nil || !halted {
		t.Fatalf("expected halted=true, got %v err=%v", halted, err)
	}
	if _, err := w.Append(ctx, MotionProposed, map[string]string{"motion": "m2"}, "a", "a"); err == nil {
		t.Fatal("expected halt violation for non-allowlisted event type")
	}
	if _, err := w.Append(ctx, BreachDeclared, map[string]string{"reason": "x"}, "keeper-1", "keeper-1"); err != nil {
		t.Fatalf("expected BreachDeclared to be permitted during halt: %v", err)
	}
}

func TestHaltClearedEndsHalt(t *testing.T) {
	w, _, halt := newTestWriter(t)
	ctx := context.Background()
	if _, err := w.Append(ctx, HaltTriggered, map[string]string{"reason": "r", "triggered_by": "k"}, "k", "k"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if _, err := w.Append(ctx, HaltCleared, map[string]string{}, "k", "k"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	halted, err := halt.IsHalted()
	if err != nil || halted {
		t.Fatalf("expected halted=false after clear, got %v err=%v", halted, err)
	}
	inQuiet, err := halt.InQuietPeriod(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || !inQuiet {
		t.Fatalf("expected to be in quiet period immediately after clear, got %v err=%v", inQuiet, err)
	}
}

func TestCessationBlocksAllFurtherAppends(t *testing.T) {
	w, store, _ := newTestWriter(t)
	cm := NewCessationManager(w)
	ctx := context.Background()
	if _, _, err := cm.Execute(ctx, "shutdown", "final artifact", "keeper-1", "keeper-1"); err != nil {
		t.Fatalf("execute cessation: %v", err)
	}
	ceased, err := store.CessationExecuted()
	if err != nil || !ceased {
		t.Fatalf("expected cessation flag set, got %v err=%v", ceased, err)
	}
	if _, err := w.Append(ctx, BreachDeclared, map[string]string{}, "keeper-1", "keeper-1"); err == nil {
		t.Fatal("expected cessation to block even allowlisted events")
	}
}

func TestVerifierDetectsHashMismatch(t *testing.T) {
	w, store, _ := newTestWriter(t)
	ctx := context.Background()
	if _, err := w.Append(ctx, MotionProposed, map[string]string{"motion": "m1"}, "a", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}

	ev, err := store.GetEvent(1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	ev.ContentHash = "tampered"
	if err := store.commit(ev); err != nil {
		t.Fatalf("tamper commit: %v", err)
	}

	v := NewVerifier(store, nil, nil)
	report, err := v.Verify(ctx, 1, 1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.OK() {
		t.Fatal("expected tampered chain to fail verification")
	}
}

// TestVerifierDetectsTamperedModeWatermark guards I10/RT-1: mode_watermark
// must be inside the hashed-and-signed content, not stamped on afterward, so
// flipping a DEV-STUB event to PRODUCTION post-hoc is detectable.
func TestVerifierDetectsTamperedModeWatermark(t *testing.T) {
	w, store, _ := newTestWriter(t)
	ctx := context.Background()
	if _, err := w.Append(ctx, MotionProposed, map[string]string{"motion": "m1"}, "a", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}

	ev, err := store.GetEvent(1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.ModeWatermark != WatermarkDevStub {
		t.Fatalf("expected DEV-STUB watermark from fakeSigner, got %s", ev.ModeWatermark)
	}
	ev.ModeWatermark = WatermarkProduction
	if err := store.commit(ev); err != nil {
		t.Fatalf("tamper commit: %v", err)
	}

	v := NewVerifier(store, nil, nil)
	report, err := v.Verify(ctx, 1, 1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.OK() {
		t.Fatal("expected a flipped mode_watermark to break content_hash verification")
	}
}

func TestVerifierCleanChainPasses(t *testing.T) {
	w, store, _ := newTestWriter(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := w.Append(ctx, StatementMade, map[string]string{"text": "x"}, "a", "a"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	v := NewVerifier(store, nil, nil)
	report, err := v.Verify(ctx, 1, 3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean chain, findings: %+v", report.Findings)
	}
}
