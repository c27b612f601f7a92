// Copyright 2025 Certen Protocol

package signing

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

type fakeAppender struct{ seq int64 }

func (f *fakeAppender) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	f.seq++
	return &eventstore.Event{Sequence: f.seq, EventType: eventType, AgentID: agentID}, nil
}

func TestKeyManagerRegisterThenSignVerify(t *testing.T) {
	reg := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	km := NewKeyManager(reg, &fakeAppender{}, func() time.Time { return fixed })

	rec, err := km.Register(context.Background(), "archon-1", "archon-1", "system")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.OwnerID != "archon-1" {
		t.Fatalf("unexpected owner %s", rec.OwnerID)
	}

	signer := NewEd25519Signer(reg, true)
	content := []byte("hello")
	sig, err := signer.Sign(context.Background(), "archon-1", fixed, content)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := signer.VerifyAt("archon-1", fixed, content, sig)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, ok=%v err=%v", ok, err)
	}
}

func TestRotatePreservesOverlapWindow(t *testing.T) {
	reg := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }
	km := NewKeyManager(reg, &fakeAppender{}, clock)

	first, err := km.Register(context.Background(), "keeper-1", "keeper-1", "system")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := km.Rotate(context.Background(), "keeper-1", "keeper-1", "system")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.KeyID == first.KeyID {
		t.Fatal("rotate should produce a new key id")
	}

	// both keys must be valid during the overlap window
	oldRec, err := reg.GetActiveAt("keeper-1", fixed)
	if err != nil {
		t.Fatalf("expected old key still valid at rotation instant: %v", err)
	}
	if oldRec.KeyID != first.KeyID && oldRec.KeyID != second.KeyID {
		t.Fatalf("unexpected active key id %s", oldRec.KeyID)
	}
	for _, rec := range reg.List("keeper-1") {
		if rec.KeyID == first.KeyID && !rec.ActiveUntil.Equal(fixed.Add(30*24*time.Hour)) {
			t.Fatalf("expected old key valid until %s, got %s", fixed.Add(30*24*time.Hour), rec.ActiveUntil)
		}
	}

	past30Days := fixed.Add(31 * 24 * time.Hour)
	late, err := reg.GetActiveAt("keeper-1", past30Days)
	if err != nil {
		t.Fatalf("expected new key active after overlap: %v", err)
	}
	if late.KeyID != second.KeyID {
		t.Fatalf("expected new key %s active after overlap, got %s", second.KeyID, late.KeyID)
	}
}

func TestEmergencyRevokeBypassesOverlap(t *testing.T) {
	reg := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	km := NewKeyManager(reg, &fakeAppender{}, func() time.Time { return fixed })

	rec, err := km.Register(context.Background(), "keeper-1", "keeper-1", "system")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := km.EmergencyRevoke(context.Background(), "keeper-1", rec.KeyID, "compromise", "keeper-1", "system"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := reg.GetActiveAt("keeper-1", fixed.Add(time.Second)); err == nil {
		t.Fatal("expected no active key after immediate revoke")
	}
}

func TestCeremonyRequiresWitnessFloor(t *testing.T) {
	cm := NewCeremonyManager(false, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	if _, err := cm.Start("cer-1", "keeper-1", 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := cm.Approve("keeper-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := cm.Execute("keeper-1"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := cm.Complete("keeper-1"); err != ErrCeremonyWitnessFloor {
		t.Fatalf("expected witness floor error, got %v", err)
	}
	for _, w := range []string{"w1", "w2", "w3"} {
		if err := cm.AttestWitness("keeper-1", w, true); err != nil {
			t.Fatalf("attest %s: %v", w, err)
		}
	}
	c, err := cm.Complete("keeper-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.State != CeremonyCompleted {
		t.Fatalf("expected COMPLETED, got %s", c.State)
	}
}

func TestCeremonyRejectsSecondActiveCeremony(t *testing.T) {
	cm := NewCeremonyManager(false, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	if _, err := cm.Start("cer-1", "keeper-1", 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cm.Start("cer-2", "keeper-1", 1); err != ErrCeremonyAlreadyActive {
		t.Fatalf("expected ErrCeremonyAlreadyActive, got %v", err)
	}
}

func TestCeremonyUnregisteredWitnessRequiresBootstrap(t *testing.T) {
	cm := NewCeremonyManager(false, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	cm.Start("cer-1", "keeper-1", 1)
	cm.Approve("keeper-1")
	cm.Execute("keeper-1")
	if err := cm.AttestWitness("keeper-1", "unregistered-1", false); err == nil {
		t.Fatal("expected unregistered witness to be rejected with bootstrap disabled")
	}
}
