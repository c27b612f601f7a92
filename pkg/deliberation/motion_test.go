// Copyright 2025 Certen Protocol

package deliberation

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

func TestParseOptimisticVote(t *testing.T) {
	cases := map[string]VoteChoice{
		"I vote aye on this motion":         VoteAye,
		"Yes, I support this":               VoteAye,
		"I am against this, vote nay":       VoteNay,
		"I must abstain from this decision": VoteAbstain,
		"mumbling unrelated text":           VoteAbstain,
		"aye but also nay, contradictory":   VoteAbstain,
	}
	for text, want := range cases {
		if got := ParseOptimisticVote(text); got != want {
			t.Errorf("ParseOptimisticVote(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestMotionLifecycleRatify(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewEngine(&fakeAppender{}, func() time.Time { return fixed })
	ctx := context.Background()

	if _, err := eng.Propose(ctx, "m1", "Title", "Text", MotionPolicy, "proposer-1"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := eng.RecordStatement(ctx, "m1", 1, "archon-1", "statement text"); err != nil {
		t.Fatalf("statement: %v", err)
	}
	if err := eng.OpenVoting("m1"); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	if _, err := eng.CaptureVote(ctx, "v1", "m1", "archon-1", "I vote aye"); err != nil {
		t.Fatalf("vote 1: %v", err)
	}
	if _, err := eng.CaptureVote(ctx, "v2", "m1", "archon-2", "I vote nay"); err != nil {
		t.Fatalf("vote 2: %v", err)
	}

	tally := eng.Tally("m1")
	if !tally.Valid() {
		t.Fatalf("expected valid tally, got %+v", tally)
	}
	if tally.Ayes != 1 || tally.Nays != 1 {
		t.Fatalf("unexpected tally %+v", tally)
	}

	if err := eng.Ratify(ctx, "m1", "keeper-1", tally); err != nil {
		t.Fatalf("ratify: %v", err)
	}
	m, ok := eng.Get("m1")
	if !ok || m.Status != StatusRatified {
		t.Fatalf("expected status RATIFIED, got %+v ok=%v", m, ok)
	}
}

func TestCaptureVoteRejectedBeforeVotingOpen(t *testing.T) {
	eng := NewEngine(&fakeAppender{}, nil)
	ctx := context.Background()
	if _, err := eng.Propose(ctx, "m1", "t", "x", MotionOpen, "p1"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := eng.CaptureVote(ctx, "v1", "m1", "archon-1", "aye"); err == nil {
		t.Fatal("expected vote capture to fail before voting opened")
	}
}

func TestWithdrawBlocksAfterTerminalStatus(t *testing.T) {
	eng := NewEngine(&fakeAppender{}, nil)
	ctx := context.Background()
	eng.Propose(ctx, "m1", "t", "x", MotionOpen, "p1")
	eng.OpenVoting("m1")
	eng.Ratify(ctx, "m1", "keeper-1", Tally{})
	if err := eng.Withdraw("m1"); err == nil {
		t.Fatal("expected withdraw to fail after ratification")
	}
}
