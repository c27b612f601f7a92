// Copyright 2025 Certen Protocol

package validation

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/llmport"
)

type fakeAppender struct {
	seq    int64
	events []eventstore.EventType
}

func (f *fakeAppender) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	f.seq++
	f.events = append(f.events, eventType)
	return &eventstore.Event{Sequence: f.seq, EventType: eventType, AgentID: agentID}, nil
}

type noopTallyChecker struct{ called int }

func (n *noopTallyChecker) CheckP6(ctx context.Context, motionID string) error {
	n.called++
	return nil
}

func buildHarness(t *testing.T, agreeChoice deliberation.VoteChoice) (*Aggregator, *BusDispatcher, *fakeAppender) {
	t.Helper()
	bus := NewBus(4)
	appender := &fakeAppender{}
	tally := &noopTallyChecker{}

	agg := NewAggregator(appender, tally, nil, 3, nil)

	port := llmport.NewSimulatedPort(nil)
	port.Register(RoleSecretaryText, func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{Text: string(agreeChoice), FinishedOK: true}
	})
	port.Register(RoleSecretaryJSON, func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{Text: string(agreeChoice), FinishedOK: true}
	})
	port.Register(RoleWitness, func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{Text: string(agreeChoice), FinishedOK: true}
	})

	workers := map[string]*Worker{
		RoleSecretaryText: NewWorker(RoleSecretaryText, port, bus, nil),
		RoleSecretaryJSON: NewWorker(RoleSecretaryJSON, port, bus, nil),
		RoleWitness:       NewWorker(RoleWitness, port, bus, nil),
	}
	breaker := NewCircuitBreaker(1, time.Minute, time.Hour, nil)
	breaker.RecordFailure() // force the breaker open so Dispatch takes the deterministic synchronous fallback path
	disp := NewBusDispatcher(bus, breaker, workers, agg)
	agg.SetDispatcher(disp)
	return agg, disp, appender
}

func TestAggregatorAgreementValidatesWithoutOverride(t *testing.T) {
	agg, disp, appender := buildHarness(t, deliberation.VoteAye)
	ctx := context.Background()

	if err := disp.Dispatch(ctx, PendingValidation{
		VoteID: "v1", MotionID: "m1", ArchonID: "a1", RawText: "I vote aye", OptimisticChoice: deliberation.VoteAye,
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	outcome, ok := agg.Outcome("v1")
	if !ok || outcome != OutcomeValidated {
		t.Fatalf("expected validated outcome, got %v ok=%v", outcome, ok)
	}
	for _, e := range appender.events {
		if e == eventstore.VoteOverride {
			t.Fatal("expected no override when validated choice matches optimistic")
		}
	}
}

func TestAggregatorOverrideWhenChoiceDiffers(t *testing.T) {
	agg, disp, appender := buildHarness(t, deliberation.VoteNay)
	ctx := context.Background()

	if err := disp.Dispatch(ctx, PendingValidation{
		VoteID: "v1", MotionID: "m1", ArchonID: "a1", RawText: "unclear text", OptimisticChoice: deliberation.VoteAye,
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	outcome, ok := agg.Outcome("v1")
	if !ok || outcome != OutcomeValidated {
		t.Fatalf("expected validated outcome, got %v ok=%v", outcome, ok)
	}
	found := false
	for _, e := range appender.events {
		if e == eventstore.VoteOverride {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VoteOverride event when validated choice differs from optimistic")
	}
}

func TestReconciliationGateTimesOutOnPendingVotes(t *testing.T) {
	appender := &fakeAppender{}
	agg := NewAggregator(appender, nil, nil, 3, nil)
	agg.RegisterPending("v1", "m1", "text", deliberation.VoteAye)

	gate := NewReconciliationGate(agg, appender, 5*time.Millisecond)
	err := gate.AwaitAll(context.Background(), "m1", []string{"v1"}, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected reconciliation incomplete error")
	}
}

func TestReconciliationGateSucceedsWhenResolved(t *testing.T) {
	appender := &fakeAppender{}
	agg := NewAggregator(appender, nil, nil, 3, nil)
	agg.RegisterPending("v1", "m1", "text", deliberation.VoteAye)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = agg.Ingest(context.Background(), ValidationResult{VoteID: "v1", ValidatorID: RoleSecretaryText, ValidatedChoice: deliberation.VoteAye})
		_, _ = agg.Ingest(context.Background(), ValidationResult{VoteID: "v1", ValidatorID: RoleSecretaryJSON, ValidatedChoice: deliberation.VoteAye})
	}()

	gate := NewReconciliationGate(agg, appender, 5*time.Millisecond)
	if err := gate.AwaitAll(context.Background(), "m1", []string{"v1"}, 200*time.Millisecond); err != nil {
		t.Fatalf("expected reconciliation to succeed, got %v", err)
	}
}

// TestReconciliationGateWritesOneEventPerVote guards spec.md §8.4 S1's
// literal expectation of 3 ReconciliationComplete events for a 3-vote
// motion, not one event naming all three vote_ids.
func TestReconciliationGateWritesOneEventPerVote(t *testing.T) {
	appender := &fakeAppender{}
	agg := NewAggregator(appender, nil, nil, 3, nil)
	voteIDs := []string{"v1", "v2", "v3"}
	for _, id := range voteIDs {
		agg.RegisterPending(id, "m1", "text", deliberation.VoteAye)
		_, _ = agg.Ingest(context.Background(), ValidationResult{VoteID: id, ValidatorID: RoleSecretaryText, ValidatedChoice: deliberation.VoteAye})
		_, _ = agg.Ingest(context.Background(), ValidationResult{VoteID: id, ValidatorID: RoleSecretaryJSON, ValidatedChoice: deliberation.VoteAye})
	}

	gate := NewReconciliationGate(agg, appender, 5*time.Millisecond)
	if err := gate.AwaitAll(context.Background(), "m1", voteIDs, 200*time.Millisecond); err != nil {
		t.Fatalf("expected reconciliation to succeed, got %v", err)
	}

	count := 0
	for _, e := range appender.events {
		if e == eventstore.ReconciliationComplete {
			count++
		}
	}
	if count != len(voteIDs) {
		t.Fatalf("expected %d ReconciliationComplete events, got %d", len(voteIDs), count)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute, 10*time.Millisecond, nil)
	if !b.Allow() {
		t.Fatal("expected breaker to allow when closed")
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected breaker to open after threshold, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected breaker to deny while open and before reset timeout")
	}
}
