// Copyright 2025 Certen Protocol

package decomposition

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

func testBackoff() checkpoint.BackoffConfig {
	return checkpoint.BackoffConfig{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}
}

func newTestStore() *checkpoint.Store {
	return checkpoint.NewStore(eventstore.NewMemoryKV(), func() time.Time { return time.Unix(0, 0) })
}

// recordingEvents captures Append calls so tests can assert which event
// types were emitted without standing up a full eventstore.Writer.
type recordingEvents struct {
	types []eventstore.EventType
}

func (r *recordingEvents) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	r.types = append(r.types, eventType)
	return &eventstore.Event{EventType: eventType}, nil
}

func (r *recordingEvents) has(t eventstore.EventType) bool {
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

// wellFormedDraftResponder folds the requesting Earl's role into the
// outcome text so that distinct Earls never produce byte-identical drafts
// (each Earl genuinely proposes a different angle on the same tactic).
func wellFormedDraftResponder(req llmport.CompletionRequest) llmport.CompletionResponse {
	return llmport.CompletionResponse{
		FinishedOK: true,
		Text: "### DESCRIPTION\n- " + req.SystemRole + ": wire the retry queue\n" +
			"### OUTCOMES\n- " + req.SystemRole + ": queue drains under load\n- " + req.SystemRole + ": alerts fire on backlog\n" +
			"### TAGS\n- messaging\n### EFFORT\n- 6\n### DELIVERABLE\n- D-001",
	}
}

var earlIDs = []string{"earl-01", "earl-02", "earl-03", "earl-04", "earl-05", "earl-06"}

func TestDecomposeAllEarlsSucceed(t *testing.T) {
	port := llmport.NewSimulatedPort(wellFormedDraftResponder)
	events := &recordingEvents{}
	dec := NewDecomposer(newTestStore(), port, testBackoff(), events)

	result, err := dec.Decompose(context.Background(), "T-NET-001", "D-001", "earl-01", earlIDs)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if result.Status != TacticOK {
		t.Fatalf("expected OK status, got %s (failed earls: %v)", result.Status, result.FailedEarls)
	}
	if len(result.Drafts) != len(earlIDs) {
		t.Fatalf("expected %d drafts, got %d", len(earlIDs), len(result.Drafts))
	}
	if len(result.FailedEarls) != 0 {
		t.Fatalf("expected no failed earls, got %v", result.FailedEarls)
	}
	// Description cites no FR-/NFR- id despite naming a deliverable, so the
	// soft lint should flag every draft.
	if !events.has(eventstore.ProvenanceWeakMapping) {
		t.Fatal("expected ProvenanceWeakMapping event for weakly-mapped drafts")
	}
	if events.has(eventstore.AmbiguousTactic) {
		t.Fatal("did not expect AmbiguousTactic when earls succeeded")
	}
}

func TestDecomposeOneEarlFailsOthersProceed(t *testing.T) {
	port := llmport.NewSimulatedPort(wellFormedDraftResponder)
	port.Register("Earl-earl-03", func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{FinishedOK: true, Text: "### DESCRIPTION\n- too thin"}
	})
	events := &recordingEvents{}
	dec := NewDecomposer(newTestStore(), port, testBackoff(), events)

	result, err := dec.Decompose(context.Background(), "T-NET-002", "D-001", "earl-01", earlIDs)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if result.Status != TacticOK {
		t.Fatalf("expected OK status with partial drafts, got %s", result.Status)
	}
	if len(result.Drafts) != len(earlIDs)-1 {
		t.Fatalf("expected %d drafts, got %d", len(earlIDs)-1, len(result.Drafts))
	}
	if len(result.FailedEarls) != 1 || result.FailedEarls[0] != "earl-03" {
		t.Fatalf("expected earl-03 recorded as failed, got %v", result.FailedEarls)
	}
}

func TestDecomposeAllEarlsFailMarksAmbiguous(t *testing.T) {
	badResponder := func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{FinishedOK: true, Text: "### DESCRIPTION\n- too thin"}
	}
	port := llmport.NewSimulatedPort(badResponder)
	events := &recordingEvents{}
	dec := NewDecomposer(newTestStore(), port, testBackoff(), events)

	result, err := dec.Decompose(context.Background(), "T-NET-003", "D-001", "earl-01", earlIDs)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if result.Status != TacticAmbiguous {
		t.Fatalf("expected AMBIGUOUS status, got %s", result.Status)
	}
	if len(result.FailedEarls) != len(earlIDs) {
		t.Fatalf("expected all earls failed, got %v", result.FailedEarls)
	}
	if !events.has(eventstore.AmbiguousTactic) {
		t.Fatal("expected AmbiguousTactic event")
	}
}

func TestDecomposeDuplicatePatternTriggersOverlapReview(t *testing.T) {
	identicalResponder := func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{
			FinishedOK: true,
			Text: "### DESCRIPTION\n- wire the retry queue\n" +
				"### OUTCOMES\n- queue drains under load\n- alerts fire on backlog\n" +
				"### TAGS\n- messaging\n### EFFORT\n- 6\n### DELIVERABLE\n- D-001",
		}
	}
	port := llmport.NewSimulatedPort(identicalResponder)
	events := &recordingEvents{}
	dec := NewDecomposer(newTestStore(), port, testBackoff(), events)

	twoEarls := []string{"earl-01", "earl-02"}
	result, err := dec.Decompose(context.Background(), "T-NET-004", "D-001", "earl-01", twoEarls)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if result.Status != TacticOverlapReview {
		t.Fatalf("expected OVERLAP_REVIEW when both earls submit identical coverage, got %s", result.Status)
	}
}

func TestDecomposeExceedsExplosionCapTriggersReviewRequired(t *testing.T) {
	port := llmport.NewSimulatedPort(nil)
	// Register distinct, non-overlapping responders per Earl so the cap
	// check (not the overlap check) is what fires.
	ids := []string{"earl-01", "earl-02", "earl-03"}
	for _, id := range ids {
		id := id
		port.Register("Earl-"+id, func(req llmport.CompletionRequest) llmport.CompletionResponse {
			return llmport.CompletionResponse{
				FinishedOK: true,
				Text: "### DESCRIPTION\n- " + id + " distinct task\n" +
					"### OUTCOMES\n- " + id + " outcome a\n- " + id + " outcome b\n" +
					"### TAGS\n- ops\n### EFFORT\n- 3",
			}
		})
	}
	events := &recordingEvents{}
	dec := NewDecomposer(newTestStore(), port, testBackoff(), events)
	dec.ExplosionCap = 2

	result, err := dec.Decompose(context.Background(), "T-NET-005", "", "earl-01", ids)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if result.Status != TacticReviewRequired {
		t.Fatalf("expected REVIEW_REQUIRED past the explosion cap, got %s", result.Status)
	}
}

func TestHardLintRejectsNonLegibleOutcome(t *testing.T) {
	d := TaskDraft{
		ParentTacticID:   "T-1",
		Description:      "do the thing",
		ExpectedOutcomes: []string{"tbd", "also tbd"},
		CapabilityTags:   []string{"ops"},
		EffortHours:      1,
	}
	if err := lintHard(d); err == nil {
		t.Fatal("expected non-legible outcome to be rejected")
	}
}

func TestDecomposeAllRoutesFacilitatorByDomain(t *testing.T) {
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	port := llmport.NewSimulatedPort(wellFormedDraftResponder)
	dec := NewDecomposer(newTestStore(), port, testBackoff(), nil)

	tactics := []TacticInput{
		{ID: "T-NET-010", DeliverableID: "D-001", Domain: "infrastructure"},
		{ID: "T-NET-011", DeliverableID: "D-002", Domain: "nonexistent-domain"},
	}
	results, err := dec.DecomposeAll(context.Background(), tactics, reg)
	if err != nil {
		t.Fatalf("DecomposeAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].FacilitatorEarl != reg.EarlForDomain("infrastructure") {
		t.Fatalf("expected facilitator routed by domain, got %s", results[0].FacilitatorEarl)
	}
	if results[1].FacilitatorEarl != reg.EarlRouting.DefaultEarlID {
		t.Fatalf("expected default facilitator fallback, got %s", results[1].FacilitatorEarl)
	}
}

func TestSoftLintWeakMappingDetectsMissingRequirementID(t *testing.T) {
	weak := TaskDraft{DeliverableID: "D-001", Description: "ship it", ExpectedOutcomes: []string{"a", "b"}}
	if !lintSoftWeakMapping(weak) {
		t.Fatal("expected weak mapping to be flagged")
	}
	strong := TaskDraft{DeliverableID: "D-001", Description: "covers FR-infrastructure-001", ExpectedOutcomes: []string{"a", "b"}}
	if lintSoftWeakMapping(strong) {
		t.Fatal("did not expect weak mapping when a requirement id is present")
	}
}
