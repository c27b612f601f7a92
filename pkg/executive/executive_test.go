// Copyright 2025 Certen Protocol

package executive

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

// rfpResponder produces a well-formed Stage-1 section body so the parser
// has something to split.
func rfpResponder(req llmport.CompletionRequest) llmport.CompletionResponse {
	return llmport.CompletionResponse{
		FinishedOK: true,
		Text: "### FR\n- requirement one\n### NFR\n- perf one\n" +
			"### C\n- constraint one\n### D\n- deliverable one\n### CRITERIA\n- criterion one",
	}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return reg
}

func newTestStore() *checkpoint.Store {
	return checkpoint.NewStore(eventstore.NewMemoryKV(), func() time.Time { return time.Unix(0, 0) })
}

func TestRFPGeneratorAllPortfoliosFinal(t *testing.T) {
	reg := newTestRegistry(t)
	port := llmport.NewSimulatedPort(rfpResponder)
	gen := NewRFPGenerator(newTestStore(), checkpoint.NewCounterTracker(), port, testBackoff())
	gen.Backoff.Base = time.Millisecond

	dossier, err := gen.Generate(context.Background(), "mandate-1", reg.Portfolios)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if dossier.Status != DossierFinal {
		t.Fatalf("expected final status, got %s (missing %v)", dossier.Status, dossier.MissingPortfolios)
	}
	if len(dossier.FunctionalReqs) != len(reg.Portfolios) {
		t.Fatalf("expected %d functional reqs, got %d", len(reg.Portfolios), len(dossier.FunctionalReqs))
	}
	for i, r := range dossier.FunctionalReqs {
		if r.ID == "" {
			t.Fatalf("requirement %d missing id", i)
		}
	}
}

func TestRFPGeneratorBlocksOnMechanismLint(t *testing.T) {
	reg := newTestRegistry(t)
	port := llmport.NewSimulatedPort(nil)
	port.Register("President-security", func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{FinishedOK: true, Text: "### FR\n- use kubernetes for everything"}
	})
	for _, p := range reg.Portfolios {
		if p.ID == "security" {
			continue
		}
		port.Register("President-"+p.ID, rfpResponder)
	}

	gen := NewRFPGenerator(newTestStore(), checkpoint.NewCounterTracker(), port, testBackoff())
	dossier, err := gen.Generate(context.Background(), "mandate-1", reg.Portfolios)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if dossier.Status != DossierBlocked {
		t.Fatalf("expected blocked status, got %s", dossier.Status)
	}
	found := false
	for _, m := range dossier.MissingPortfolios {
		if m == "security" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected security listed as missing, got %v", dossier.MissingPortfolios)
	}
}

func fixedDossier(mandateID string) *ImplementationDossier {
	return &ImplementationDossier{
		MandateID:    mandateID,
		Status:       DossierFinal,
		Deliverables: []Deliverable{{ID: "D-001", Text: "ship the thing"}},
		GeneratedAt:  time.Now().UTC(),
	}
}

func proposalResponder(req llmport.CompletionRequest) llmport.CompletionResponse {
	return llmport.CompletionResponse{
		FinishedOK: true,
		Text: "### OVERVIEW\n- solid plan\n### ISSUES\n- none known\n### PHILOSOPHY\n- ship early\n" +
			"### T-\n- build the pipeline\n### R-\n- vendor lock-in\n### RR-\n- two engineers\n" +
			"### COVERAGE\n- FR-infrastructure-001 T-NET-001 0.9\n### PLAN\n- phased rollout\n" +
			"### CAPACITY\n- two sprints\n### ASSUMPTIONS\n- stable requirements\n### CONSTRAINTS\n- budget capped",
	}
}

func TestDukeProposalGeneratorAssemblesAllPhases(t *testing.T) {
	reg := newTestRegistry(t)
	port := llmport.NewSimulatedPort(proposalResponder)
	gen := NewDukeProposalGenerator(newTestStore(), checkpoint.NewCounterTracker(), port, testBackoff())

	dossier := fixedDossier("mandate-1")
	proposals, err := gen.Generate(context.Background(), "mandate-1", dossier, reg.Dukes)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(proposals) != len(reg.Dukes) {
		t.Fatalf("expected %d proposals, got %d", len(reg.Dukes), len(proposals))
	}
	for _, p := range proposals {
		if len(p.Tactics) == 0 {
			t.Fatalf("duke %s: expected at least one tactic", p.DukeID)
		}
		if p.Overview == "" {
			t.Fatalf("duke %s: expected overview", p.DukeID)
		}
		if p.ExecutiveSummary == "" {
			t.Fatalf("duke %s: expected executive summary", p.DukeID)
		}
	}
}

func TestSanityCheckConsolidationRejectsOverCollapse(t *testing.T) {
	original := "this is a reasonably long original foundation passage describing the plan in detail"
	if sanityCheckConsolidation(original, "too short") {
		t.Fatal("expected over-collapsed consolidation to fail sanity check")
	}
	if !sanityCheckConsolidation(original, original) {
		t.Fatal("expected identical text to pass sanity check")
	}
}

func scoreResponder(overall string) llmport.Responder {
	return func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{
			FinishedOK: true,
			Text: "### FEASIBILITY\n- " + overall + "\n### COMPLETENESS\n- " + overall + "\n### RISK\n- " + overall + "\n" +
				"### RESOURCE\n- " + overall + "\n### INNOVATION\n- " + overall + "\n### ALIGNMENT\n- " + overall + "\n" +
				"### OVERALL\n- " + overall + "\n### CONFIDENCE\n- 0.9\n### REASONING\n- solid\n" +
				"### STRENGTHS\n- clear plan\n### WEAKNESSES\n- tight timeline",
		}
	}
}

func TestProposalSelectorSelectsWinner(t *testing.T) {
	reg := newTestRegistry(t)
	port := llmport.NewSimulatedPort(scoreResponder("8"))
	port.Register("Novelty-Detector", func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{FinishedOK: true, Text: "### NOVELTY\n- 0.5"}
	})
	for _, p := range reg.Portfolios {
		port.Register("President-"+p.ID, func(req llmport.CompletionRequest) llmport.CompletionResponse {
			if stringsContains(req.Prompt, "Panel vote") {
				return llmport.CompletionResponse{FinishedOK: true, Text: "### VOTE\n- 8"}
			}
			return scoreResponder("8")(req)
		})
	}

	selector := NewProposalSelector(newTestStore(), port, testBackoff())
	proposals := []DukeProposal{
		{DukeID: "duke-01", MandateID: "mandate-1"},
		{DukeID: "duke-02", MandateID: "mandate-1"},
	}

	result, err := selector.Select(context.Background(), "mandate-1", 1, proposals, reg.Portfolios)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if result.Outcome != OutcomeWinnerSelected {
		t.Fatalf("expected winner selected, got %s", result.Outcome)
	}
	if result.WinnerDukeID == "" {
		t.Fatal("expected a winner duke id")
	}
}

func stringsContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestProposalSelectorNoViableProposal(t *testing.T) {
	reg := newTestRegistry(t)
	port := llmport.NewSimulatedPort(scoreResponder("2"))
	port.Register("Novelty-Detector", func(req llmport.CompletionRequest) llmport.CompletionResponse {
		return llmport.CompletionResponse{FinishedOK: true, Text: "### NOVELTY\n- 0.1"}
	})
	for _, p := range reg.Portfolios {
		port.Register("President-"+p.ID, func(req llmport.CompletionRequest) llmport.CompletionResponse {
			if stringsContains(req.Prompt, "Panel vote") {
				return llmport.CompletionResponse{FinishedOK: true, Text: "### VOTE\n- 2"}
			}
			return scoreResponder("2")(req)
		})
	}

	selector := NewProposalSelector(newTestStore(), port, testBackoff())
	proposals := []DukeProposal{{DukeID: "duke-01", MandateID: "mandate-1"}}

	result, err := selector.Select(context.Background(), "mandate-1", 1, proposals, reg.Portfolios)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if result.Outcome != OutcomeNoViableProposal {
		t.Fatalf("expected no viable proposal, got %s", result.Outcome)
	}
}

func TestAggregateScoresZScoreNormalizesHarshScorer(t *testing.T) {
	scores := []ProposalScore{
		{PresidentID: "p1", DukeID: "d1", Dimensions: DimensionScores{Feasibility: 9, Completeness: 9, RiskMitigation: 9, ResourceEfficiency: 9, Innovation: 9, Alignment: 9}},
		{PresidentID: "p1", DukeID: "d2", Dimensions: DimensionScores{Feasibility: 5, Completeness: 5, RiskMitigation: 5, ResourceEfficiency: 5, Innovation: 5, Alignment: 5}},
		{PresidentID: "p2", DukeID: "d1", Dimensions: DimensionScores{Feasibility: 6, Completeness: 6, RiskMitigation: 6, ResourceEfficiency: 6, Innovation: 6, Alignment: 6}},
		{PresidentID: "p2", DukeID: "d2", Dimensions: DimensionScores{Feasibility: 2, Completeness: 2, RiskMitigation: 2, ResourceEfficiency: 2, Innovation: 2, Alignment: 2}},
	}
	aggregated := aggregateScores(scores)
	var d1, d2 AggregatedScore
	for _, a := range aggregated {
		switch a.DukeID {
		case "d1":
			d1 = a
		case "d2":
			d2 = a
		}
	}
	if d1.FinalScore <= d2.FinalScore {
		t.Fatalf("expected d1 to outrank d2 after normalization, got d1=%v d2=%v", d1.FinalScore, d2.FinalScore)
	}
}

func TestCounterTrackerAssignsDistinctTacticIDsAcrossDeliverables(t *testing.T) {
	tracker := checkpoint.NewCounterTracker()
	first := tracker.Next("T", "NET")
	second := tracker.Next("T", "NET")
	if first == second {
		t.Fatalf("expected distinct tactic ids, got %s twice", first)
	}
}
