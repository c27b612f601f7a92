// Copyright 2025 Certen Protocol
//
// Stage 1 — RFP Generation (§4.8): 11 Presidents, each invoked
// independently and checkpointed per-portfolio, synthesized into one
// ImplementationDossier.

package executive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

const stageRFP = "executive:rfp"

// rfpPrompt is the fixed instruction every President receives; the
// section markers are what the parser below splits on.
func rfpPrompt(mandateID string, p registry.Portfolio) string {
	return fmt.Sprintf(
		"Mandate %s. As President of portfolio %q, state your requirements, "+
			"constraints, and deliverables using sections:\n"+
			"### FR\n- ...\n### NFR\n- ...\n### C\n- ...\n### D\n- ...\n### CRITERIA\n- ...",
		mandateID, p.Name)
}

// RFPGenerator drives Stage 1 over a Registry's Portfolios.
type RFPGenerator struct {
	Store    *checkpoint.Store
	Counters *checkpoint.CounterTracker
	Port     llmport.TextCompletionPort
	Backoff  checkpoint.BackoffConfig
}

// NewRFPGenerator builds a Stage-1 generator.
func NewRFPGenerator(store *checkpoint.Store, counters *checkpoint.CounterTracker, port llmport.TextCompletionPort, backoff checkpoint.BackoffConfig) *RFPGenerator {
	return &RFPGenerator{Store: store, Counters: counters, Port: port, Backoff: backoff}
}

// Generate runs all 11 Presidents (resuming from any existing checkpoints)
// and synthesizes the ImplementationDossier.
func (g *RFPGenerator) Generate(ctx context.Context, mandateID string, portfolios []registry.Portfolio) (*ImplementationDossier, error) {
	gen := newGenerator(stageRFP, g.Store, g.Backoff)

	units := make([]checkpoint.Unit, 0, len(portfolios))
	for _, p := range portfolios {
		p := p
		units = append(units, checkpoint.Unit{
			ID: "president-" + p.ID,
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := g.Port.Complete(ctx, llmport.CompletionRequest{
					Prompt:     rfpPrompt(mandateID, p),
					SystemRole: "President-" + p.ID,
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
			Lint: func(payload json.RawMessage) error {
				var text string
				if err := json.Unmarshal(payload, &text); err != nil {
					return err
				}
				return lintRFP(text)
			},
		})
	}

	records, runErr := gen.Run(ctx, units)

	contributions := make(map[string]PresidentContribution, len(portfolios))
	missing := map[string]bool{}
	for _, p := range portfolios {
		missing[p.ID] = true
	}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		portfolioID := strings.TrimPrefix(rec.UnitID, "president-")
		var text string
		if err := json.Unmarshal(rec.Payload, &text); err != nil {
			continue
		}
		contributions[portfolioID] = parseContribution(g.Counters, portfolioID, text)
		delete(missing, portfolioID)
	}

	dossier := synthesizeDossier(mandateID, portfolios, contributions, missing)
	if runErr != nil && dossier.Status == DossierFinal {
		// a unit exhausted retries but every portfolio nonetheless produced a
		// usable record from an earlier attempt; surface nothing extra.
		return dossier, nil
	}
	return dossier, nil
}

func synthesizeDossier(mandateID string, portfolios []registry.Portfolio, contributions map[string]PresidentContribution, missing map[string]bool) *ImplementationDossier {
	d := &ImplementationDossier{
		MandateID:   mandateID,
		GeneratedAt: time.Now().UTC(),
	}

	for _, p := range portfolios {
		c, ok := contributions[p.ID]
		if !ok {
			continue
		}
		d.FunctionalReqs = append(d.FunctionalReqs, c.FunctionalReqs...)
		d.NonFunctionalReqs = append(d.NonFunctionalReqs, c.NonFunctionalReqs...)
		d.Constraints = append(d.Constraints, c.Constraints...)
		d.Deliverables = append(d.Deliverables, c.Deliverables...)
		d.EvaluationCriteria = append(d.EvaluationCriteria, c.EvaluationCriteria...)
	}

	if len(missing) == 0 {
		d.Status = DossierFinal
		return d
	}
	d.Status = DossierBlocked
	for id := range missing {
		d.MissingPortfolios = append(d.MissingPortfolios, id)
		d.OpenQuestions = append(d.OpenQuestions, fmt.Sprintf("portfolio %s did not contribute", id))
	}
	return d
}

// parseContribution splits a President's raw output into its sections and
// allocates the dossier's global/portfolio-scoped identifiers.
func parseContribution(counters *checkpoint.CounterTracker, portfolioID, text string) PresidentContribution {
	sections := splitSections(text)
	c := PresidentContribution{PortfolioID: portfolioID}
	for _, line := range sections["FR"] {
		c.FunctionalReqs = append(c.FunctionalReqs, Requirement{ID: counters.Next("FR", portfolioID), PortfolioID: portfolioID, Text: line})
	}
	for _, line := range sections["NFR"] {
		c.NonFunctionalReqs = append(c.NonFunctionalReqs, Requirement{ID: counters.Next("NFR", portfolioID), PortfolioID: portfolioID, Text: line})
	}
	for _, line := range sections["C"] {
		c.Constraints = append(c.Constraints, Constraint{ID: counters.Next("C", ""), Text: line})
	}
	for _, line := range sections["D"] {
		c.Deliverables = append(c.Deliverables, Deliverable{ID: counters.Next("D", ""), Text: line})
	}
	c.EvaluationCriteria = sections["CRITERIA"]
	return c
}

// splitSections parses the "### HEADER\n- bullet\n- bullet" convention
// used across every agent prompt in this package.
func splitSections(text string) map[string][]string {
	out := map[string][]string{}
	var current string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "### ") {
			current = strings.TrimSpace(strings.TrimPrefix(line, "### "))
			continue
		}
		if current == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			item := strings.TrimSpace(strings.TrimPrefix(line, "- "))
			if item != "" {
				out[current] = append(out[current], item)
			}
		}
	}
	return out
}
