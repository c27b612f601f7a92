// Copyright 2025 Certen Protocol
//
// Pipeline wires the three stages into the single round-trip a ratified
// mandate drives: RFP -> proposals -> selection, looping on
// REVISION_NEEDED up to the selector's MaxRounds. This is the
// orchestrator/executor shape the pack's itsneelabh-gomind
// orchestration.Orchestrator interface models — a routing plan of
// independent steps fanned out to agents, then synthesized — adapted here
// to the specific 3-stage executive sequence rather than a generic DAG.

package executive

import (
	"context"
	"fmt"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

// Pipeline runs Stages 1-3 against one mandate.
type Pipeline struct {
	RFP       *RFPGenerator
	Proposals *DukeProposalGenerator
	Selector  *ProposalSelector
	Registry  *registry.Registry
}

// NewPipeline wires a Pipeline from a shared checkpoint store, counter
// tracker, and completion port.
func NewPipeline(reg *registry.Registry, store *checkpoint.Store, counters *checkpoint.CounterTracker, port llmport.TextCompletionPort, backoff checkpoint.BackoffConfig) *Pipeline {
	return &Pipeline{
		RFP:       NewRFPGenerator(store, counters, port, backoff),
		Proposals: NewDukeProposalGenerator(store, counters, port, backoff),
		Selector:  NewProposalSelector(store, port, backoff),
		Registry:  reg,
	}
}

// PipelineResult is the full trace of one mandate's run through the
// executive pipeline.
type PipelineResult struct {
	Dossier   *ImplementationDossier
	Proposals []DukeProposal
	Rounds    []*SelectionResult
}

// Run drives the mandate through every stage. A REVISION_NEEDED outcome
// re-runs Stage 3 selection over the same proposals, up to the selector's
// MaxRounds; proposal generation is not re-run for the handback Dukes.
func (p *Pipeline) Run(ctx context.Context, mandateID string) (*PipelineResult, error) {
	dossier, err := p.RFP.Generate(ctx, mandateID, p.Registry.Portfolios)
	if err != nil {
		return nil, fmt.Errorf("executive: stage 1: %w", err)
	}
	if dossier.Status != DossierFinal {
		return &PipelineResult{Dossier: dossier}, nil
	}

	proposals, err := p.Proposals.Generate(ctx, mandateID, dossier, p.Registry.Dukes)
	if err != nil {
		return nil, fmt.Errorf("executive: stage 2: %w", err)
	}

	result := &PipelineResult{Dossier: dossier, Proposals: proposals}
	for round := 1; round <= max(p.Selector.MaxRounds, 1); round++ {
		selection, err := p.Selector.Select(ctx, mandateID, round, proposals, p.Registry.Portfolios)
		if err != nil {
			return result, fmt.Errorf("executive: stage 3 round %d: %w", round, err)
		}
		result.Rounds = append(result.Rounds, selection)
		if selection.Outcome != OutcomeRevisionNeeded {
			break
		}
	}
	return result, nil
}
