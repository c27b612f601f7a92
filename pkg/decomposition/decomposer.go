// Copyright 2025 Certen Protocol
//
// Decomposer drives Stage 4 (§4.8): 6 Earls independently propose a
// TaskDraft against one Tactic, each checkpointed independently so a
// resume only re-runs the Earls that previously failed; a facilitator Earl
// (chosen by domain routing, see pkg/registry.EarlForDomain) then
// synthesizes the final set in pure code, mirroring Stage 3's pure
// aggregation phase rather than spending another LLM call on bookkeeping.

package decomposition

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

// TacticInput is the minimal slice of a winning Duke proposal's Tactic that
// Stage 4 needs: the tactic text itself lives in the prompt the caller
// builds, decomposition only tracks identity and domain routing.
type TacticInput struct {
	ID            string
	DeliverableID string
	Domain        string
}

const stageDecomposition = "decomposition:tactic"

// EventAppender is the narrow slice of eventstore.Writer this package
// needs, so tests can substitute a recorder.
type EventAppender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// Decomposer drives Stage 4 for one Tactic at a time.
type Decomposer struct {
	Store        *checkpoint.Store
	Port         llmport.TextCompletionPort
	Backoff      checkpoint.BackoffConfig
	ExplosionCap int // default 8
	Events       EventAppender
}

// NewDecomposer builds a Decomposer with the §4.8 default explosion cap.
func NewDecomposer(store *checkpoint.Store, port llmport.TextCompletionPort, backoff checkpoint.BackoffConfig, events EventAppender) *Decomposer {
	return &Decomposer{Store: store, Port: port, Backoff: backoff, ExplosionCap: defaultExplosionCap, Events: events}
}

// Decompose runs all 6 Earls against tacticID, tolerating partial failure,
// then synthesizes the unified TaskDraft set via facilitatorEarlID.
//
// Each Earl runs through its own single-unit Generator rather than one
// Generator over all Earls: Generator.Run halts its whole slice at the
// first unit that exhausts retries (so a resumed mandate picks up exactly
// where it stopped), which is the right behavior for a sequential stage
// but wrong here, where one Earl's exhaustion must not block the other
// five from proposing.
func (d *Decomposer) Decompose(ctx context.Context, tacticID, deliverableID, facilitatorEarlID string, earlIDs []string) (*DecompositionResult, error) {
	var drafts []TaskDraft
	var failed []string

	for _, earlID := range earlIDs {
		earlID := earlID
		unitID := "tactic-" + tacticID + "-earl-" + earlID
		unit := checkpoint.Unit{
			ID: unitID,
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := d.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Earl-" + earlID,
					Prompt: fmt.Sprintf(
						"Tactic %s. As Earl %q, propose one task using sections:\n"+
							"### DESCRIPTION\n- ...\n### OUTCOMES\n- ...\n- ...\n"+
							"### TAGS\n- ...\n### EFFORT\n- N\n### DELIVERABLE\n- %s",
						tacticID, earlID, deliverableID),
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
				return lintHard(parseDraft(tacticID, earlID, text))
			},
		}

		gen := checkpoint.NewGenerator(stageDecomposition, d.Store, d.Backoff)
		records, err := gen.Run(ctx, []checkpoint.Unit{unit})
		if err != nil || len(records) == 0 {
			failed = append(failed, earlID)
			continue
		}

		var text string
		if err := json.Unmarshal(records[0].Payload, &text); err != nil {
			failed = append(failed, earlID)
			continue
		}
		draft := parseDraft(tacticID, earlID, text)
		drafts = append(drafts, draft)
		if lintSoftWeakMapping(draft) && d.Events != nil {
			_, _ = d.Events.Append(ctx, eventstore.ProvenanceWeakMapping,
				map[string]string{"task_draft_id": draft.ID, "deliverable_id": draft.DeliverableID},
				"decomposition", tacticID)
		}
	}

	result := synthesize(tacticID, facilitatorEarlID, failed, drafts, d.ExplosionCap)
	if result.Status == TacticAmbiguous && d.Events != nil {
		_, _ = d.Events.Append(ctx, eventstore.AmbiguousTactic,
			map[string]string{"tactic_id": tacticID}, "decomposition", tacticID)
	}
	return result, nil
}

// DecomposeAll runs Decompose for every Tactic in a winning proposal,
// resolving each one's facilitator Earl by domain (§4.8: "selected by
// domain match against a routing table, default fallback").
func (d *Decomposer) DecomposeAll(ctx context.Context, tactics []TacticInput, reg *registry.Registry) ([]*DecompositionResult, error) {
	earlIDs := make([]string, 0, len(reg.Earls))
	for _, e := range reg.Earls {
		earlIDs = append(earlIDs, e.ID)
	}

	results := make([]*DecompositionResult, 0, len(tactics))
	for _, tac := range tactics {
		facilitator := reg.EarlForDomain(tac.Domain)
		result, err := d.Decompose(ctx, tac.ID, tac.DeliverableID, facilitator, earlIDs)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// synthesize is Stage-4's facilitator step: pure code, no LLM (§4.8
// "Tactic-level policies").
func synthesize(tacticID, facilitatorEarlID string, failed []string, drafts []TaskDraft, explosionCap int) *DecompositionResult {
	if explosionCap <= 0 {
		explosionCap = defaultExplosionCap
	}
	result := &DecompositionResult{
		TacticID:        tacticID,
		FacilitatorEarl: facilitatorEarlID,
		FailedEarls:     failed,
		Drafts:          drafts,
		SynthesizedAt:   time.Now().UTC(),
	}

	if len(drafts) == 0 {
		result.Status = TacticAmbiguous
		return result
	}

	if hasOverlap(drafts) {
		result.Status = TacticOverlapReview
		return result
	}

	if len(drafts) > explosionCap {
		result.Status = TacticReviewRequired
		return result
	}

	result.Status = TacticOK
	return result
}

func hasOverlap(drafts []TaskDraft) bool {
	seen := map[string]bool{}
	for _, d := range drafts {
		outcomes := append([]string(nil), d.ExpectedOutcomes...)
		sort.Strings(outcomes)
		key := d.DeliverableID + "|" + strings.Join(outcomes, ",")
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// parseDraft reads the "### HEADER\n- bullet" convention shared with
// pkg/executive into a TaskDraft.
func parseDraft(tacticID, earlID, text string) TaskDraft {
	sections := splitSections(text)
	draft := TaskDraft{
		ID:               tacticID + "-" + earlID,
		ParentTacticID:   tacticID,
		Description:      strings.Join(sections["DESCRIPTION"], " "),
		ExpectedOutcomes: sections["OUTCOMES"],
		CapabilityTags:   sections["TAGS"],
		ProposedByEarl:   earlID,
		GeneratedAt:      time.Now().UTC(),
	}
	if len(sections["DELIVERABLE"]) > 0 {
		draft.DeliverableID = sections["DELIVERABLE"][0]
	}
	if len(sections["EFFORT"]) > 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(sections["EFFORT"][0]), 64); err == nil {
			draft.EffortHours = v
		}
	}
	return draft
}

// splitSections parses the "### HEADER\n- bullet\n- bullet" convention
// used across every agent prompt in pkg/executive; duplicated here rather
// than imported to avoid a cross-package dependency for a four-line parser.
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
