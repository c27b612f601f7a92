// Copyright 2025 Certen Protocol
//
// Stage 4 — Tactic Decomposition (§4.8): for each Tactic in the winning
// proposal, 6 Earls independently propose TaskDrafts; a facilitator Earl
// synthesizes the unified set.

package decomposition

import "time"

// TaskDraft is one unit of work an Earl proposes against a Tactic.
type TaskDraft struct {
	ID               string    `json:"id"`
	ParentTacticID   string    `json:"parent_tactic_id"`
	DeliverableID    string    `json:"deliverable_id,omitempty"`
	Description      string    `json:"description"`
	ExpectedOutcomes []string  `json:"expected_outcomes"`
	CapabilityTags   []string  `json:"capability_tags"`
	EffortHours      float64   `json:"effort_hours"`
	ProposedByEarl   string    `json:"proposed_by_earl"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// TacticStatus is the closed set of outcomes a Tactic's decomposition can
// reach (§4.8 "Tactic-level policies").
type TacticStatus string

const (
	TacticOK             TacticStatus = "OK"
	TacticAmbiguous      TacticStatus = "AMBIGUOUS"
	TacticReviewRequired TacticStatus = "REVIEW_REQUIRED"
	TacticOverlapReview  TacticStatus = "OVERLAP_REVIEW"
)

// DecompositionResult is one Tactic's complete Stage-4 output.
type DecompositionResult struct {
	TacticID        string       `json:"tactic_id"`
	FacilitatorEarl string       `json:"facilitator_earl"`
	FailedEarls     []string     `json:"failed_earls,omitempty"`
	Drafts          []TaskDraft  `json:"drafts"`
	Status          TacticStatus `json:"status"`
	SynthesizedAt   time.Time    `json:"synthesized_at"`
}

// defaultExplosionCap is the default §4.8 "drafts > configured explosion
// cap (default 8)" threshold.
const defaultExplosionCap = 8

// nonLegibleOutcomes is the §4.8 hard-lint non-legible set, checked
// case-insensitively.
var nonLegibleOutcomes = map[string]bool{
	"tbd": true, "???": true, "n/a": true, "todo": true,
	"finished": true, "done": true, "complete": true, "completed": true,
}
