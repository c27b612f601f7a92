// Copyright 2025 Certen Protocol
//
// Types produced by the three executive pipeline stages (§4.8): RFP
// generation, Duke proposals, and proposal selection. Stage 4 (tactic
// decomposition) has its own package, pkg/decomposition, since its Earl
// synthesis model is structurally different from the President/Duke
// stages here.

package executive

import "time"

// DossierStatus is the closed set of states an ImplementationDossier can
// reach after Stage 1.
type DossierStatus string

const (
	DossierFinal   DossierStatus = "final"
	DossierBlocked DossierStatus = "blocked"
)

// Requirement is one FR-{portfolio}-NNN or NFR-{portfolio}-NNN line item.
type Requirement struct {
	ID          string `json:"id"`
	PortfolioID string `json:"portfolio_id"`
	Text        string `json:"text"`
}

// Constraint is one C-NNN line item, global (not portfolio-scoped).
type Constraint struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Deliverable is one D-NNN line item, global.
type Deliverable struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PresidentContribution is one President's Stage-1 output for their
// portfolio, before synthesis into the dossier.
type PresidentContribution struct {
	PortfolioID        string        `json:"portfolio_id"`
	FunctionalReqs     []Requirement `json:"functional_requirements"`
	NonFunctionalReqs  []Requirement `json:"non_functional_requirements"`
	Constraints        []Constraint  `json:"constraints"`
	Deliverables       []Deliverable `json:"deliverables"`
	EvaluationCriteria []string      `json:"evaluation_criteria"`
}

// ImplementationDossier is Stage 1's synthesized output: the RFP that Stage
// 2's Dukes propose tactics against.
type ImplementationDossier struct {
	MandateID          string        `json:"mandate_id"`
	Status             DossierStatus `json:"status"`
	FunctionalReqs     []Requirement `json:"functional_requirements"`
	NonFunctionalReqs  []Requirement `json:"non_functional_requirements"`
	Constraints        []Constraint  `json:"constraints"`
	Deliverables       []Deliverable `json:"deliverables"`
	EvaluationCriteria []string      `json:"evaluation_criteria"`
	MissingPortfolios  []string      `json:"missing_portfolios,omitempty"`
	OpenQuestions      []string      `json:"open_questions,omitempty"`
	GeneratedAt        time.Time     `json:"generated_at"`
}

// Tactic is one T-{ABBR}-NNN line item from a Duke's Phase 2 output.
type Tactic struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Text          string `json:"text"`
}

// Risk is one R-{ABBR}-NNN line item.
type Risk struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Text          string `json:"text"`
}

// ResourceRequest is one RR-{ABBR}-NNN line item.
type ResourceRequest struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Text          string `json:"text"`
}

// CoverageEntry maps one requirement to the tactics that address it, per
// Stage 2 Phase 3's coverage matrix.
type CoverageEntry struct {
	RequirementID string   `json:"requirement_id"`
	TacticIDs     []string `json:"tactic_ids"`
	Confidence    float64  `json:"confidence"`
}

// DukeProposal is one Duke's complete Stage-2 output, assembled from its
// five phases.
type DukeProposal struct {
	DukeID                  string            `json:"duke_id"`
	MandateID               string            `json:"mandate_id"`
	Overview                string            `json:"overview"`
	Issues                  string            `json:"issues"`
	Philosophy              string            `json:"philosophy"`
	Tactics                 []Tactic          `json:"tactics"`
	Risks                   []Risk            `json:"risks"`
	ResourceRequests        []ResourceRequest `json:"resource_requests"`
	CoverageMatrix          []CoverageEntry   `json:"coverage_matrix"`
	DeliverablePlan         string            `json:"deliverable_plan"`
	CapacityCommitment      string            `json:"capacity_commitment"`
	Assumptions             []string          `json:"assumptions"`
	AcknowledgedConstraints []string          `json:"acknowledged_constraints"`
	ExecutiveSummary        string            `json:"executive_summary"`
	ConsolidatedByEditor    bool              `json:"consolidated_by_editor"`
	GeneratedAt             time.Time         `json:"generated_at"`
}

// DimensionScores holds the 6 weighted scoring dimensions from Stage 3
// Phase 2 (§4.8: feasibility .20, completeness .25, risk-mitigation .15,
// resource-efficiency .10, innovation .10, alignment .20).
type DimensionScores struct {
	Feasibility        float64 `json:"feasibility"`
	Completeness       float64 `json:"completeness"`
	RiskMitigation     float64 `json:"risk_mitigation"`
	ResourceEfficiency float64 `json:"resource_efficiency"`
	Innovation         float64 `json:"innovation"`
	Alignment          float64 `json:"alignment"`
}

// DimensionWeights is the fixed weighting applied to DimensionScores.
var DimensionWeights = DimensionScores{
	Feasibility:        0.20,
	Completeness:       0.25,
	RiskMitigation:     0.15,
	ResourceEfficiency: 0.10,
	Innovation:         0.10,
	Alignment:          0.20,
}

// ProposalScore is one President's Stage-3 Phase-2 score of one proposal.
type ProposalScore struct {
	PresidentID string          `json:"president_id"`
	DukeID      string          `json:"duke_id"`
	Dimensions  DimensionScores `json:"dimensions"`
	Overall     float64         `json:"overall"`
	Confidence  float64         `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
	Strengths   []string        `json:"strengths"`
	Weaknesses  []string        `json:"weaknesses"`
	Novelty     float64         `json:"novelty"`
}

// Tier is the Stage-3 Phase-4 bucket a proposal lands in after aggregation.
type Tier string

const (
	TierFinalist       Tier = "FINALIST"
	TierContender      Tier = "CONTENDER"
	TierBelowThreshold Tier = "BELOW_THRESHOLD"
)

// AggregatedScore is Stage-3 Phase-4's pure (no-LLM) aggregation of every
// President's scores for one proposal.
type AggregatedScore struct {
	DukeID       string  `json:"duke_id"`
	WeightedMean float64 `json:"weighted_mean"`
	NoveltyBonus float64 `json:"novelty_bonus"`
	FinalScore   float64 `json:"final_score"`
	Tier         Tier    `json:"tier"`
}

// PanelVote is one President's Stage-3 Phase-5 panel vote.
type PanelVote struct {
	PresidentID string  `json:"president_id"`
	DukeID      string  `json:"duke_id"`
	Score       float64 `json:"score"`
}

// Outcome is the closed set of Stage-3 Phase-6 decisions.
type Outcome string

const (
	OutcomeWinnerSelected   Outcome = "WINNER_SELECTED"
	OutcomeNoViableProposal Outcome = "NO_VIABLE_PROPOSAL"
	OutcomeRevisionNeeded   Outcome = "REVISION_NEEDED"
	OutcomeEscalateConclave Outcome = "ESCALATE_TO_CONCLAVE"
)

// RevisionHandback is generated per Duke when the outcome is
// REVISION_NEEDED, carrying the unresolved concerns raised against their
// proposal.
type RevisionHandback struct {
	DukeID   string   `json:"duke_id"`
	Concerns []string `json:"concerns"`
}

// SelectionResult is Stage 3's final, complete output.
type SelectionResult struct {
	MandateID    string             `json:"mandate_id"`
	Round        int                `json:"round"`
	Scores       []ProposalScore    `json:"scores"`
	Aggregated   []AggregatedScore  `json:"aggregated"`
	PanelVotes   []PanelVote        `json:"panel_votes"`
	PanelMean    float64            `json:"panel_mean"`
	WinnerDukeID string             `json:"winner_duke_id,omitempty"`
	Outcome      Outcome            `json:"outcome"`
	Handbacks    []RevisionHandback `json:"handbacks,omitempty"`
	DecidedAt    time.Time          `json:"decided_at"`
}
