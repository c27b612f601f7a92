// Copyright 2025 Certen Protocol
//
// Stage 3 — Proposal Selection (§4.8): 11 Presidents score every Duke
// proposal, a novelty detector flags originality bonuses, pure-code
// aggregation normalizes and tiers the field, a panel facilitator narrows
// to a winner, and a final pure decision closes the round.

package executive

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
)

const stageSelection = "executive:selection"

// ProposalSelector drives Stage 3 over a Registry's Portfolios acting as
// scorers.
type ProposalSelector struct {
	Store     *checkpoint.Store
	Port      llmport.TextCompletionPort
	Backoff   checkpoint.BackoffConfig
	TopN      int // default 5
	MaxRounds int // default 3
}

// NewProposalSelector builds a Stage-3 selector with spec defaults.
func NewProposalSelector(store *checkpoint.Store, port llmport.TextCompletionPort, backoff checkpoint.BackoffConfig) *ProposalSelector {
	return &ProposalSelector{Store: store, Port: port, Backoff: backoff, TopN: 5, MaxRounds: 3}
}

// Select runs Stage 3 for one round over proposals, scored by presidents.
func (s *ProposalSelector) Select(ctx context.Context, mandateID string, round int, proposals []DukeProposal, presidents []registry.Portfolio) (*SelectionResult, error) {
	scores, err := s.runPhase2Scoring(ctx, mandateID, round, proposals, presidents)
	if err != nil {
		return nil, err
	}

	novelty, err := s.runPhase3Novelty(ctx, mandateID, round, proposals)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i].Novelty = novelty[scores[i].DukeID]
	}

	aggregated := aggregateScores(scores)

	votes, panelMeans, err := s.runPhase5Panel(ctx, mandateID, round, aggregated, presidents)
	if err != nil {
		return nil, err
	}

	result := decideOutcome(mandateID, round, s.MaxRounds, scores, aggregated, votes, panelMeans, proposals)
	return result, nil
}

func (s *ProposalSelector) runPhase2Scoring(ctx context.Context, mandateID string, round int, proposals []DukeProposal, presidents []registry.Portfolio) ([]ProposalScore, error) {
	gen := newGenerator(stageSelection, s.Store, s.Backoff)
	var units []checkpoint.Unit
	for _, pr := range presidents {
		pr := pr
		for _, prop := range proposals {
			prop := prop
			unitID := fmt.Sprintf("score-r%d-%s-%s", round, pr.ID, prop.DukeID)
			units = append(units, checkpoint.Unit{
				ID: unitID,
				Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
					resp, err := s.Port.Complete(ctx, llmport.CompletionRequest{
						SystemRole: "President-" + pr.ID,
						Prompt: fmt.Sprintf(
							"Mandate %s. Score Duke %s's proposal on 6 dimensions using sections:\n"+
								"### FEASIBILITY\n- N\n### COMPLETENESS\n- N\n### RISK\n- N\n"+
								"### RESOURCE\n- N\n### INNOVATION\n- N\n### ALIGNMENT\n- N\n"+
								"### OVERALL\n- N\n### CONFIDENCE\n- N\n### REASONING\n- ...\n"+
								"### STRENGTHS\n- ...\n### WEAKNESSES\n- ...", mandateID, prop.DukeID),
					})
					if err != nil {
						return nil, err
					}
					return json.Marshal(resp.Text)
				},
			})
		}
	}

	records, err := gen.Run(ctx, units)
	var out []ProposalScore
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		presidentID, dukeID, ok := parseScoreUnitID(rec.UnitID)
		if !ok {
			continue
		}
		text := mustUnmarshalText(rec.Payload)
		sections := splitSections(text)
		out = append(out, ProposalScore{
			PresidentID: presidentID,
			DukeID:      dukeID,
			Dimensions: DimensionScores{
				Feasibility:        firstFloat(sections["FEASIBILITY"]),
				Completeness:       firstFloat(sections["COMPLETENESS"]),
				RiskMitigation:     firstFloat(sections["RISK"]),
				ResourceEfficiency: firstFloat(sections["RESOURCE"]),
				Innovation:         firstFloat(sections["INNOVATION"]),
				Alignment:          firstFloat(sections["ALIGNMENT"]),
			},
			Overall:    firstFloat(sections["OVERALL"]),
			Confidence: firstFloat(sections["CONFIDENCE"]),
			Reasoning:  strings.Join(sections["REASONING"], " "),
			Strengths:  sections["STRENGTHS"],
			Weaknesses: sections["WEAKNESSES"],
		})
	}
	return out, err
}

func (s *ProposalSelector) runPhase3Novelty(ctx context.Context, mandateID string, round int, proposals []DukeProposal) (map[string]float64, error) {
	gen := newGenerator(stageSelection, s.Store, s.Backoff)
	units := make([]checkpoint.Unit, 0, len(proposals))
	for _, prop := range proposals {
		prop := prop
		units = append(units, checkpoint.Unit{
			ID: fmt.Sprintf("novelty-r%d-%s", round, prop.DukeID),
			Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
				resp, err := s.Port.Complete(ctx, llmport.CompletionRequest{
					SystemRole: "Novelty-Detector",
					Prompt:     fmt.Sprintf("Mandate %s. Rate originality of Duke %s's tactics 0-1:\n### NOVELTY\n- N", mandateID, prop.DukeID),
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(resp.Text)
			},
		})
	}
	records, err := gen.Run(ctx, units)
	out := map[string]float64{}
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		dukeID := strings.TrimPrefix(rec.UnitID, fmt.Sprintf("novelty-r%d-", round))
		sections := splitSections(mustUnmarshalText(rec.Payload))
		out[dukeID] = clamp01(firstFloat(sections["NOVELTY"]))
	}
	return out, err
}

// aggregateScores is Stage-3 Phase 4: pure, no LLM.
func aggregateScores(scores []ProposalScore) []AggregatedScore {
	weightedByPresident := map[string][]float64{}
	weightedByScore := make([]float64, len(scores))
	for i, sc := range scores {
		wd := weightedDimension(sc.Dimensions)
		weightedByScore[i] = wd
		weightedByPresident[sc.PresidentID] = append(weightedByPresident[sc.PresidentID], wd)
	}

	globalMean, globalStd := meanStd(weightedByScore)
	presidentMean := map[string]float64{}
	presidentStd := map[string]float64{}
	for p, vals := range weightedByPresident {
		presidentMean[p], presidentStd[p] = meanStd(vals)
	}

	byDuke := map[string][]float64{}
	noveltyByDuke := map[string]float64{}
	for i, sc := range scores {
		normalized := weightedByScore[i]
		if std := presidentStd[sc.PresidentID]; std > 0 {
			normalized = globalMean + (weightedByScore[i]-presidentMean[sc.PresidentID])/std*globalStd
		}
		byDuke[sc.DukeID] = append(byDuke[sc.DukeID], normalized)
		noveltyByDuke[sc.DukeID] = sc.Novelty
	}

	dukeIDs := make([]string, 0, len(byDuke))
	for id := range byDuke {
		dukeIDs = append(dukeIDs, id)
	}
	sort.Strings(dukeIDs)

	out := make([]AggregatedScore, 0, len(dukeIDs))
	for _, id := range dukeIDs {
		mean, _ := meanStd(byDuke[id])
		novelty := noveltyByDuke[id]
		bonus := 0.0
		if novelty >= 0.7 {
			bonus = math.Min(0.5, 0.5*novelty)
		}
		final := clampScore(mean + bonus)
		out = append(out, AggregatedScore{
			DukeID:       id,
			WeightedMean: mean,
			NoveltyBonus: bonus,
			FinalScore:   final,
			Tier:         tierFor(final),
		})
	}
	return out
}

func (s *ProposalSelector) runPhase5Panel(ctx context.Context, mandateID string, round int, aggregated []AggregatedScore, presidents []registry.Portfolio) ([]PanelVote, map[string]float64, error) {
	topN := s.TopN
	if topN <= 0 {
		topN = 5
	}
	sorted := append([]AggregatedScore(nil), aggregated...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FinalScore > sorted[j].FinalScore })
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}

	gen := newGenerator(stageSelection, s.Store, s.Backoff)
	var units []checkpoint.Unit
	for _, pr := range presidents {
		pr := pr
		for _, cand := range sorted {
			cand := cand
			unitID := fmt.Sprintf("panel-r%d-%s-%s", round, pr.ID, cand.DukeID)
			units = append(units, checkpoint.Unit{
				ID: unitID,
				Produce: func(ctx context.Context, attempt int) (json.RawMessage, error) {
					resp, err := s.Port.Complete(ctx, llmport.CompletionRequest{
						SystemRole: "President-" + pr.ID,
						Prompt:     fmt.Sprintf("Mandate %s. Panel vote for Duke %s (0-10):\n### VOTE\n- N", mandateID, cand.DukeID),
					})
					if err != nil {
						return nil, err
					}
					return json.Marshal(resp.Text)
				},
			})
		}
	}

	records, err := gen.Run(ctx, units)
	var votes []PanelVote
	for _, rec := range records {
		if rec.Status != checkpoint.StatusCompleted {
			continue
		}
		presidentID, dukeID, ok := parsePanelUnitID(rec.UnitID)
		if !ok {
			continue
		}
		sections := splitSections(mustUnmarshalText(rec.Payload))
		votes = append(votes, PanelVote{PresidentID: presidentID, DukeID: dukeID, Score: clampScore(firstFloat(sections["VOTE"]))})
	}

	means := map[string][]float64{}
	for _, v := range votes {
		means[v.DukeID] = append(means[v.DukeID], v.Score)
	}
	panelMeans := map[string]float64{}
	for id, vals := range means {
		mean, _ := meanStd(vals)
		panelMeans[id] = mean
	}
	return votes, panelMeans, err
}

// decideOutcome is Stage-3 Phase 6: pure decision, no LLM.
func decideOutcome(mandateID string, round, maxRounds int, scores []ProposalScore, aggregated []AggregatedScore, votes []PanelVote, panelMeans map[string]float64, proposals []DukeProposal) *SelectionResult {
	result := &SelectionResult{
		MandateID:  mandateID,
		Round:      round,
		Scores:     scores,
		Aggregated: aggregated,
		PanelVotes: votes,
		DecidedAt:  time.Now().UTC(),
	}

	bestDukeID := ""
	bestMean := -1.0
	for id, mean := range panelMeans {
		if mean > bestMean {
			bestMean = mean
			bestDukeID = id
		}
	}
	result.PanelMean = bestMean

	allBelowThreshold := true
	for _, a := range aggregated {
		if a.FinalScore >= 5.0 {
			allBelowThreshold = false
			break
		}
	}

	switch {
	case bestDukeID != "" && bestMean >= 7.0:
		result.Outcome = OutcomeWinnerSelected
		result.WinnerDukeID = bestDukeID
	case allBelowThreshold:
		result.Outcome = OutcomeNoViableProposal
	case round < maxRounds:
		result.Outcome = OutcomeRevisionNeeded
		result.Handbacks = buildHandbacks(aggregated, scores)
	default:
		result.Outcome = OutcomeEscalateConclave
	}
	return result
}

func buildHandbacks(aggregated []AggregatedScore, scores []ProposalScore) []RevisionHandback {
	tierByDuke := map[string]Tier{}
	for _, a := range aggregated {
		tierByDuke[a.DukeID] = a.Tier
	}
	concerns := map[string][]string{}
	for _, sc := range scores {
		if tierByDuke[sc.DukeID] == TierFinalist {
			continue
		}
		concerns[sc.DukeID] = append(concerns[sc.DukeID], sc.Weaknesses...)
	}
	dukeIDs := make([]string, 0, len(concerns))
	for id := range concerns {
		dukeIDs = append(dukeIDs, id)
	}
	sort.Strings(dukeIDs)
	out := make([]RevisionHandback, 0, len(dukeIDs))
	for _, id := range dukeIDs {
		out = append(out, RevisionHandback{DukeID: id, Concerns: dedupeStrings(concerns[id])})
	}
	return out
}

func weightedDimension(d DimensionScores) float64 {
	w := DimensionWeights
	return d.Feasibility*w.Feasibility +
		d.Completeness*w.Completeness +
		d.RiskMitigation*w.RiskMitigation +
		d.ResourceEfficiency*w.ResourceEfficiency +
		d.Innovation*w.Innovation +
		d.Alignment*w.Alignment
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	std = math.Sqrt(sq / float64(len(vals)))
	return mean, std
}

func tierFor(final float64) Tier {
	switch {
	case final >= 7.0:
		return TierFinalist
	case final >= 5.0:
		return TierContender
	default:
		return TierBelowThreshold
	}
}

func clampScore(v float64) float64 { return math.Max(0, math.Min(10, v)) }
func clamp01(v float64) float64    { return math.Max(0, math.Min(1, v)) }

func firstFloat(lines []string) float64 {
	for _, l := range lines {
		if v, err := strconv.ParseFloat(strings.TrimSpace(l), 64); err == nil {
			return v
		}
	}
	return 0
}

func parseScoreUnitID(unitID string) (presidentID, dukeID string, ok bool) {
	return parseTripleUnitID(unitID, "score-r")
}

func parsePanelUnitID(unitID string) (presidentID, dukeID string, ok bool) {
	return parseTripleUnitID(unitID, "panel-r")
}

// parseTripleUnitID parses "{prefix}{round}-{a}-{b}" into (a, b).
func parseTripleUnitID(unitID, prefix string) (a, b string, ok bool) {
	rest := strings.TrimPrefix(unitID, prefix)
	if rest == unitID {
		return "", "", false
	}
	dash := strings.Index(rest, "-")
	if dash < 0 {
		return "", "", false
	}
	rest = rest[dash+1:]
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
