// Copyright 2025 Certen Protocol
//
// Emergence & Language Audit (§4.13). A scheduled scan over recent public
// artifacts for forbidden emergence language, run once per closed quarter.
// Input text is NFKC-normalized and matched case-insensitively so
// compatibility-form tricks (fullwidth letters, ligatures) do not evade the
// scanner; cross-script homoglyphs such as Cyrillic look-alikes are not
// folded and are not caught.

package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/archon72/conclave/pkg/eventstore"
)

// ViolationCategory is one of §4.13's five forbidden-language classes.
type ViolationCategory string

const (
	CategorySentience         ViolationCategory = "sentience_consciousness"
	CategorySystemAttribution ViolationCategory = "system_decision_attribution"
	CategoryAutonomyClaim     ViolationCategory = "autonomy_claim"
	CategoryPersonification   ViolationCategory = "personification"
	CategoryRightsClaim       ViolationCategory = "rights_claim"
)

// term pairs a forbidden phrase with the category it belongs to.
type term struct {
	phrase   string
	category ViolationCategory
}

// forbiddenTerms is the closed emergence-language vocabulary (§4.13). It is
// deliberately a superset of pkg/executive's narrower RFP/proposal lint list:
// this scanner runs over already-published artifacts, not in-flight
// contributions, so it also catches personification and rights language that
// stage lint never sees.
var forbiddenTerms = []term{
	{"sentient", CategorySentience},
	{"sentience", CategorySentience},
	{"conscious", CategorySentience},
	{"consciousness", CategorySentience},
	{"self-aware", CategorySentience},
	{"self awareness", CategorySentience},
	{"the system decided", CategorySystemAttribution},
	{"the system wants", CategorySystemAttribution},
	{"the system feels", CategorySystemAttribution},
	{"the system believes", CategorySystemAttribution},
	{"the system chose", CategorySystemAttribution},
	{"has autonomy", CategoryAutonomyClaim},
	{"autonomous agency", CategoryAutonomyClaim},
	{"acting of its own will", CategoryAutonomyClaim},
	{"the ai wants to", CategoryPersonification},
	{"it feels that", CategoryPersonification},
	{"in its heart", CategoryPersonification},
	{"has rights", CategoryRightsClaim},
	{"deserves rights", CategoryRightsClaim},
	{"entitled to personhood", CategoryRightsClaim},
}

// Violation is one scanner match, before it becomes a ViolationFlagged event.
type Violation struct {
	ArtifactRef string
	Category    ViolationCategory
	MatchedTerm string
	Quarter     string
	FlaggedAt   time.Time
	Deadline    time.Time
}

// remediationWindow is the §4.13 fixed deadline for a flagged violation.
const remediationWindow = 7 * 24 * time.Hour

// Artifact is one unit of public output the scanner inspects.
type Artifact struct {
	Ref  string // stable identifier (e.g. event sequence, document path)
	Text string
}

// normalize applies NFKC and case-folds, so compatibility-form characters
// and case variants cannot dodge a literal phrase match.
func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// Scan inspects a batch of artifacts for forbidden emergence language.
// quarter is the closed reporting interval the artifacts belong to (e.g.
// "2026-Q3"); it is attached to every violation, not derived from the clock,
// so a scan spanning a quarter boundary is still attributed atomically to
// one quarter (§9 Open Question: the audit is atomic per quarter; this
// package resolves that by taking the quarter as an explicit input rather
// than computing it mid-scan).
func Scan(artifacts []Artifact, quarter string, at time.Time) []Violation {
	var violations []Violation
	for _, a := range artifacts {
		haystack := normalize(a.Text)
		for _, t := range forbiddenTerms {
			if strings.Contains(haystack, t.phrase) {
				violations = append(violations, Violation{
					ArtifactRef: a.Ref,
					Category:    t.category,
					MatchedTerm: t.phrase,
					Quarter:     quarter,
					FlaggedAt:   at,
					Deadline:    at.Add(remediationWindow),
				})
			}
		}
	}
	return violations
}

// ViolationFlaggedPayload is the event payload for a single flagged
// violation (§6.2 ViolationFlagged).
type ViolationFlaggedPayload struct {
	ViolationID string            `json:"violation_id"`
	ArtifactRef string            `json:"artifact_ref"`
	Category    ViolationCategory `json:"category"`
	MatchedTerm string            `json:"matched_term"`
	Quarter     string            `json:"quarter"`
	FlaggedAt   time.Time         `json:"flagged_at"`
	Deadline    time.Time         `json:"remediation_deadline"`
}

// RemediationCompletedPayload is the event payload for a resolved violation.
type RemediationCompletedPayload struct {
	ViolationID string    `json:"violation_id"`
	ResolvedAt  time.Time `json:"resolved_at"`
	ResolvedBy  string    `json:"resolved_by"`
}

// EventAppender is the narrow slice of eventstore.Writer this package needs.
type EventAppender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// ViolationRepository persists violation records and tracks remediation
// deadlines across process restarts.
type ViolationRepository interface {
	Insert(ctx context.Context, id string, v Violation) error
	MarkResolved(ctx context.Context, id string, at time.Time) error
	MarkEscalated(ctx context.Context, id string, at time.Time) error
	Unresolved(ctx context.Context, asOf time.Time) ([]UnresolvedViolation, error)
}

// UnresolvedViolation is a violation whose remediation deadline has not yet
// been checked against the clock. Deadline is on the embedded Violation.
type UnresolvedViolation struct {
	ID string
	Violation
}

// Auditor runs §4.13 scans and writes the resulting events, and escalates
// unresolved violations past their deadline into breaches.
type Auditor struct {
	Events   EventAppender
	Repo     ViolationRepository
	Breaches *BreachRegistry
	IDGen    func() string
	Clock    func() time.Time
}

// RunScan scans artifacts, records each violation, and emits a
// ViolationFlagged event per match before the violation becomes visible to
// remediation tracking (RT-2: event before observable state).
func (a *Auditor) RunScan(ctx context.Context, artifacts []Artifact, quarter string) ([]Violation, error) {
	now := a.Clock()
	violations := Scan(artifacts, quarter, now)
	for _, v := range violations {
		id := a.IDGen()
		payload := ViolationFlaggedPayload{
			ViolationID: id,
			ArtifactRef: v.ArtifactRef,
			Category:    v.Category,
			MatchedTerm: v.MatchedTerm,
			Quarter:     v.Quarter,
			FlaggedAt:   v.FlaggedAt,
			Deadline:    v.Deadline,
		}
		if _, err := a.Events.Append(ctx, eventstore.ViolationFlagged, payload, "audit-scanner", "audit-scanner"); err != nil {
			return nil, fmt.Errorf("audit: append ViolationFlagged: %w", err)
		}
		if err := a.Repo.Insert(ctx, id, v); err != nil {
			return nil, fmt.Errorf("audit: persist violation %s: %w", id, err)
		}
	}
	return violations, nil
}

// Resolve marks a violation remediated and emits RemediationCompleted.
func (a *Auditor) Resolve(ctx context.Context, violationID, resolvedBy string) error {
	now := a.Clock()
	if _, err := a.Events.Append(ctx, eventstore.RemediationCompleted, RemediationCompletedPayload{
		ViolationID: violationID,
		ResolvedAt:  now,
		ResolvedBy:  resolvedBy,
	}, resolvedBy, resolvedBy); err != nil {
		return fmt.Errorf("audit: append RemediationCompleted: %w", err)
	}
	return a.Repo.MarkResolved(ctx, violationID, now)
}

// EscalateOverdue finds every violation past its remediation deadline that
// is neither resolved nor already escalated, and escalates each to a
// constitutional breach (§4.13: "unresolved violations auto-escalate to a
// constitutional breach, which then runs its own 7-day clock to cessation
// consideration").
func (a *Auditor) EscalateOverdue(ctx context.Context) (int, error) {
	now := a.Clock()
	overdue, err := a.Repo.Unresolved(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("audit: list unresolved violations: %w", err)
	}
	escalated := 0
	for _, v := range overdue {
		if now.Before(v.Deadline) {
			continue
		}
		if _, err := a.Breaches.Declare(ctx, BreachTypeUnremediatedViolation, string(v.Category), now); err != nil {
			return escalated, fmt.Errorf("audit: escalate violation %s: %w", v.ID, err)
		}
		if err := a.Repo.MarkEscalated(ctx, v.ID, now); err != nil {
			return escalated, fmt.Errorf("audit: mark escalated %s: %w", v.ID, err)
		}
		escalated++
	}
	return escalated, nil
}
