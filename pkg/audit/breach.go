// Copyright 2025 Certen Protocol
//
// Breach & Cost Snapshot (§4.14). A breach is a structured event with an
// automatic 7-day clock to cessation-agenda escalation.

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

// BreachType is the closed set of reasons a breach can be declared for.
// Threshold-crossing breaches (e.g. override counters) are declared by
// pkg/override directly against the same BreachDeclared/BreachEscalated
// event types; this package additionally declares breaches that originate
// from its own escalation paths.
type BreachType string

const (
	BreachTypeUnremediatedViolation BreachType = "unremediated_emergence_violation"
	BreachTypeManual                BreachType = "manually_declared"
)

const breachEscalationWindow = 7 * 24 * time.Hour

// BreachPayload is the §4.14 structured breach event payload:
// (breach_id, type, threshold, declared_at, escalation_deadline).
type BreachPayload struct {
	BreachID           string     `json:"breach_id"`
	Type               BreachType `json:"type"`
	Threshold          string     `json:"threshold"`
	DeclaredAt         time.Time  `json:"declared_at"`
	EscalationDeadline time.Time  `json:"escalation_deadline"`
}

// BreachEscalatedPayload marks a breach reaching its cessation-agenda
// escalation deadline.
type BreachEscalatedPayload struct {
	BreachID    string    `json:"breach_id"`
	EscalatedAt time.Time `json:"escalated_at"`
}

// BreachRepository persists breach records so EscalateOverdue can find
// breaches whose 7-day clock has run out, across process restarts.
type BreachRepository interface {
	Insert(ctx context.Context, p BreachPayload) error
	MarkEscalated(ctx context.Context, breachID string, at time.Time) error
	Unescalated(ctx context.Context, asOf time.Time) ([]BreachPayload, error)
}

// BreachRegistry declares breaches and escalates the ones whose clock has
// run out to the cessation agenda.
type BreachRegistry struct {
	Events EventAppender
	Repo   BreachRepository
	IDGen  func() string
	Clock  func() time.Time
}

// Declare records a new breach. threshold is a free-form description of
// what was crossed (e.g. a ThresholdLevel's string form, or the violation
// category that triggered it).
func (r *BreachRegistry) Declare(ctx context.Context, breachType BreachType, threshold string, at time.Time) (*BreachPayload, error) {
	payload := BreachPayload{
		BreachID:           r.IDGen(),
		Type:               breachType,
		Threshold:          threshold,
		DeclaredAt:         at,
		EscalationDeadline: at.Add(breachEscalationWindow),
	}
	if _, err := r.Events.Append(ctx, eventstore.BreachDeclared, payload, "audit-breach-registry", "audit-breach-registry"); err != nil {
		return nil, fmt.Errorf("audit: append BreachDeclared: %w", err)
	}
	if err := r.Repo.Insert(ctx, payload); err != nil {
		return nil, fmt.Errorf("audit: persist breach %s: %w", payload.BreachID, err)
	}
	return &payload, nil
}

// EscalateOverdue finds every breach whose escalation_deadline has passed
// without already being escalated, and writes BreachEscalated for each
// (§4.14: "Escalation to the cessation agenda is automatic at deadline").
func (r *BreachRegistry) EscalateOverdue(ctx context.Context) (int, error) {
	now := r.Clock()
	overdue, err := r.Repo.Unescalated(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("audit: list unescalated breaches: %w", err)
	}
	escalated := 0
	for _, b := range overdue {
		if now.Before(b.EscalationDeadline) {
			continue
		}
		if _, err := r.Events.Append(ctx, eventstore.BreachEscalated, BreachEscalatedPayload{
			BreachID:    b.BreachID,
			EscalatedAt: now,
		}, "audit-breach-registry", "audit-breach-registry"); err != nil {
			return escalated, fmt.Errorf("audit: append BreachEscalated for %s: %w", b.BreachID, err)
		}
		if err := r.Repo.MarkEscalated(ctx, b.BreachID, now); err != nil {
			return escalated, fmt.Errorf("audit: mark escalated %s: %w", b.BreachID, err)
		}
		escalated++
	}
	return escalated, nil
}
