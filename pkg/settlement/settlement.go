// Copyright 2025 Certen Protocol

package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/activation"
	"github.com/archon72/conclave/pkg/eventstore"
)

// EventAppender is the narrow slice of eventstore.Writer this package needs.
type EventAppender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// Settler drives §4.10 rejection and rerouting.
type Settler struct {
	Activator *activation.Activator
	Events    EventAppender
}

// NewSettler builds a Settler against the same Activator that routed the
// task in the first place, so rerouting reuses its registry/clock.
func NewSettler(activator *activation.Activator, events EventAppender) *Settler {
	return &Settler{Activator: activator, Events: events}
}

// Reject transitions a REPORTED task to its reason code's target state and
// emits the matching TaskRejected/TaskQuarantined event.
func (s *Settler) Reject(ctx context.Context, taskRef, clusterID string, reason ReasonCode) (*SettlementResult, error) {
	target, ok := reasonTarget[reason]
	if !ok {
		return nil, fmt.Errorf("settlement: unknown reason code %q", reason)
	}
	if !activation.CanTransition(activation.StateReported, target) {
		return nil, fmt.Errorf("settlement: REPORTED -> %s is not a legal transition", target)
	}

	result := &SettlementResult{TaskRef: taskRef, Outcome: OutcomeRejected, Reason: reason, State: target, ClusterID: clusterID}

	eventType := eventstore.TaskRejected
	if target == activation.StateQuarantined {
		eventType = eventstore.TaskQuarantined
	}
	if s.Events != nil {
		if _, err := s.Events.Append(ctx, eventType, result, "settlement", clusterID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Accept transitions a REPORTED task to CLOSED.
func (s *Settler) Accept(ctx context.Context, taskRef, clusterID string) (*SettlementResult, error) {
	if !activation.CanTransition(activation.StateReported, activation.StateClosed) {
		return nil, fmt.Errorf("settlement: REPORTED -> CLOSED is not a legal transition")
	}
	result := &SettlementResult{TaskRef: taskRef, Outcome: OutcomeAccepted, State: activation.StateClosed, ClusterID: clusterID}
	if s.Events != nil {
		if _, err := s.Events.Append(ctx, eventstore.TaskClosed, result, "settlement", clusterID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Reroute handles a DECLINED or WITHDRAWN task (§4.10): it excludes every
// prior cluster attempt and tries the next eligible cluster. Exhaustion
// blocks the task and escalates to the owning Duke; escalation reuses
// DlqFallback (as pkg/validation does for exhausted retries) rather than
// inventing an event type §6.2's closed vocabulary does not carry.
func (s *Settler) Reroute(ctx context.Context, req activation.TaskRequirement, domain string, tier activation.Tier, scope string, ttl time.Duration, priorAttempts []string, states map[string]activation.ClusterState, owningDukeID string) (*SettlementResult, error) {
	excluded := make(map[string]bool, len(priorAttempts))
	for _, id := range priorAttempts {
		excluded[id] = true
	}

	act, err := s.Activator.Activate(ctx, req, domain, tier, scope, ttl, excluded, states)
	if err != nil {
		if _, ok := err.(activation.ErrNoEligibleCluster); ok {
			result := &SettlementResult{TaskRef: req.TaskRef, Outcome: OutcomeEscalated, State: activation.StateBlocked}
			if s.Events != nil {
				if _, appendErr := s.Events.Append(ctx, eventstore.DlqFallback, map[string]string{
					"task_ref": req.TaskRef, "escalated_to_duke": owningDukeID,
				}, "settlement", owningDukeID); appendErr != nil {
					return nil, appendErr
				}
			}
			return result, nil
		}
		return nil, err
	}

	return &SettlementResult{TaskRef: req.TaskRef, Outcome: OutcomeAccepted, State: act.State, ClusterID: act.ClusterID}, nil
}
