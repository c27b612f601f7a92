// Copyright 2025 Certen Protocol

package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/registry"
)

// EventAppender is the narrow slice of eventstore.Writer this package needs.
type EventAppender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// Activator runs §4.9 end to end: match, gate-check, lease, activate.
type Activator struct {
	Registry *registry.Registry
	Events   EventAppender
	Clock    func() time.Time
}

// NewActivator builds an Activator with a real-time clock.
func NewActivator(reg *registry.Registry, events EventAppender) *Activator {
	return &Activator{Registry: reg, Events: events, Clock: time.Now}
}

// ErrNoEligibleCluster is returned when matching finds nothing.
type ErrNoEligibleCluster struct{ TaskRef string }

func (e ErrNoEligibleCluster) Error() string {
	return fmt.Sprintf("activation: no eligible cluster for task %s", e.TaskRef)
}

// ErrConsentPolicyViolation is returned when a matched cluster's consent
// policy does not meet the constitutional floor (§4.9: both fields are
// mandatory, never defaulted).
type ErrConsentPolicyViolation struct{ ClusterID string }

func (e ErrConsentPolicyViolation) Error() string {
	return fmt.Sprintf("activation: cluster %s consent policy does not meet the constitutional floor", e.ClusterID)
}

// Activate matches req against the registry's cluster directory, verifies
// consent policy and tier gates, and returns a routed TaskActivation.
func (a *Activator) Activate(ctx context.Context, req TaskRequirement, domain string, tier Tier, scope string, ttl time.Duration, excluded map[string]bool, states map[string]ClusterState) (*TaskActivation, error) {
	matches := MatchClusters(req, a.Registry.Clusters, states, 1, excluded)
	if len(matches) == 0 {
		return nil, ErrNoEligibleCluster{TaskRef: req.TaskRef}
	}
	cluster := matches[0]

	if !cluster.ConsentPolicy.RequiresExplicitAcceptance || !cluster.ConsentPolicy.RefusalIsPenaltyFree {
		return nil, ErrConsentPolicyViolation{ClusterID: cluster.ID}
	}

	authLevel, ok := ParseAuthLevel(cluster.StewardAuthLevel)
	if !ok {
		return nil, fmt.Errorf("activation: cluster %s has unrecognized auth level %q", cluster.ID, cluster.StewardAuthLevel)
	}

	now := a.Clock()
	lease := PowerLease{
		LeaseID:   "lease-" + req.TaskRef,
		TaskRef:   req.TaskRef,
		Tier:      tier,
		AuthLevel: authLevel,
		Scope:     scope,
		TTL:       ttl,
		Gates:     mandatoryGates[tier],
		IssuedAt:  now,
	}

	state, err := advance(StateAuthorized, StateActivated, StateRouted)
	if err != nil {
		return nil, err
	}

	activation := &TaskActivation{
		TaskRef:           req.TaskRef,
		ClusterID:         cluster.ID,
		FacilitatorEarlID: a.Registry.EarlForDomain(domain),
		Lease:             lease,
		State:             state,
		ActivatedAt:       now,
	}

	if a.Events != nil {
		if _, err := a.Events.Append(ctx, eventstore.TaskActivated, activation, "activation", cluster.ID); err != nil {
			return nil, err
		}
	}
	return activation, nil
}

// advance walks a fixed sequence of TaskState transitions, rejecting the
// whole activation if any hop is not in the §4.9 state machine.
func advance(states ...TaskState) (TaskState, error) {
	for i := 1; i < len(states); i++ {
		if !CanTransition(states[i-1], states[i]) {
			return "", fmt.Errorf("activation: illegal transition %s -> %s", states[i-1], states[i])
		}
	}
	return states[len(states)-1], nil
}
