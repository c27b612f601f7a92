// Copyright 2025 Certen Protocol

package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/activation"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/registry"
)

type recordingEvents struct {
	types []eventstore.EventType
}

func (r *recordingEvents) Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error) {
	r.types = append(r.types, eventType)
	return &eventstore.Event{EventType: eventType}, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return reg
}

func allActiveStates(reg *registry.Registry) map[string]activation.ClusterState {
	states := make(map[string]activation.ClusterState, len(reg.Clusters))
	for _, c := range reg.Clusters {
		states[c.ID] = activation.ClusterState{ClusterID: c.ID, Status: "active", AvailabilityStatus: "available"}
	}
	return states
}

func TestRejectRoutesByReasonCode(t *testing.T) {
	events := &recordingEvents{}
	settler := NewSettler(nil, events)

	result, err := settler.Reject(context.Background(), "task-1", "cluster-alpha", ReasonConstraintViolation)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if result.State != activation.StateQuarantined {
		t.Fatalf("expected quarantined state for constraint violation, got %s", result.State)
	}
	if events.types[0] != eventstore.TaskQuarantined {
		t.Fatalf("expected TaskQuarantined event, got %v", events.types)
	}

	result, err = settler.Reject(context.Background(), "task-2", "cluster-alpha", ReasonScopeDrift)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if result.State != activation.StateRejected {
		t.Fatalf("expected rejected state for scope drift, got %s", result.State)
	}
}

func TestAcceptClosesTask(t *testing.T) {
	events := &recordingEvents{}
	settler := NewSettler(nil, events)
	result, err := settler.Accept(context.Background(), "task-1", "cluster-alpha")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if result.State != activation.StateClosed {
		t.Fatalf("expected closed state, got %s", result.State)
	}
	if events.types[0] != eventstore.TaskClosed {
		t.Fatalf("expected TaskClosed event, got %v", events.types)
	}
}

func TestRejectUnknownReasonCodeFails(t *testing.T) {
	settler := NewSettler(nil, nil)
	if _, err := settler.Reject(context.Background(), "task-1", "cluster-alpha", ReasonCode("NOT_A_REASON")); err == nil {
		t.Fatal("expected unknown reason code to be rejected")
	}
}

func TestRerouteTriesNextEligibleClusterExcludingPriorAttempts(t *testing.T) {
	reg := testRegistry(t)
	states := allActiveStates(reg)
	activator := &activation.Activator{Registry: reg, Clock: func() time.Time { return time.Unix(0, 0) }}
	settler := NewSettler(activator, nil)

	req := activation.TaskRequirement{TaskRef: "task-1", RequiredTags: []string{"compute"}, SensitivityGate: activation.AuthStandard}
	result, err := settler.Reroute(context.Background(), req, "infrastructure", activation.Tier0ReadOnly, "scope-a", time.Hour, []string{"cluster-alpha"}, states, "duke-01")
	if err != nil {
		t.Fatalf("Reroute: %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("expected a successful reroute, got %s", result.Outcome)
	}
	if result.ClusterID == "cluster-alpha" {
		t.Fatal("expected the excluded prior attempt to be skipped")
	}
}

func TestRerouteExhaustionEscalatesAndBlocks(t *testing.T) {
	reg := testRegistry(t)
	states := allActiveStates(reg)
	activator := &activation.Activator{Registry: reg, Clock: func() time.Time { return time.Unix(0, 0) }}
	events := &recordingEvents{}
	settler := NewSettler(activator, events)

	allClusterIDs := make([]string, 0, len(reg.Clusters))
	for _, c := range reg.Clusters {
		allClusterIDs = append(allClusterIDs, c.ID)
	}

	req := activation.TaskRequirement{TaskRef: "task-1", RequiredTags: []string{"compute"}, SensitivityGate: activation.AuthStandard}
	result, err := settler.Reroute(context.Background(), req, "infrastructure", activation.Tier0ReadOnly, "scope-a", time.Hour, allClusterIDs, states, "duke-01")
	if err != nil {
		t.Fatalf("Reroute: %v", err)
	}
	if result.Outcome != OutcomeEscalated {
		t.Fatalf("expected escalated outcome once every cluster is excluded, got %s", result.Outcome)
	}
	if result.State != activation.StateBlocked {
		t.Fatalf("expected blocked state, got %s", result.State)
	}
	if events.types[0] != eventstore.DlqFallback {
		t.Fatalf("expected DlqFallback escalation event, got %v", events.types)
	}
}
