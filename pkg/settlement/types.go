// Copyright 2025 Certen Protocol
//
// Task Settlement (§4.10): terminal disposition of an activated task —
// accepted, rejected (with a reason code), or escalated — plus the
// rerouter invoked when a cluster declines or withdraws.

package settlement

import "github.com/archon72/conclave/pkg/activation"

// ReasonCode is the closed set of rejection reasons (§4.10 table).
type ReasonCode string

const (
	ReasonOutcomeNotMet          ReasonCode = "OUTCOME_NOT_MET"
	ReasonConstraintViolation    ReasonCode = "CONSTRAINT_VIOLATION"
	ReasonScopeDrift             ReasonCode = "SCOPE_DRIFT"
	ReasonUnsafeContent          ReasonCode = "UNSAFE_CONTENT"
	ReasonProvenanceInsufficient ReasonCode = "PROVENANCE_INSUFFICIENT"
)

// reasonTarget maps each reason code to the TaskState a REPORTED task lands
// in (§4.10 table).
var reasonTarget = map[ReasonCode]activation.TaskState{
	ReasonOutcomeNotMet:          activation.StateRejected,
	ReasonConstraintViolation:    activation.StateQuarantined,
	ReasonScopeDrift:             activation.StateRejected,
	ReasonUnsafeContent:          activation.StateQuarantined,
	ReasonProvenanceInsufficient: activation.StateRejected,
}

// Outcome is the terminal disposition of one settlement decision.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeEscalated Outcome = "escalated"
)

// SettlementResult is one task's terminal settlement record.
type SettlementResult struct {
	TaskRef   string               `json:"task_ref"`
	Outcome   Outcome              `json:"outcome"`
	Reason    ReasonCode           `json:"reason,omitempty"`
	State     activation.TaskState `json:"state"`
	ClusterID string               `json:"cluster_id,omitempty"`
}
