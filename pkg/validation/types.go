// Copyright 2025 Certen Protocol
//
// Types for the async vote validator pipeline (§4.7): optimistic regex
// votes are re-checked here, off the hot debate/vote path, by two
// independent semantic validators plus a witness that records agreement.

package validation

import (
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
)

// Validator role identities. All three are distinct archon identities.
const (
	RoleSecretaryText = "Secretary-Text"
	RoleSecretaryJSON = "Secretary-JSON"
	RoleWitness       = "Witness"
)

// PendingValidation is published to the pending-validation stream
// (partition key = motion_id) the instant a vote is optimistically cast.
type PendingValidation struct {
	VoteID           string                  `json:"vote_id"`
	MotionID         string                  `json:"motion_id"`
	ArchonID         string                  `json:"archon_id"`
	RawText          string                  `json:"raw_text"`
	OptimisticChoice deliberation.VoteChoice `json:"optimistic_choice"`
}

// ValidationRequest is dispatched to a validator's own partition
// (validation-requests, partition key = validator_id).
type ValidationRequest struct {
	VoteID           string                  `json:"vote_id"`
	MotionID         string                  `json:"motion_id"`
	RawText          string                  `json:"raw_text"`
	ValidatorID      string                  `json:"validator_id"`
	Attempt          int                     `json:"attempt"`
	OptimisticChoice deliberation.VoteChoice `json:"optimistic_choice"`
}

// ValidationResult is one (vote, validator) outcome (§3.1).
type ValidationResult struct {
	VoteID               string                  `json:"vote_id"`
	ValidatorID          string                  `json:"validator_id"`
	ValidatedChoice      deliberation.VoteChoice `json:"validated_choice"`
	AgreesWithOptimistic bool                    `json:"agrees_with_optimistic"`
	Attempts             int                     `json:"attempts"`
	ReasonText           string                  `json:"reason_text"`
	ProducedAt           time.Time               `json:"produced_at"`
}

// Outcome is the terminal disposition of one vote_id in the aggregator.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeValidated   Outcome = "validated"
	OutcomeDlqFallback Outcome = "dlq_fallback_applied"
)
