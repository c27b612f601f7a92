// Copyright 2025 Certen Protocol
//
// CessationManager executes the permanent, one-time shutdown of the writer
// (§4.3). It is a thin orchestration over Writer.Append: the integrity-case
// artifact must be the last write before the terminal event, both are
// already in the halt allowlist, and the flag itself is set by Writer as a
// side effect of committing CessationExecuted.

package eventstore

import "context"

// IntegrityCasePayload is the final artifact recorded immediately before
// cessation executes.
type IntegrityCasePayload struct {
	Reason  string `json:"reason"`
	Summary string `json:"summary"`
}

// CessationPayload is the terminal event's payload.
type CessationPayload struct {
	Reason           string `json:"reason"`
	ExecutedBy       string `json:"executed_by"`
	IntegrityCaseSeq int64  `json:"integrity_case_sequence"`
}

// CessationManager drives the two-step terminal write sequence.
type CessationManager struct {
	writer *Writer
}

// NewCessationManager wraps writer.
func NewCessationManager(writer *Writer) *CessationManager {
	return &CessationManager{writer: writer}
}

// Execute writes IntegrityCaseGenerated then CessationExecuted, in that
// order, then the store's cessation flag is permanently set. There is no
// further method to clear it; this is deliberate (§3.1: write-once).
func (c *CessationManager) Execute(ctx context.Context, reason, summary, executedBy, ownerID string) (*Event, *Event, error) {
	caseEvent, err := c.writer.Append(ctx, IntegrityCaseGenerated, IntegrityCasePayload{
		Reason:  reason,
		Summary: summary,
	}, executedBy, ownerID)
	if err != nil {
		return nil, nil, err
	}

	termEvent, err := c.writer.Append(ctx, CessationExecuted, CessationPayload{
		Reason:           reason,
		ExecutedBy:       executedBy,
		IntegrityCaseSeq: caseEvent.Sequence,
	}, executedBy, ownerID)
	if err != nil {
		return caseEvent, nil, err
	}
	return caseEvent, termEvent, nil
}
