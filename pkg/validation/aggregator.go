// Copyright 2025 Certen Protocol
//
// Aggregator maintains per-vote_id consensus state: pending validators,
// results so far, attempt count (§4.7). Agreement rule: Secretary-Text and
// Secretary-JSON must agree on the validated choice; Witness only records
// agreement/dissent. On exhausted retries the vote is never dropped — it
// falls back to the optimistic choice with a witnessed DlqFallback event.

package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
)

// Appender is the subset of eventstore.Writer the aggregator needs.
type Appender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// TallyChecker lets the aggregator hand P6 enforcement back to the
// deliberation layer after applying an override, rather than recomputing
// a tally itself.
type TallyChecker interface {
	CheckP6(ctx context.Context, motionID string) error
}

// Dispatcher re-requests validation for a vote that disagreed, bumping the
// attempt counter.
type Dispatcher interface {
	Redispatch(ctx context.Context, voteID, motionID, rawText string, optimistic deliberation.VoteChoice, attempt int) error
}

// VoteOverridePayload is written when the validated choice differs from
// the optimistic one.
type VoteOverridePayload struct {
	VoteID    string                  `json:"vote_id"`
	MotionID  string                  `json:"motion_id"`
	OldChoice deliberation.VoteChoice `json:"old_choice"`
	NewChoice deliberation.VoteChoice `json:"new_choice"`
}

// DlqFallbackPayload is written when retries are exhausted without
// agreement; the vote keeps its optimistic choice, explicitly marked.
type DlqFallbackPayload struct {
	VoteID           string                  `json:"vote_id"`
	MotionID         string                  `json:"motion_id"`
	OptimisticChoice deliberation.VoteChoice `json:"optimistic_choice"`
	Reason           string                  `json:"reason"`
}

type voteState struct {
	MotionID         string
	OptimisticChoice deliberation.VoteChoice
	RawText          string
	Results          map[string]ValidationResult
	Attempts         int
	Outcome          Outcome
}

// Aggregator implements the §4.7 consensus-aggregation algorithm.
type Aggregator struct {
	mu          sync.Mutex
	state       map[string]*voteState // vote_id -> state
	maxAttempts int
	writer      Appender
	tally       TallyChecker
	dispatch    Dispatcher
	clock       func() time.Time
}

// NewAggregator builds an Aggregator. maxAttempts defaults to 3 (§4.7).
func NewAggregator(writer Appender, tally TallyChecker, dispatch Dispatcher, maxAttempts int, clock func() time.Time) *Aggregator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		state: make(map[string]*voteState), maxAttempts: maxAttempts,
		writer: writer, tally: tally, dispatch: dispatch, clock: clock,
	}
}

// RegisterPending starts tracking voteID, recording its optimistic choice
// so a dlq fallback or P6 check has something to compare against.
func (a *Aggregator) RegisterPending(voteID, motionID, rawText string, optimistic deliberation.VoteChoice) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state[voteID] = &voteState{
		MotionID: motionID, OptimisticChoice: optimistic, RawText: rawText,
		Results: make(map[string]ValidationResult), Attempts: 1, Outcome: OutcomePending,
	}
}

// SetDispatcher wires the redispatch callback after construction, breaking
// the Aggregator/Dispatcher constructor cycle (the dispatcher needs the
// aggregator to exist first, for its own synchronous fallback path).
func (a *Aggregator) SetDispatcher(d Dispatcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatch = d
}

// Outcome reports the current outcome of voteID, if known.
func (a *Aggregator) Outcome(voteID string) (Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.state[voteID]
	if !ok {
		return OutcomePending, false
	}
	return st.Outcome, true
}

// Ingest processes one ValidationResult and returns the vote's outcome so
// far. V2: results for a vote_id the aggregator never registered (outside
// the active session) are rejected rather than silently accepted.
func (a *Aggregator) Ingest(ctx context.Context, result ValidationResult) (Outcome, error) {
	a.mu.Lock()
	st, ok := a.state[result.VoteID]
	if !ok {
		a.mu.Unlock()
		return OutcomePending, fmt.Errorf("validation: vote_id %s not registered in the active session", result.VoteID)
	}
	st.Results[result.ValidatorID] = result

	secText, haveText := st.Results[RoleSecretaryText]
	secJSON, haveJSON := st.Results[RoleSecretaryJSON]
	if !haveText || !haveJSON {
		a.mu.Unlock()
		return OutcomePending, nil
	}

	agree := secText.ValidatedChoice == secJSON.ValidatedChoice
	motionID, optimistic, rawText := st.MotionID, st.OptimisticChoice, st.RawText
	voteID := result.VoteID

	if agree {
		st.Outcome = OutcomeValidated
		validated := secText.ValidatedChoice
		a.mu.Unlock()

		if validated != optimistic {
			if _, err := a.writer.Append(ctx, eventstore.VoteOverride, VoteOverridePayload{
				VoteID: voteID, MotionID: motionID, OldChoice: optimistic, NewChoice: validated,
			}, RoleWitness, RoleWitness); err != nil {
				return OutcomeValidated, fmt.Errorf("validation: write vote override: %w", err)
			}
			if a.tally != nil {
				if err := a.tally.CheckP6(ctx, motionID); err != nil {
					return OutcomeValidated, fmt.Errorf("validation: P6 check after override: %w", err)
				}
			}
		}
		return OutcomeValidated, nil
	}

	st.Attempts++
	attempts := st.Attempts
	if attempts > a.maxAttempts {
		st.Outcome = OutcomeDlqFallback
		st.Results = map[string]ValidationResult{}
		a.mu.Unlock()

		if _, err := a.writer.Append(ctx, eventstore.DlqFallback, DlqFallbackPayload{
			VoteID: voteID, MotionID: motionID, OptimisticChoice: optimistic,
			Reason: "validator disagreement exhausted retries",
		}, RoleWitness, RoleWitness); err != nil {
			return OutcomeDlqFallback, fmt.Errorf("validation: write dlq fallback: %w", err)
		}
		return OutcomeDlqFallback, nil
	}

	st.Outcome = OutcomePending
	st.Results = make(map[string]ValidationResult)
	a.mu.Unlock()

	if a.dispatch != nil {
		if err := a.dispatch.Redispatch(ctx, voteID, motionID, rawText, optimistic, attempts); err != nil {
			return OutcomePending, fmt.Errorf("validation: redispatch: %w", err)
		}
	}
	return OutcomePending, nil
}
