// Copyright 2025 Certen Protocol
//
// Engine orchestrates a Motion through its status machine (§4.6). Status
// transitions that have a corresponding closed-vocabulary event type are
// always accompanied by one (MotionProposed, MotionRatified, MotionFailed);
// DEBATED/VOTING/WITHDRAWN are in-memory bookkeeping only, since they have
// no dedicated event types.

package deliberation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

// Appender is the subset of eventstore.Writer that the engine needs.
type Appender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// MotionProposedPayload is the MotionProposed event payload.
type MotionProposedPayload struct {
	MotionID   string     `json:"motion_id"`
	Title      string     `json:"title"`
	Text       string     `json:"text"`
	Type       MotionType `json:"type"`
	ProposerID string     `json:"proposer_id"`
}

// StatementMadePayload is the StatementMade event payload.
type StatementMadePayload struct {
	MotionID string `json:"motion_id"`
	Round    int    `json:"round"`
	ArchonID string `json:"archon_id"`
	Text     string `json:"text"`
}

// VoteCastPayload is the VoteCast event payload.
type VoteCastPayload struct {
	VoteID           string     `json:"vote_id"`
	MotionID         string     `json:"motion_id"`
	ArchonID         string     `json:"archon_id"`
	OptimisticChoice VoteChoice `json:"optimistic_choice"`
	RawText          string     `json:"raw_text"`
}

// MotionRatifiedPayload / MotionFailedPayload carry the final tally.
type MotionRatifiedPayload struct {
	MotionID string `json:"motion_id"`
	Ayes     int    `json:"ayes"`
	Nays     int    `json:"nays"`
	Abstains int    `json:"abstains"`
}

type MotionFailedPayload struct {
	MotionID string `json:"motion_id"`
	Ayes     int    `json:"ayes"`
	Nays     int    `json:"nays"`
	Abstains int    `json:"abstains"`
}

// ErrWrongStatus is returned when a transition is attempted from the wrong
// status.
type ErrWrongStatus struct {
	MotionID string
	Want     MotionStatus
	Got      MotionStatus
}

func (e *ErrWrongStatus) Error() string {
	return fmt.Sprintf("deliberation: motion %s is %s, expected %s", e.MotionID, e.Got, e.Want)
}

// Engine tracks in-flight motions and drives their event-backed lifecycle.
type Engine struct {
	mu      sync.Mutex
	writer  Appender
	clock   func() time.Time
	motions map[string]*Motion
	votes   map[string][]Vote // motionID -> votes cast so far
}

// NewEngine builds a deliberation Engine.
func NewEngine(writer Appender, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{writer: writer, clock: clock, motions: make(map[string]*Motion), votes: make(map[string][]Vote)}
}

// Propose writes MotionProposed and opens the motion for debate.
func (e *Engine) Propose(ctx context.Context, motionID, title, text string, mtype MotionType, proposerID string) (*Motion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.motions[motionID]; exists {
		return nil, fmt.Errorf("deliberation: motion %s already proposed", motionID)
	}

	if _, err := e.writer.Append(ctx, eventstore.MotionProposed, MotionProposedPayload{
		MotionID: motionID, Title: title, Text: text, Type: mtype, ProposerID: proposerID,
	}, proposerID, proposerID); err != nil {
		return nil, err
	}

	m := &Motion{
		MotionID: motionID, Title: title, Text: text, Type: mtype,
		ProposerID: proposerID, CreatedAt: e.clock(), Status: StatusProposed,
	}
	e.motions[motionID] = m
	return m, nil
}

// RecordStatement writes one archon's debate-round contribution. Archons
// never see each other's in-progress statements: this call only commits
// once the archon's full statement text is ready (no-preview, FR9).
func (e *Engine) RecordStatement(ctx context.Context, motionID string, round int, archonID, text string) error {
	e.mu.Lock()
	m, ok := e.motions[motionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("deliberation: unknown motion %s", motionID)
	}
	if _, err := e.writer.Append(ctx, eventstore.StatementMade, StatementMadePayload{
		MotionID: motionID, Round: round, ArchonID: archonID, Text: text,
	}, archonID, archonID); err != nil {
		return err
	}
	e.mu.Lock()
	if round > m.DebateRounds {
		m.DebateRounds = round
	}
	m.Status = StatusDebated
	e.mu.Unlock()
	return nil
}

// OpenVoting transitions DEBATED (or PROPOSED, skipping debate) -> VOTING.
func (e *Engine) OpenVoting(motionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.motions[motionID]
	if !ok {
		return fmt.Errorf("deliberation: unknown motion %s", motionID)
	}
	if m.Status != StatusDebated && m.Status != StatusProposed {
		return &ErrWrongStatus{MotionID: motionID, Want: StatusDebated, Got: m.Status}
	}
	m.Status = StatusVoting
	return nil
}

// CaptureVote optimistically parses rawText and writes VoteCast immediately
// (§4.6 step 3). The raw text is preserved for the async validator bus.
func (e *Engine) CaptureVote(ctx context.Context, voteID, motionID, archonID, rawText string) (*Vote, error) {
	e.mu.Lock()
	m, ok := e.motions[motionID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("deliberation: unknown motion %s", motionID)
	}
	if m.Status != StatusVoting {
		return nil, &ErrWrongStatus{MotionID: motionID, Want: StatusVoting, Got: m.Status}
	}

	choice := ParseOptimisticVote(rawText)
	if _, err := e.writer.Append(ctx, eventstore.VoteCast, VoteCastPayload{
		VoteID: voteID, MotionID: motionID, ArchonID: archonID, OptimisticChoice: choice, RawText: rawText,
	}, archonID, archonID); err != nil {
		return nil, err
	}

	v := Vote{VoteID: voteID, MotionID: motionID, ArchonID: archonID, OptimisticChoice: choice, RawText: rawText, CapturedAt: e.clock()}
	e.mu.Lock()
	e.votes[motionID] = append(e.votes[motionID], v)
	e.mu.Unlock()
	return &v, nil
}

// Tally computes the current optimistic tally for motionID. Callers should
// recompute after any VoteOverride is applied (§4.7) rather than caching.
func (e *Engine) Tally(motionID string) Tally {
	e.mu.Lock()
	defer e.mu.Unlock()
	var t Tally
	for _, v := range e.votes[motionID] {
		t.TotalVotes++
		switch v.OptimisticChoice {
		case VoteAye:
			t.Ayes++
		case VoteNay:
			t.Nays++
		default:
			t.Abstains++
		}
	}
	return t
}

// Ratify writes MotionRatified with the final tally. Callers must have
// already passed the motion through the reconciliation gate (§4.7).
func (e *Engine) Ratify(ctx context.Context, motionID, actorID string, t Tally) error {
	return e.conclude(ctx, motionID, actorID, StatusRatified, eventstore.MotionRatified, MotionRatifiedPayload{
		MotionID: motionID, Ayes: t.Ayes, Nays: t.Nays, Abstains: t.Abstains,
	})
}

// Fail writes MotionFailed with the final tally.
func (e *Engine) Fail(ctx context.Context, motionID, actorID string, t Tally) error {
	return e.conclude(ctx, motionID, actorID, StatusFailed, eventstore.MotionFailed, MotionFailedPayload{
		MotionID: motionID, Ayes: t.Ayes, Nays: t.Nays, Abstains: t.Abstains,
	})
}

func (e *Engine) conclude(ctx context.Context, motionID, actorID string, newStatus MotionStatus, eventType eventstore.EventType, payload interface{}) error {
	e.mu.Lock()
	m, ok := e.motions[motionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("deliberation: unknown motion %s", motionID)
	}
	if m.Status != StatusVoting {
		return &ErrWrongStatus{MotionID: motionID, Want: StatusVoting, Got: m.Status}
	}
	if _, err := e.writer.Append(ctx, eventType, payload, actorID, actorID); err != nil {
		return err
	}
	e.mu.Lock()
	m.Status = newStatus
	e.mu.Unlock()
	return nil
}

// Withdraw marks a motion WITHDRAWN. There is no dedicated closed-vocabulary
// event for withdrawal, so this is an in-memory status transition only.
func (e *Engine) Withdraw(motionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.motions[motionID]
	if !ok {
		return fmt.Errorf("deliberation: unknown motion %s", motionID)
	}
	if m.Status == StatusRatified || m.Status == StatusFailed {
		return &ErrWrongStatus{MotionID: motionID, Got: m.Status}
	}
	m.Status = StatusWithdrawn
	return nil
}

// Get returns the current in-memory motion state.
func (e *Engine) Get(motionID string) (*Motion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.motions[motionID]
	return m, ok
}

// VoteIDs returns every vote_id cast so far under motionID, in cast order,
// for a reconciliation gate to await.
func (e *Engine) VoteIDs(motionID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	votes := e.votes[motionID]
	ids := make([]string, len(votes))
	for i, v := range votes {
		ids[i] = v.VoteID
	}
	return ids
}
