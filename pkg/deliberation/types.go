// Copyright 2025 Certen Protocol
//
// Motion and Vote entities driving the deliberation engine (§3.1, §4.6).

package deliberation

import "time"

// MotionType is the closed set of motion categories.
type MotionType string

const (
	MotionConstitutional MotionType = "constitutional"
	MotionPolicy         MotionType = "policy"
	MotionProcedural     MotionType = "procedural"
	MotionOpen           MotionType = "open"
)

// MotionStatus is the motion's status machine:
// PROPOSED -> DEBATED -> VOTING -> (RATIFIED | FAILED | WITHDRAWN).
type MotionStatus string

const (
	StatusProposed  MotionStatus = "PROPOSED"
	StatusDebated   MotionStatus = "DEBATED"
	StatusVoting    MotionStatus = "VOTING"
	StatusRatified  MotionStatus = "RATIFIED"
	StatusFailed    MotionStatus = "FAILED"
	StatusWithdrawn MotionStatus = "WITHDRAWN"
)

// Motion is one item of deliberation.
type Motion struct {
	MotionID     string       `json:"motion_id"`
	Title        string       `json:"title"`
	Text         string       `json:"text"`
	Type         MotionType   `json:"type"`
	ProposerID   string       `json:"proposer_id"`
	CreatedAt    time.Time    `json:"created_at"`
	Status       MotionStatus `json:"status"`
	DebateRounds int          `json:"debate_rounds_completed"`
}

// VoteChoice is the closed set of optimistic/validated vote outcomes.
type VoteChoice string

const (
	VoteAye     VoteChoice = "aye"
	VoteNay     VoteChoice = "nay"
	VoteAbstain VoteChoice = "abstain"
)

// Vote is one archon's submission against one motion. OptimisticChoice is
// the immediate regex-parsed guess; it may later be overridden by the
// validator pipeline (§4.7), which is recorded as a distinct VoteOverride
// event rather than a mutation of this struct.
type Vote struct {
	VoteID           string     `json:"vote_id"`
	MotionID         string     `json:"motion_id"`
	ArchonID         string     `json:"archon_id"`
	OptimisticChoice VoteChoice `json:"optimistic_choice"`
	RawText          string     `json:"raw_text"`
	CapturedAt       time.Time  `json:"captured_at"`
}

// Statement is one archon's contribution during a debate round. Archons do
// not see each other's in-progress statements until committed (FR9).
type Statement struct {
	MotionID string    `json:"motion_id"`
	Round    int       `json:"round"`
	ArchonID string    `json:"archon_id"`
	Text     string    `json:"text"`
	MadeAt   time.Time `json:"made_at"`
}

// Tally is the derived aggregate per motion (§3.1). P6: Ayes+Nays+Abstains
// must equal TotalVotes after every override application.
type Tally struct {
	Ayes, Nays, Abstains, TotalVotes int
}

// Valid checks the P6 invariant.
func (t Tally) Valid() bool { return t.Ayes+t.Nays+t.Abstains == t.TotalVotes }
