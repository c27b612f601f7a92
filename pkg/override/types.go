// Copyright 2025 Certen Protocol
//
// Override (Keeper Action) (§4.11): human operators with scoped elevated
// privileges. Every override is witnessed before it takes effect and
// counted against a rolling per-keeper threshold ladder.

package override

import "time"

// Kind distinguishes an ordinary keeper override from one invoked to force
// a reconciliation gate's outcome — both count against the same rolling
// thresholds, but are tagged distinctly in the event payload so an
// observer can tell why elevated privilege was used (see DESIGN.md's
// override-vs-reconciliation-override decision).
type Kind string

const (
	KindKeeperAction           Kind = "keeper_action"
	KindReconciliationOverride Kind = "reconciliation_override"
)

// Request is the caller-supplied description of an override before it is
// recorded.
type Request struct {
	KeeperID          string
	Kind              Kind
	Scope             string
	Duration          time.Duration
	Reason            string
	SpokenDeclaration string // e.g. "I accept attribution."
}

// ThresholdLevel is the escalation tier a keeper's rolling override count
// has reached (§4.11 point 2).
type ThresholdLevel string

const (
	ThresholdNone      ThresholdLevel = "none"
	ThresholdIncident  ThresholdLevel = "incident"   // >3 in a rolling day
	ThresholdWarning   ThresholdLevel = "warning"    // >=15 in rolling 365d
	ThresholdCritical  ThresholdLevel = "critical"   // >=18 in rolling 365d
	ThresholdHardBlock ThresholdLevel = "hard_block" // >=20 in rolling 365d
)

// Payload is the exact content that is canonically encoded, signed, and
// hash-chained into the OverrideInvoked event (§4.11: "Writes an
// OverrideInvoked event with keeper_id, scope, duration, reason, and an
// explicit spoken declaration field").
type Payload struct {
	KeeperID          string         `json:"keeper_id"`
	Kind              Kind           `json:"kind"`
	Scope             string         `json:"scope"`
	DurationSeconds   int64          `json:"duration_seconds"`
	Reason            string         `json:"reason"`
	SpokenDeclaration string         `json:"spoken_declaration"`
	InitiatedAt       time.Time      `json:"initiated_at"`
	PrevHash          string         `json:"prev_hash"`
	KeeperSignature   []byte         `json:"keeper_signature"`
	Threshold         ThresholdLevel `json:"threshold_level"`
}

// Result is what Invoke returns after the event is recorded.
type Result struct {
	Payload            Payload
	RollingDayCount    int
	Rolling365DayCount int
	Blocked            bool // hard block: further overrides require an authorizing ceremony
}
