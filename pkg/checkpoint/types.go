// Copyright 2025 Certen Protocol
//
// Types backing the per-stage, per-unit checkpoint substrate (§4.8, §9
// "checkpoints as restartable generators"): each multi-phase pipeline stage
// is a finite sequence of idempotent units, and a Record is the persisted
// state of exactly one unit.

package checkpoint

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a unit has no checkpoint record.
var ErrNotFound = errors.New("checkpoint: unit not found")

// UnitStatus is the closed set of states a checkpointed unit can be in.
type UnitStatus string

const (
	StatusCompleted UnitStatus = "completed"
	StatusFailed    UnitStatus = "failed"
	// StatusCleared marks a unit invalidated by an explicit clear-checkpoints
	// request (§6.3). Cleared records are treated as not-found by Get/Has,
	// but their unit_id stays in the stage manifest so a CounterTracker
	// never reissues an ID a clear has retired.
	StatusCleared UnitStatus = "cleared"
)

// Record is one unit's persisted checkpoint.
type Record struct {
	Stage     string          `json:"stage"`
	UnitID    string          `json:"unit_id"`
	Status    UnitStatus      `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
