// Copyright 2025 Certen Protocol
//
// HaltManager implements the dual-channel sticky halt (§4.3): a primary
// channel (the event store's own KV) and an independent secondary channel
// (a separate KV) must both report "clear" for the system to be considered
// operational. Disagreement between channels is treated as halted.

package eventstore

import (
	"encoding/json"
	"fmt"
	"time"
)

const haltQuietPeriod = 48 * time.Hour

// haltRecord is the payload stored on both channels.
type haltRecord struct {
	IsHalted    bool      `json:"is_halted"`
	Reason      string    `json:"reason"`
	TriggeredAt time.Time `json:"triggered_at"`
	TriggeredBy string    `json:"triggered_by"`
	ClearedAt   time.Time `json:"cleared_at,omitempty"`
	ClearedBy   string    `json:"cleared_by,omitempty"`
}

// HaltManager tracks the singleton HaltState across both channels.
type HaltManager struct {
	primary   KV
	secondary KV
}

// NewHaltManager wires the primary (event-store) and secondary (independent,
// out-of-band) channels. They must be backed by different storage so a
// single-store outage or bug cannot silently clear a halt.
func NewHaltManager(primary, secondary KV) *HaltManager {
	return &HaltManager{primary: primary, secondary: secondary}
}

func readHaltRecord(kv KV) (*haltRecord, error) {
	raw, err := kv.Get(keyHaltState)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &haltRecord{IsHalted: false}, nil
	}
	var r haltRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func writeHaltRecord(kv KV, r *haltRecord) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return kv.Set(keyHaltState, b)
}

// IsHalted reports the effective halt state: both channels must agree the
// system is clear, otherwise it is treated as halted (channel disagreement
// is itself a halt condition, never a reason to proceed).
func (m *HaltManager) IsHalted() (bool, error) {
	p, err := readHaltRecord(m.primary)
	if err != nil {
		return true, fmt.Errorf("halt: read primary channel: %w", err)
	}
	s, err := readHaltRecord(m.secondary)
	if err != nil {
		return true, fmt.Errorf("halt: read secondary channel: %w", err)
	}
	if p.IsHalted != s.IsHalted {
		return true, nil
	}
	return p.IsHalted, nil
}

// Trigger records a halt on both channels. Callers must write the
// HaltTriggered event to the log before observers can see this take effect
// (RT-2): the writer calls Trigger only after the event has committed.
func (m *HaltManager) Trigger(reason, triggeredBy string, at time.Time) error {
	rec := &haltRecord{IsHalted: true, Reason: reason, TriggeredAt: at, TriggeredBy: triggeredBy}
	if err := writeHaltRecord(m.primary, rec); err != nil {
		return fmt.Errorf("halt: write primary channel: %w", err)
	}
	if err := writeHaltRecord(m.secondary, rec); err != nil {
		return fmt.Errorf("halt: write secondary channel: %w", err)
	}
	return nil
}

// Clear ends a halt on both channels and starts the 48-hour quiet period.
// The caller is responsible for having already written the authorized
// HaltCleared event; Clear only updates the out-of-band state.
func (m *HaltManager) Clear(clearedBy string, at time.Time) error {
	rec := &haltRecord{IsHalted: false, ClearedAt: at, ClearedBy: clearedBy}
	if err := writeHaltRecord(m.primary, rec); err != nil {
		return fmt.Errorf("halt: clear primary channel: %w", err)
	}
	if err := writeHaltRecord(m.secondary, rec); err != nil {
		return fmt.Errorf("halt: clear secondary channel: %w", err)
	}
	return nil
}

// InQuietPeriod reports whether at falls within 48 hours of the most recent
// clear. Full-throughput operations are suppressed during this window, but
// new write operations remain permitted (a fresh halt resets the timer by
// construction: Trigger overwrites ClearedAt with the zero value).
func (m *HaltManager) InQuietPeriod(at time.Time) (bool, error) {
	p, err := readHaltRecord(m.primary)
	if err != nil {
		return false, fmt.Errorf("halt: read primary channel: %w", err)
	}
	if p.IsHalted || p.ClearedAt.IsZero() {
		return false, nil
	}
	return at.Before(p.ClearedAt.Add(haltQuietPeriod)), nil
}
