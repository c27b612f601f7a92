// Copyright 2025 Certen Protocol
//
// Store implements head-pointer and event persistence over a KV, plus the
// cessation flag (§3.1 CessationFlag: write-once, never reverts to false).

package eventstore

import (
	"encoding/json"
	"fmt"
)

// headRecord tracks the last committed sequence and its content hash, so a
// fresh writer can resume the chain without replaying every event.
type headRecord struct {
	Sequence    int64  `json:"sequence"`
	ContentHash string `json:"content_hash"`
}

// Store is the durable event log. One Store must have exactly one writer
// (see Writer's single-writer-assumption doc comment); readers may be many.
type Store struct {
	kv KV
}

// NewStore wraps kv as an event store.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Head returns the current chain tip. A nil record with no error means the
// store is empty (sequence 0, prev_hash = GenesisHash).
func (s *Store) Head() (*headRecord, error) {
	raw, err := s.kv.Get(keyHead)
	if err != nil {
		return nil, fmt.Errorf("eventstore: read head: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var h headRecord
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("eventstore: decode head: %w", err)
	}
	return &h, nil
}

// GetEvent loads the event at sequence, or ErrNotFound if absent.
func (s *Store) GetEvent(sequence int64) (*Event, error) {
	raw, err := s.kv.Get(eventKey(sequence))
	if err != nil {
		return nil, fmt.Errorf("eventstore: read event %d: %w", sequence, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("eventstore: decode event %d: %w", sequence, err)
	}
	return &e, nil
}

// commit writes ev and advances the head pointer atomically (single KV
// batch), so a crash between the two writes is impossible by construction.
func (s *Store) commit(ev *Event) error {
	evBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventstore: marshal event: %w", err)
	}
	headBytes, err := json.Marshal(headRecord{Sequence: ev.Sequence, ContentHash: ev.ContentHash})
	if err != nil {
		return fmt.Errorf("eventstore: marshal head: %w", err)
	}
	return s.kv.SetBatch(map[string][]byte{
		string(eventKey(ev.Sequence)): evBytes,
		string(keyHead):               headBytes,
	})
}

// CessationExecuted reports whether the cessation flag has ever been set.
// §3.1: this flag is write-once and never reverts to false.
func (s *Store) CessationExecuted() (bool, error) {
	raw, err := s.kv.Get(keyCessation)
	if err != nil {
		return false, fmt.Errorf("eventstore: read cessation flag: %w", err)
	}
	return raw != nil && len(raw) == 1 && raw[0] == 1, nil
}

// setCessation sets the irreversible cessation flag. Never call this for
// any value other than true; there is deliberately no "unset" path.
func (s *Store) setCessation() error {
	return s.kv.Set(keyCessation, []byte{1})
}
