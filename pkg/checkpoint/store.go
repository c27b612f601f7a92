// Copyright 2025 Certen Protocol
//
// Store is the "program counter" of §9's restartable-generator model: the
// set of records on disk IS the resumption state. It shares the same
// KV/cometbft-db backend as the event store (see pkg/eventstore/kv.go and
// kv_cometbft.go) rather than raw file I/O, following the repeated
// per-artifact persistence pattern in the teacher's pkg/database
// repositories (one row per artifact, status-field transitions instead of
// physical deletes).

package checkpoint

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/archon72/conclave/pkg/canonical"
)

// KV mirrors eventstore.KV so this package does not need to import
// pkg/eventstore purely to reuse its storage contract.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	SetBatch(pairs map[string][]byte) error
}

type manifest struct {
	UnitIDs []string `json:"unit_ids"`
}

// Store persists one Record per (stage, unit_id).
type Store struct {
	kv    KV
	mu    sync.Mutex
	clock func() time.Time
}

// NewStore builds a Store over kv. clock defaults to time.Now.
func NewStore(kv KV, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{kv: kv, clock: clock}
}

func recordKey(stage, unitID string) []byte {
	return []byte("checkpoint:" + stage + ":unit:" + unitID)
}

func manifestKey(stage string) []byte {
	return []byte("checkpoint:" + stage + ":manifest")
}

// Put persists rec, stamping CreatedAt/UpdatedAt and registering unitID in
// the stage's manifest if this is the first time it has been seen.
func (s *Store) Put(stage string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Stage = stage

	data, err := canonical.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal record %s/%s: %w", stage, rec.UnitID, err)
	}

	pairs := map[string][]byte{string(recordKey(stage, rec.UnitID)): data}

	mf, err := s.getManifestLocked(stage)
	if err != nil {
		return err
	}
	if !containsString(mf.UnitIDs, rec.UnitID) {
		mf.UnitIDs = append(mf.UnitIDs, rec.UnitID)
		sort.Strings(mf.UnitIDs)
		mdata, err := json.Marshal(mf)
		if err != nil {
			return fmt.Errorf("checkpoint: marshal manifest %s: %w", stage, err)
		}
		pairs[string(manifestKey(stage))] = mdata
	}

	return s.kv.SetBatch(pairs)
}

// Get returns unitID's record, or ErrNotFound if absent or cleared.
func (s *Store) Get(stage, unitID string) (*Record, error) {
	raw, err := s.kv.Get(recordKey(stage, unitID))
	if err != nil || raw == nil {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal record %s/%s: %w", stage, unitID, err)
	}
	if rec.Status == StatusCleared {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Has reports whether unitID has a non-cleared checkpoint record.
func (s *Store) Has(stage, unitID string) bool {
	_, err := s.Get(stage, unitID)
	return err == nil
}

// ListUnitIDs returns every unit_id ever written for stage, including
// cleared ones (needed so CounterTracker never reissues a retired ID).
func (s *Store) ListUnitIDs(stage string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mf, err := s.getManifestLocked(stage)
	if err != nil {
		return nil, err
	}
	return mf.UnitIDs, nil
}

// ListCompleted returns every unit in stage currently in StatusCompleted.
func (s *Store) ListCompleted(stage string) ([]*Record, error) {
	ids, err := s.ListUnitIDs(stage)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, id := range ids {
		rec, err := s.Get(stage, id)
		if err != nil {
			continue
		}
		if rec.Status == StatusCompleted {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clear invalidates every unit currently recorded for stage (§6.3
// --clear-checkpoints): each record is overwritten with StatusCleared rather
// than physically removed, consistent with the KV's append-only contract.
func (s *Store) Clear(stage string) error {
	ids, err := s.ListUnitIDs(stage)
	if err != nil {
		return err
	}
	now := s.clock()
	pairs := make(map[string][]byte, len(ids))
	for _, id := range ids {
		rec := &Record{Stage: stage, UnitID: id, Status: StatusCleared, CreatedAt: now, UpdatedAt: now}
		data, err := canonical.Marshal(rec)
		if err != nil {
			return fmt.Errorf("checkpoint: marshal cleared record %s/%s: %w", stage, id, err)
		}
		pairs[string(recordKey(stage, id))] = data
	}
	if len(pairs) == 0 {
		return nil
	}
	return s.kv.SetBatch(pairs)
}

func (s *Store) getManifestLocked(stage string) (*manifest, error) {
	raw, err := s.kv.Get(manifestKey(stage))
	if err != nil || raw == nil {
		return &manifest{}, nil
	}
	var mf manifest
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal manifest %s: %w", stage, err)
	}
	return &mf, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
