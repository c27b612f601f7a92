// Copyright 2025 Certen Protocol
//
// Registry is the in-memory cache of key temporal-validity windows. The
// event log (KeyRegistered / KeyDeactivated / KeyEmergencyRevoked) is the
// durable source of truth; Registry is what a running process rebuilds by
// replaying those events, and what KeyManager mutates going forward.

package signing

import (
	"sort"
	"sync"
	"time"
)

const rotationOverlap = 30 * 24 * time.Hour

// Registry holds, per owner, the full history of key validity windows.
type Registry struct {
	mu   sync.RWMutex
	keys map[string][]KeyRecord // ownerID -> windows, sorted by ActiveFrom
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string][]KeyRecord)}
}

// Add inserts a new key window for its owner, maintaining ActiveFrom order.
func (r *Registry) Add(rec KeyRecord) error {
	if rec.OwnerID == "" {
		return ErrOwnerRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[rec.OwnerID] = append(r.keys[rec.OwnerID], rec)
	sort.Slice(r.keys[rec.OwnerID], func(i, j int) bool {
		return r.keys[rec.OwnerID][i].ActiveFrom.Before(r.keys[rec.OwnerID][j].ActiveFrom)
	})
	return nil
}

// SetActiveUntil truncates keyID's validity window, used by Rotate (30-day
// overlap) and EmergencyRevoke (immediate, bypassing the overlap).
func (r *Registry) SetActiveUntil(ownerID, keyID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys[ownerID] {
		if k.KeyID == keyID {
			r.keys[ownerID][i].ActiveUntil = until
			return nil
		}
	}
	return ErrKeyNotFound
}

// GetActiveAt returns the key whose window covers at, so that a signature
// is always checked against the key valid at signing time, never at
// verification time.
func (r *Registry) GetActiveAt(ownerID string, at time.Time) (*KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys[ownerID] {
		if k.coversTimestamp(at) {
			rec := k
			return &rec, nil
		}
	}
	return nil, ErrNoActiveKey
}

// List returns all known windows for ownerID, most recent first.
func (r *Registry) List(ownerID string) []KeyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]KeyRecord, len(r.keys[ownerID]))
	copy(out, r.keys[ownerID])
	sort.Slice(out, func(i, j int) bool { return out[i].ActiveFrom.After(out[j].ActiveFrom) })
	return out
}
