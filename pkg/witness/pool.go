// Copyright 2025 Certen Protocol
//
// Pool tracks the active witness set and recent-use cooldown (§4.5).
// Grounded on the teacher's attestation Service, which tracked peer
// endpoints and a required-count for consensus; here the "peers" are
// witness archon IDs and the requirement is a configurable floor.

package witness

import "sync"

// Pool is the registry of eligible witnesses and their recent-use history.
type Pool struct {
	mu       sync.RWMutex
	active   map[string]bool
	lastUsed map[string]int64 // witness_id -> sequence of last use
	cooldown int64            // minimum sequence gap before reuse
}

// NewPool builds a pool with the given cooldown, measured in event
// sequence numbers (so cooldown is deterministic and replay-safe, unlike a
// wall-clock window).
func NewPool(cooldown int64) *Pool {
	return &Pool{active: make(map[string]bool), lastUsed: make(map[string]int64), cooldown: cooldown}
}

// Register adds witnessID to the active pool.
func (p *Pool) Register(witnessID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[witnessID] = true
}

// Deactivate removes witnessID from the active pool without erasing its
// use history (so anomaly detection over past events remains accurate).
func (p *Pool) Deactivate(witnessID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, witnessID)
}

// Eligible returns active witnesses not currently in cooldown relative to
// atSequence.
func (p *Pool) Eligible(atSequence int64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.active))
	for id := range p.active {
		if atSequence-p.lastUsed[id] >= p.cooldown || p.lastUsed[id] == 0 {
			out = append(out, id)
		}
	}
	return out
}

// MarkUsed records witnessID as used at atSequence.
func (p *Pool) MarkUsed(witnessID string, atSequence int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastUsed[witnessID] = atSequence
}

// Size returns the count of currently active witnesses.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}
