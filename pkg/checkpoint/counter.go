// Copyright 2025 Certen Protocol
//
// CounterTracker implements §4.8's "Counter monotonicity": identifiers like
// T-{ABBR}-NNN, R-{ABBR}-NNN, RR-{ABBR}-NNN, FR-{portfolio}-NNN, C-NNN are
// allocated monotonically within a producer, and on resume are reconstructed
// by scanning the highest seen ID per prefix rather than restarting at zero.

package checkpoint

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

var (
	taggedCounterID = regexp.MustCompile(`^([A-Za-z]+)-([A-Za-z0-9]+)-(\d+)$`)
	bareCounterID   = regexp.MustCompile(`^([A-Za-z]+)-(\d+)$`)
)

// CounterTracker allocates monotonically increasing NNN suffixes per kind
// (optionally qualified by an abbreviation/portfolio tag).
type CounterTracker struct {
	mu   sync.Mutex
	high map[string]int
}

// NewCounterTracker builds an empty tracker; call Observe for every ID found
// in existing checkpoints before resuming allocation.
func NewCounterTracker() *CounterTracker {
	return &CounterTracker{high: make(map[string]int)}
}

// Observe records an already-allocated ID so future Next calls never
// collide with it. IDs that don't match a recognized counter shape are
// ignored.
func (c *CounterTracker) Observe(id string) {
	kind, tag, n, ok := parseCounterID(id)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := counterKey(kind, tag)
	if n > c.high[key] {
		c.high[key] = n
	}
}

// Next allocates the next ID for kind (optionally tagged), e.g.
// Next("T", "SEC") -> "T-SEC-004", Next("C", "") -> "C-004".
func (c *CounterTracker) Next(kind, tag string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := counterKey(kind, tag)
	c.high[key]++
	if tag == "" {
		return fmt.Sprintf("%s-%03d", kind, c.high[key])
	}
	return fmt.Sprintf("%s-%s-%03d", kind, tag, c.high[key])
}

func counterKey(kind, tag string) string {
	if tag == "" {
		return kind
	}
	return kind + "-" + tag
}

func parseCounterID(id string) (kind, tag string, n int, ok bool) {
	if m := taggedCounterID.FindStringSubmatch(id); m != nil {
		num, err := strconv.Atoi(m[3])
		if err != nil {
			return "", "", 0, false
		}
		return m[1], m[2], num, true
	}
	if m := bareCounterID.FindStringSubmatch(id); m != nil {
		num, err := strconv.Atoi(m[2])
		if err != nil {
			return "", "", 0, false
		}
		return m[1], "", num, true
	}
	return "", "", 0, false
}
