// Copyright 2025 Certen Protocol
//
// Hard and soft lint for TaskDrafts (§4.8). Hard lint rejects a draft
// outright; soft lint never rejects, it only signals a ProvenanceWeakMapping
// event for the caller to emit.

package decomposition

import (
	"fmt"
	"regexp"
	"strings"
)

var requirementIDPattern = regexp.MustCompile(`\b(FR|NFR)-[A-Za-z0-9]+-\d+\b`)

// lintHard rejects a TaskDraft failing any mandatory structural check.
func lintHard(d TaskDraft) error {
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("decomposition: empty description")
	}
	if len(d.ExpectedOutcomes) < 2 {
		return fmt.Errorf("decomposition: expected_outcomes must have at least 2 entries, got %d", len(d.ExpectedOutcomes))
	}
	for _, o := range d.ExpectedOutcomes {
		if nonLegibleOutcomes[strings.ToLower(strings.TrimSpace(o))] {
			return fmt.Errorf("decomposition: non-legible expected outcome %q", o)
		}
	}
	if len(d.CapabilityTags) == 0 {
		return fmt.Errorf("decomposition: capability_tags must be non-empty")
	}
	if d.EffortHours <= 0 {
		return fmt.Errorf("decomposition: effort_hours must be > 0, got %v", d.EffortHours)
	}
	if strings.TrimSpace(d.ParentTacticID) == "" {
		return fmt.Errorf("decomposition: parent_tactic_id must be non-empty")
	}
	return nil
}

// lintSoftWeakMapping reports whether d needs a ProvenanceWeakMapping event:
// a deliverable is named but nothing in the draft cites a requirement id.
func lintSoftWeakMapping(d TaskDraft) bool {
	if d.DeliverableID == "" {
		return false
	}
	haystack := d.Description
	for _, o := range d.ExpectedOutcomes {
		haystack += " " + o
	}
	return !requirementIDPattern.MatchString(haystack)
}
