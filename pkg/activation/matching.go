// Copyright 2025 Certen Protocol

package activation

import (
	"sort"

	"github.com/archon72/conclave/pkg/registry"
)

// MatchClusters applies the §4.9 deterministic matching rules and returns
// up to topK eligible clusters sorted by cluster_id. excluded names
// cluster_ids to skip outright (used by settlement's rerouter to avoid
// re-offering a cluster that already declined).
func MatchClusters(req TaskRequirement, clusters []registry.Cluster, states map[string]ClusterState, topK int, excluded map[string]bool) []registry.Cluster {
	if topK <= 0 {
		topK = 1
	}

	eligible := make([]registry.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if excluded[c.ID] {
			continue
		}
		state, ok := states[c.ID]
		if !ok || state.Status != "active" || state.AvailabilityStatus == "unavailable" {
			continue
		}
		if !tagsSubset(req.RequiredTags, c.CapabilityTags) {
			continue
		}
		auth, ok := ParseAuthLevel(c.StewardAuthLevel)
		if !ok || auth < req.SensitivityGate {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	if len(eligible) > topK {
		eligible = eligible[:topK]
	}
	return eligible
}

// tagsSubset reports whether every tag in required also appears in offered.
func tagsSubset(required, offered []string) bool {
	have := make(map[string]bool, len(offered))
	for _, t := range offered {
		have[t] = true
	}
	for _, t := range required {
		if !have[t] {
			return false
		}
	}
	return true
}
