// Copyright 2025 Certen Protocol
//
// Static domain fixtures for the executive pipeline (§4.8, §4.9): the
// Portfolio→President table, Duke roster, Earl routing table, and cluster
// directory. These are read-only rosters, not runtime state — dynamic
// fields (cluster availability_status, power leases) live in pkg/activation.

package registry

// Portfolio is one of the 11 President portfolios driving RFP generation.
type Portfolio struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	PresidentID string `yaml:"president_id"`
}

// Duke is one of the 23 Duke roles producing tactical proposals. Abbr is
// the counter tag used for its T-{ABBR}-NNN/R-{ABBR}-NNN/RR-{ABBR}-NNN
// identifiers (see pkg/checkpoint.CounterTracker).
type Duke struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Abbr   string `yaml:"abbr"`
	Domain string `yaml:"domain"`
}

// Earl is one of the 6 Earl roles performing tactic decomposition.
type Earl struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

// EarlRouting maps domains to a facilitating Earl, with an explicit
// fallback for unmatched domains (§4.8 Stage 4: "selected by domain match
// against a routing table, default fallback").
type EarlRouting struct {
	Routes        []EarlRoute `yaml:"routes"`
	DefaultEarlID string      `yaml:"default_earl_id"`
}

// EarlRoute is one domain -> facilitator Earl mapping.
type EarlRoute struct {
	Domain string `yaml:"domain"`
	EarlID string `yaml:"earl_id"`
}

// ConsentPolicy is the cluster's fixed consent posture (§4.9): both fields
// are mandatory and constitutionally non-negotiable, so they are declared
// per cluster rather than defaulted in code.
type ConsentPolicy struct {
	RequiresExplicitAcceptance bool `yaml:"requires_explicit_acceptance"`
	RefusalIsPenaltyFree       bool `yaml:"refusal_is_penalty_free"`
}

// Cluster is the static identity/capability record for an external
// execution unit (§4.9). Dynamic fields (availability_status, current
// load) are tracked by pkg/activation against a ClusterID, not here.
type Cluster struct {
	ID                string        `yaml:"id"`
	CapabilityTags    []string      `yaml:"capability_tags"`
	StewardAuthLevel  string        `yaml:"steward_auth_level"`
	MaxConcurrentTask int           `yaml:"max_concurrent_tasks"`
	ConsentPolicy     ConsentPolicy `yaml:"consent_policy"`
}
