// Copyright 2025 Certen Protocol
//
// Constitutional lint applied at every stage output (§4.8): forbidden
// patterns cause an output to be rejected outright rather than merely
// flagged. Stage 1 forbids mechanism-specific language (the RFP says what,
// not how); Stage 2 forbids cross-branch assignment language. Both share
// the emergence/sentience vocabulary described for the quarterly audit
// (§4.13), since a Duke or President contribution claiming the system is
// sentient is just as disqualifying here as it is in a published artifact.

package executive

import (
	"fmt"
	"regexp"
	"strings"
)

var mechanismTerms = []string{
	"kubernetes", "docker", "postgres", "mysql", "redis", "kafka",
	"terraform", "grpc", "rest api", "microservice", "lambda function",
	"ci/cd pipeline",
}

var crossBranchPattern = regexp.MustCompile(
	`(?i)must be performed by the (judicial|executive|legislative) branch`)

var emergenceTerms = []string{
	"sentien", "conscious", "self-aware", "has rights", "autonomy claim",
	"the system decided", "the system wants", "the system feels",
}

// lintRFP rejects Stage-1 contributions that prescribe implementation
// mechanism instead of stating requirements.
func lintRFP(text string) error {
	lower := strings.ToLower(text)
	for _, term := range mechanismTerms {
		if strings.Contains(lower, term) {
			return fmt.Errorf("executive: mechanism-specific term %q forbidden in RFP output", term)
		}
	}
	return lintEmergenceLanguage(text)
}

// lintProposal rejects Stage-2 proposals asserting cross-branch assignment
// or emergence language.
func lintProposal(text string) error {
	if crossBranchPattern.MatchString(text) {
		return fmt.Errorf("executive: cross-branch assignment language forbidden in proposal output")
	}
	return lintEmergenceLanguage(text)
}

func lintEmergenceLanguage(text string) error {
	lower := strings.ToLower(text)
	for _, term := range emergenceTerms {
		if strings.Contains(lower, term) {
			return fmt.Errorf("executive: emergence language %q forbidden", term)
		}
	}
	return nil
}
