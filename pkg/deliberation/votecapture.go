// Copyright 2025 Certen Protocol
//
// Optimistic vote capture (§4.6 step 3): a fast regex parse of an archon's
// natural-language response, written immediately as VoteCast. The
// authoritative semantic read happens later, asynchronously, in the
// validator pipeline (§4.7) — this parse only needs to be fast and safe to
// default away from on ambiguity.

package deliberation

import "regexp"

var (
	ayePattern     = regexp.MustCompile(`(?i)\b(aye|yes|in favor|support|approve)\b`)
	nayPattern     = regexp.MustCompile(`(?i)\b(nay|no|against|oppose|reject)\b`)
	abstainPattern = regexp.MustCompile(`(?i)\b(abstain|decline to vote|no position)\b`)
)

// ParseOptimisticVote guesses a VoteChoice from raw natural-language text.
// On ambiguity (both aye and nay patterns present, or neither) it defaults
// to abstain rather than guessing wrong.
func ParseOptimisticVote(rawText string) VoteChoice {
	if abstainPattern.MatchString(rawText) {
		return VoteAbstain
	}
	aye := ayePattern.MatchString(rawText)
	nay := nayPattern.MatchString(rawText)
	switch {
	case aye && !nay:
		return VoteAye
	case nay && !aye:
		return VoteNay
	default:
		return VoteAbstain
	}
}
