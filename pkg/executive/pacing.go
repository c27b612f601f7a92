// Copyright 2025 Certen Protocol
//
// Pacing shared by every phase in this package (§5: "Duke-proposal
// generation and President scoring across agents: sequential per-Archon
// with a short inter-request delay (e.g., 500 ms), because LLM providers
// rate-limit aggressively").

package executive

import (
	"time"

	"github.com/archon72/conclave/pkg/checkpoint"
)

const defaultInterRequestDelay = 500 * time.Millisecond

func newGenerator(stage string, store *checkpoint.Store, backoff checkpoint.BackoffConfig) *checkpoint.Generator {
	gen := checkpoint.NewGenerator(stage, store, backoff)
	gen.InterUnitDelay = defaultInterRequestDelay
	return gen
}
