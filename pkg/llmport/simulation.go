// Copyright 2025 Certen Protocol
//
// SimulatedPort is a deterministic TextCompletionPort: same request always
// produces the same response, so callers and their tests never depend on
// live model output or network access.

package llmport

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Responder lets callers register canned behavior per SystemRole. If no
// responder is registered for a role, DefaultResponder is used.
type Responder func(req CompletionRequest) CompletionResponse

// SimulatedPort implements TextCompletionPort without a live model.
type SimulatedPort struct {
	responders map[string]Responder
	fallback   Responder
}

// NewSimulatedPort builds a simulation port. fallback is used for any
// SystemRole without a registered Responder; if nil, DefaultResponder is
// used.
func NewSimulatedPort(fallback Responder) *SimulatedPort {
	if fallback == nil {
		fallback = DefaultResponder
	}
	return &SimulatedPort{responders: make(map[string]Responder), fallback: fallback}
}

// Register installs a canned Responder for a SystemRole.
func (s *SimulatedPort) Register(role string, r Responder) {
	s.responders[role] = r
}

// Complete implements TextCompletionPort.
func (s *SimulatedPort) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	r, ok := s.responders[req.SystemRole]
	if !ok {
		r = s.fallback
	}
	resp := r(req)
	return &resp, nil
}

// DefaultResponder produces a deterministic affirmative reply derived from
// a hash of the prompt, so repeated calls with identical input are
// reproducible byte-for-byte.
func DefaultResponder(req CompletionRequest) CompletionResponse {
	h := sha256.Sum256([]byte(req.SystemRole + "\x00" + req.Prompt))
	return CompletionResponse{
		Text:       fmt.Sprintf("aye, simulated response %x", h[:4]),
		FinishedOK: true,
	}
}
