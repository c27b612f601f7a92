// Copyright 2025 Certen Protocol
//
// TextCompletionPort is the narrow interface every LLM-invoking component
// depends on. Actual model calls are out of scope (§1 Non-goals); this
// package provides the interface plus a deterministic simulation backend
// so the rest of the system can be exercised without a live model.

package llmport

import "context"

// CompletionRequest is a single prompt dispatch.
type CompletionRequest struct {
	Prompt      string
	SystemRole  string // e.g. "Secretary-Text", "President-Treasury"
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Text       string
	FinishedOK bool
}

// TextCompletionPort is the capability every archon-role invocation needs.
type TextCompletionPort interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
