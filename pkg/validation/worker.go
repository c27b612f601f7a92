// Copyright 2025 Certen Protocol
//
// Worker consumes one validator's partition of the validation-requests
// stream, invokes the TextCompletionPort with a canonical validation
// prompt, and publishes a ValidationResult (§4.7).

package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/llmport"
)

// Worker runs a single validator's consumption loop.
type Worker struct {
	ValidatorID string
	port        llmport.TextCompletionPort
	requests    *Stream
	results     *Stream
	clock       func() time.Time
}

// NewWorker builds a Worker bound to its own validation-requests partition.
func NewWorker(validatorID string, port llmport.TextCompletionPort, bus *Bus, clock func() time.Time) *Worker {
	if clock == nil {
		clock = time.Now
	}
	return &Worker{ValidatorID: validatorID, port: port, requests: bus.ValidationRequest, results: bus.ValidationResult, clock: clock}
}

func canonicalValidationPrompt(rawText string) string {
	return fmt.Sprintf("Classify the following archon statement as exactly one of aye, nay, or abstain. Statement: %q", rawText)
}

// Run drains this worker's partition until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ch := w.requests.Consume(w.ValidatorID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			req, ok := msg.Payload.(ValidationRequest)
			if !ok {
				continue
			}
			result, err := w.validate(ctx, req)
			if err != nil {
				continue
			}
			_ = w.results.Publish(ctx, req.VoteID, result)
		}
	}
}

// HandleOne processes a single request synchronously, used both by Run and
// by the dispatcher's circuit-breaker fallback path.
func (w *Worker) HandleOne(ctx context.Context, req ValidationRequest) (ValidationResult, error) {
	return w.validate(ctx, req)
}

func (w *Worker) validate(ctx context.Context, req ValidationRequest) (ValidationResult, error) {
	resp, err := w.port.Complete(ctx, llmport.CompletionRequest{
		Prompt:     canonicalValidationPrompt(req.RawText),
		SystemRole: w.ValidatorID,
	})
	if err != nil {
		return ValidationResult{}, err
	}
	choice := deliberation.ParseOptimisticVote(resp.Text)
	return ValidationResult{
		VoteID:               req.VoteID,
		ValidatorID:          w.ValidatorID,
		ValidatedChoice:      choice,
		AgreesWithOptimistic: choice == req.OptimisticChoice,
		ReasonText:           resp.Text,
		Attempts:             req.Attempt,
		ProducedAt:           w.clock(),
	}, nil
}
