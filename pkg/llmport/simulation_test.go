// Copyright 2025 Certen Protocol

package llmport

import (
	"context"
	"testing"
)

func TestSimulatedPortIsDeterministic(t *testing.T) {
	port := NewSimulatedPort(nil)
	req := CompletionRequest{Prompt: "p", SystemRole: "Secretary-Text"}
	r1, err := port.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete 1: %v", err)
	}
	r2, err := port.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete 2: %v", err)
	}
	if r1.Text != r2.Text {
		t.Fatalf("expected deterministic output, got %q vs %q", r1.Text, r2.Text)
	}
}

func TestSimulatedPortRegisteredResponder(t *testing.T) {
	port := NewSimulatedPort(nil)
	port.Register("Witness", func(req CompletionRequest) CompletionResponse {
		return CompletionResponse{Text: "agreement", FinishedOK: true}
	})
	r, err := port.Complete(context.Background(), CompletionRequest{SystemRole: "Witness", Prompt: "x"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r.Text != "agreement" {
		t.Fatalf("expected registered responder output, got %q", r.Text)
	}
}
