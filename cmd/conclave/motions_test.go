// Copyright 2025 Certen Protocol

package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/signing"
	"github.com/archon72/conclave/pkg/validation"
	"github.com/archon72/conclave/pkg/witness"
)

const testWitnessID = "test-witness-01"

// newMotionTestWriter builds a single-witness event writer signing with one
// real ed25519 key registered for every owner ID this test drives as
// (agent, owner): the three test archons, the witness role, and the
// reconciliation-gate actor motions.go finalizes as.
func newMotionTestWriter(t *testing.T, clock func() time.Time) (*eventstore.Writer, *eventstore.Store) {
	t.Helper()
	reg := signing.NewRegistry()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate test signing key: %v", err)
	}
	for _, owner := range []string{"archon-1", "archon-2", "archon-3", validation.RoleWitness, testWitnessID, "reconciliation-gate"} {
		if err := reg.Add(signing.KeyRecord{
			OwnerID: owner, KeyID: "test-bootstrap", PublicKey: pub, PrivateKey: priv, ActiveFrom: clock(),
		}); err != nil {
			t.Fatalf("register test key for %s: %v", owner, err)
		}
	}

	pool := witness.NewPool(1)
	pool.Register(testWitnessID)
	selector := witness.NewSelector(pool, witness.NewRegistrySigner(reg, clock))

	signingPort := signing.NewEd25519Signer(reg, true)
	store := eventstore.NewStore(eventstore.NewMemoryKV())
	halt := eventstore.NewHaltManager(eventstore.NewMemoryKV(), eventstore.NewMemoryKV())
	return eventstore.NewWriter(store, halt, signingPort, selector, clock, eventstore.WriterConfig{WitnessFloor: 1}), store
}

// buildMotionTestHarness wires a full in-process motion lifecycle stack
// with the validator bus's circuit breaker forced open, the same
// deterministic-synchronous-fallback trick pkg/validation's own tests use,
// so a captured vote resolves before the HTTP handler returns instead of
// racing a background worker goroutine that nothing in this test starts.
func buildMotionTestHarness(t *testing.T, agreeChoice deliberation.VoteChoice) *motionHandlers {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	writer, store := newMotionTestWriter(t, clock)
	engine := deliberation.NewEngine(writer, clock)

	bus := validation.NewBus(4)
	port := llmport.NewSimulatedPort(nil)
	for _, role := range []string{validation.RoleSecretaryText, validation.RoleSecretaryJSON, validation.RoleWitness} {
		role := role
		port.Register(role, func(req llmport.CompletionRequest) llmport.CompletionResponse {
			return llmport.CompletionResponse{Text: string(agreeChoice), FinishedOK: true}
		})
	}
	workers := map[string]*validation.Worker{
		validation.RoleSecretaryText: validation.NewWorker(validation.RoleSecretaryText, port, bus, clock),
		validation.RoleSecretaryJSON: validation.NewWorker(validation.RoleSecretaryJSON, port, bus, clock),
		validation.RoleWitness:       validation.NewWorker(validation.RoleWitness, port, bus, clock),
	}

	tally := &validation.EventTally{Store: store}
	agg := validation.NewAggregator(writer, tally, nil, 3, clock)
	breaker := validation.NewCircuitBreaker(1, time.Minute, time.Hour, clock)
	breaker.RecordFailure() // force open: dispatch takes the synchronous path
	disp := validation.NewBusDispatcher(bus, breaker, workers, agg)
	agg.SetDispatcher(disp)

	reconGate := validation.NewReconciliationGate(agg, writer, time.Millisecond)

	return &motionHandlers{
		engine: engine, aggregator: agg, dispatcher: disp, reconGate: reconGate,
		tally: tally, breaker: breaker, clock: clock, timeout: time.Second,
	}
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestMotionLifecycleRatifiesOnAyeMajority(t *testing.T) {
	h := buildMotionTestHarness(t, deliberation.VoteAye)
	mux := http.NewServeMux()
	h.register(mux)

	rr := doJSON(t, mux, http.MethodPost, "/api/v1/motions", map[string]string{
		"motion_id": "m1", "title": "t", "text": "x", "type": string(deliberation.MotionPolicy), "proposer_id": "archon-1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("propose: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if rr := doJSON(t, mux, http.MethodPost, "/api/v1/motions/m1/open-voting", nil); rr.Code != http.StatusOK {
		t.Fatalf("open-voting: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	for _, archon := range []string{"archon-1", "archon-2", "archon-3"} {
		rr := doJSON(t, mux, http.MethodPost, "/api/v1/motions/m1/votes", map[string]string{
			"vote_id": "vote-" + archon, "archon_id": archon, "raw_text": "aye",
		})
		if rr.Code != http.StatusAccepted {
			t.Fatalf("vote %s: expected 202, got %d: %s", archon, rr.Code, rr.Body.String())
		}
	}

	rr = doJSON(t, mux, http.MethodPost, "/api/v1/motions/m1/finalize", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode finalize response: %v", err)
	}
	if resp["status"] != "ratified" {
		t.Fatalf("expected status ratified, got %v", resp["status"])
	}
}

func TestMotionLifecycleFailsOnNayMajority(t *testing.T) {
	h := buildMotionTestHarness(t, deliberation.VoteNay)
	mux := http.NewServeMux()
	h.register(mux)

	doJSON(t, mux, http.MethodPost, "/api/v1/motions", map[string]string{
		"motion_id": "m2", "title": "t", "text": "x", "type": string(deliberation.MotionPolicy), "proposer_id": "archon-1",
	})
	doJSON(t, mux, http.MethodPost, "/api/v1/motions/m2/open-voting", nil)

	rr := doJSON(t, mux, http.MethodPost, "/api/v1/motions/m2/votes", map[string]string{
		"vote_id": "vote-1", "archon_id": "archon-1", "raw_text": "nay",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("vote: expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodPost, "/api/v1/motions/m2/finalize", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode finalize response: %v", err)
	}
	if resp["status"] != "failed" {
		t.Fatalf("expected status failed, got %v", resp["status"])
	}
}

func TestHandleMotionsRejectsMissingProposerID(t *testing.T) {
	h := buildMotionTestHarness(t, deliberation.VoteAye)
	mux := http.NewServeMux()
	h.register(mux)

	rr := doJSON(t, mux, http.MethodPost, "/api/v1/motions", map[string]string{
		"motion_id": "m3", "title": "t", "text": "x",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing proposer_id, got %d", rr.Code)
	}
}

func TestHandleGetMotionNotFound(t *testing.T) {
	h := buildMotionTestHarness(t, deliberation.VoteAye)
	mux := http.NewServeMux()
	h.register(mux)

	rr := doJSON(t, mux, http.MethodGet, "/api/v1/motions/does-not-exist", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleMotionsMethodNotAllowed(t *testing.T) {
	h := buildMotionTestHarness(t, deliberation.VoteAye)
	mux := http.NewServeMux()
	h.register(mux)

	rr := doJSON(t, mux, http.MethodGet, "/api/v1/motions", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
