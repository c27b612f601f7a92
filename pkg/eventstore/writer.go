// Copyright 2025 Certen Protocol
//
// Writer is the single logical writer for an event store: it serializes the
// hash chain, acquires witness attestations, and commits atomically. Only
// one Writer instance may be active against a given Store at a time (the
// in-process mutex below enforces this within one process; multi-process
// deployments must externally guarantee single-writer, e.g. one pod).

package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SigningPort is the capability the writer needs from the signing package
// to produce an agent signature over event content (§4.4).
type SigningPort interface {
	Sign(ctx context.Context, ownerID string, at time.Time, content []byte) (signature []byte, err error)
	Mode() ModeWatermark
}

// WitnessSelector is the capability the writer needs from the witness
// package to pick and collect attestations (§4.5).
type WitnessSelector interface {
	SelectAndAttest(ctx context.Context, seed string, minCount int, content []byte) ([]WitnessAttribution, error)
}

// Clock abstracts time.Now so tests can fix authority_timestamp.
type Clock func() time.Time

// WriterConfig tunes the append algorithm.
type WriterConfig struct {
	WitnessFloor      int
	MaxWitnessRetries int
}

// Writer implements the §4.1 witnessed-append algorithm.
type Writer struct {
	store   *Store
	halt    *HaltManager
	signing SigningPort
	witness WitnessSelector
	clock   Clock
	cfg     WriterConfig

	mu sync.Mutex // serializes sequence assignment; waiting callers are not guaranteed FIFO order
}

// NewWriter builds a Writer. The signing-key owner used for the agent
// signature is passed per call to Append (ownerID), distinct from agentID.
func NewWriter(store *Store, halt *HaltManager, signing SigningPort, witness WitnessSelector, clock Clock, cfg WriterConfig) *Writer {
	if cfg.WitnessFloor < 1 {
		cfg.WitnessFloor = 1
	}
	if cfg.MaxWitnessRetries < 1 {
		cfg.MaxWitnessRetries = 3
	}
	return &Writer{store: store, halt: halt, signing: signing, witness: witness, clock: clock, cfg: cfg}
}

// Append executes the full §4.1 algorithm for one event. ownerID identifies
// the signing key used for the agent signature; agentID is the acting
// archon recorded on the event (they coincide for archon-originated writes,
// and diverge for system-originated events signed by a service key).
func (w *Writer) Append(ctx context.Context, eventType EventType, payload interface{}, agentID, ownerID string) (*Event, error) {
	if !IsKnownEventType(eventType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	// Step 1: halt check first.
	halted, err := w.halt.IsHalted()
	if err != nil {
		return nil, fmt.Errorf("eventstore: halt check: %w", err)
	}
	if halted && !HaltAllowlist[eventType] {
		return nil, fmt.Errorf("%w: %q not permitted during halt", ErrHaltViolation, eventType)
	}

	// Step 2: cessation check. Only the terminal event itself, and the
	// integrity-case artifact immediately preceding it, may still land —
	// both are in the halt allowlist already, and cessation is permanent,
	// so once set, nothing further is ever permitted, including those.
	ceased, err := w.store.CessationExecuted()
	if err != nil {
		return nil, fmt.Errorf("eventstore: cessation check: %w", err)
	}
	if ceased {
		return nil, ErrCessationActive
	}

	// Step 3: acquire writer lock, serializing sequence assignment. sync.Mutex
	// does not hand the lock to waiters in arrival order.
	w.mu.Lock()
	defer w.mu.Unlock()

	// Step 4-5: read head, compute new sequence and prev_hash.
	head, err := w.store.Head()
	if err != nil {
		return nil, fmt.Errorf("eventstore: read head: %w", err)
	}
	var sequence int64 = 1
	prevHash := GenesisHash
	if head != nil {
		sequence = head.Sequence + 1
		prevHash = head.ContentHash
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventstore: marshal payload: %w", err)
	}

	now := time.Now
	if w.clock != nil {
		now = w.clock
	}
	authorityTimestamp := now()

	// Step 7: canonical content bytes must include mode_watermark so the
	// signature that covers them transitively covers content_hash, prev_hash,
	// and mode_watermark together (§3.1, I10, RT-1) — never stamp the
	// watermark onto the Event after signing.
	mode := w.signing.Mode()
	content := signableContent{
		Sequence:           sequence,
		EventType:          eventType,
		Payload:            payloadBytes,
		AgentID:            agentID,
		AuthorityTimestamp: authorityTimestamp,
		PrevHash:           prevHash,
		ModeWatermark:      mode,
	}
	contentBytes, err := canonicalMarshal(content)
	if err != nil {
		return nil, fmt.Errorf("eventstore: canonicalize content: %w", err)
	}
	contentHash := sha256Hex(contentBytes)

	// Step 8: sign with agent key active at authority_timestamp.
	sig, err := w.signing.Sign(ctx, ownerID, authorityTimestamp, contentBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	// Step 6+9: select witnesses and collect their attestations over the
	// same content, retrying a bounded number of times on failure. There
	// is no "eventually witness" path: exhausting retries fails the append.
	var attributions []WitnessAttribution
	seed := prevHash
	for attempt := 0; attempt < w.cfg.MaxWitnessRetries; attempt++ {
		attributions, err = w.witness.SelectAndAttest(ctx, seed, w.cfg.WitnessFloor, contentBytes)
		if err == nil && len(attributions) >= w.cfg.WitnessFloor {
			break
		}
	}
	if err != nil || len(attributions) < w.cfg.WitnessFloor {
		return nil, ErrWitnessPoolExhausted
	}

	ev := &Event{
		Sequence:            sequence,
		EventType:           eventType,
		Payload:             payloadBytes,
		AgentID:             agentID,
		AuthorityTimestamp:  authorityTimestamp,
		PrevHash:            prevHash,
		ContentHash:         contentHash,
		Signature:           sig,
		WitnessAttributions: attributions,
		ModeWatermark:       mode,
	}

	// Step 10: atomic write, event row + head pointer in one batch.
	if err := w.store.commit(ev); err != nil {
		return nil, fmt.Errorf("eventstore: commit: %w", err)
	}

	// Trigger/Clear take effect only after the defining event has
	// committed (RT-2): a writer reading halt state after this point sees
	// the new state, never before.
	switch eventType {
	case HaltTriggered:
		reason, triggeredBy := haltTriggerFields(payloadBytes)
		if err := w.halt.Trigger(reason, triggeredBy, authorityTimestamp); err != nil {
			return ev, fmt.Errorf("eventstore: halt trigger side effect: %w", err)
		}
	case HaltCleared:
		clearedBy := agentID
		if err := w.halt.Clear(clearedBy, authorityTimestamp); err != nil {
			return ev, fmt.Errorf("eventstore: halt clear side effect: %w", err)
		}
	case CessationExecuted:
		if err := w.store.setCessation(); err != nil {
			return ev, fmt.Errorf("eventstore: cessation side effect: %w", err)
		}
	}

	return ev, nil
}

// haltTriggerFields extracts reason/triggered_by from a HaltTriggered
// payload without requiring callers to depend on a shared payload type.
func haltTriggerFields(payload json.RawMessage) (reason, triggeredBy string) {
	var p struct {
		Reason      string `json:"reason"`
		TriggeredBy string `json:"triggered_by"`
	}
	_ = json.Unmarshal(payload, &p)
	return p.Reason, p.TriggeredBy
}
