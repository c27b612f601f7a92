// Copyright 2025 Certen Protocol
//
// Generator runs one pipeline stage's units in order against a Store,
// modeling §9's "checkpoints as restartable generators": each stage is a
// finite sequence of idempotent units, produced and persisted one at a
// time, so the store itself is the program counter on resume.
//
// §4.8's "Rejection becomes a ContributionFailed event" names an event type
// that §6.2's closed vocabulary does not include; as with the deliberation
// engine's motion-withdrawal status, a rejected unit is recorded here as a
// local StatusFailed checkpoint rather than an invented event — callers that
// need a witnessed trail for the rejection write one of the closed-vocabulary
// events themselves (e.g. DlqFallback, ProvenanceWeakMapping) where §4.8
// calls for it explicitly.

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Producer computes one unit's output. attempt is zero-based.
type Producer func(ctx context.Context, attempt int) (json.RawMessage, error)

// Lint validates a produced payload before it is accepted as completed;
// returning an error rejects the attempt (§4.8 "Constitutional lint at
// every output").
type Lint func(payload json.RawMessage) error

// Unit is one idempotent step of a stage.
type Unit struct {
	ID      string
	Produce Producer
	Lint    Lint // optional
}

// BackoffConfig configures exponential retry, per-stage (§4.8: "Retry with
// exponential backoff, base/max caps configurable per stage").
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base << uint(attempt)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Generator drives one stage's units through Store-backed checkpointing.
type Generator struct {
	Stage   string
	Store   *Store
	Backoff BackoffConfig
	Sleep   func(time.Duration)

	// InterUnitDelay paces freshly-produced units (§5: "Duke-proposal
	// generation and President scoring across agents: sequential per-Archon
	// with a short inter-request delay"). Units resumed from an existing
	// checkpoint are not delayed, since no call was made.
	InterUnitDelay time.Duration

	// OnReplay, if set, is called once per unit that Run resumes from an
	// existing StatusCompleted record instead of producing fresh. Nil by
	// default so callers that do not care about replay counts pay nothing.
	OnReplay func(stage, unitID string)
}

// NewGenerator builds a Generator with sane backoff defaults.
func NewGenerator(stage string, store *Store, backoff BackoffConfig) *Generator {
	if backoff.MaxRetries <= 0 {
		backoff.MaxRetries = 3
	}
	if backoff.Base <= 0 {
		backoff.Base = 500 * time.Millisecond
	}
	return &Generator{Stage: stage, Store: store, Backoff: backoff, Sleep: time.Sleep}
}

// Run executes units in order, skipping any already StatusCompleted in the
// store. It stops at the first unit that exhausts its retries, returning the
// results persisted so far alongside the error — a re-run of the same units
// slice resumes from exactly that unit.
func (g *Generator) Run(ctx context.Context, units []Unit) ([]*Record, error) {
	results := make([]*Record, 0, len(units))
	for _, u := range units {
		if rec, err := g.Store.Get(g.Stage, u.ID); err == nil && rec.Status == StatusCompleted {
			results = append(results, rec)
			if g.OnReplay != nil {
				g.OnReplay(g.Stage, u.ID)
			}
			continue
		}

		rec, err := g.runUnit(ctx, u)
		if err != nil {
			if rec != nil {
				if putErr := g.Store.Put(g.Stage, rec); putErr != nil {
					return results, fmt.Errorf("checkpoint: persist failed unit %s: %w", u.ID, putErr)
				}
			}
			return results, fmt.Errorf("checkpoint: unit %s: %w", u.ID, err)
		}
		if err := g.Store.Put(g.Stage, rec); err != nil {
			return results, fmt.Errorf("checkpoint: persist completed unit %s: %w", u.ID, err)
		}
		results = append(results, rec)
		if g.InterUnitDelay > 0 && g.Sleep != nil {
			g.Sleep(g.InterUnitDelay)
		}
	}
	return results, nil
}

func (g *Generator) runUnit(ctx context.Context, u Unit) (*Record, error) {
	var lastErr error
	var payload json.RawMessage
	attempts := 0

	for attempt := 0; attempt < g.Backoff.MaxRetries; attempt++ {
		attempts++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		payload, lastErr = u.Produce(ctx, attempt)
		if lastErr == nil && u.Lint != nil {
			lastErr = u.Lint(payload)
		}
		if lastErr == nil {
			return &Record{UnitID: u.ID, Status: StatusCompleted, Payload: payload, Attempts: attempts}, nil
		}
		if attempt < g.Backoff.MaxRetries-1 && g.Sleep != nil {
			g.Sleep(g.Backoff.delay(attempt))
		}
	}

	return &Record{UnitID: u.ID, Status: StatusFailed, Attempts: attempts, LastError: lastErr.Error()}, lastErr
}
