// Copyright 2025 Certen Protocol
//
// Dispatcher publishes to the validator bus behind a circuit breaker
// (§4.7): when the breaker is open, it falls back to synchronous,
// in-process validation instead of queuing (no bus to queue to, in this
// in-process substrate, stands in for "broker unreachable").

package validation

import (
	"context"
	"fmt"

	"github.com/archon72/conclave/pkg/deliberation"
)

// BusDispatcher implements Aggregator's Dispatcher and the initial
// fan-out from a cast vote to its two mandatory validators plus witness.
type BusDispatcher struct {
	bus        *Bus
	breaker    *CircuitBreaker
	workers    map[string]*Worker // validator_id -> worker, for both normal dispatch and the sync fallback path
	aggregator *Aggregator
}

// NewBusDispatcher builds a dispatcher over bus, guarded by breaker, with
// direct worker handles for the synchronous fallback.
func NewBusDispatcher(bus *Bus, breaker *CircuitBreaker, workers map[string]*Worker, aggregator *Aggregator) *BusDispatcher {
	return &BusDispatcher{bus: bus, breaker: breaker, workers: workers, aggregator: aggregator}
}

// Dispatch fans a PendingValidation out to Secretary-Text, Secretary-JSON,
// and Witness, each as a ValidationRequest on its own partition.
func (d *BusDispatcher) Dispatch(ctx context.Context, pv PendingValidation) error {
	d.aggregator.RegisterPending(pv.VoteID, pv.MotionID, pv.RawText, pv.OptimisticChoice)
	return d.fanOut(ctx, pv.VoteID, pv.MotionID, pv.RawText, pv.OptimisticChoice, 1)
}

// Redispatch implements Aggregator's Dispatcher, re-requesting validation
// after a disagreement.
func (d *BusDispatcher) Redispatch(ctx context.Context, voteID, motionID, rawText string, optimistic deliberation.VoteChoice, attempt int) error {
	return d.fanOut(ctx, voteID, motionID, rawText, optimistic, attempt)
}

func (d *BusDispatcher) fanOut(ctx context.Context, voteID, motionID, rawText string, optimistic deliberation.VoteChoice, attempt int) error {
	for _, validatorID := range []string{RoleSecretaryText, RoleSecretaryJSON, RoleWitness} {
		req := ValidationRequest{
			VoteID: voteID, MotionID: motionID, RawText: rawText,
			ValidatorID: validatorID, Attempt: attempt, OptimisticChoice: optimistic,
		}
		if err := d.send(ctx, validatorID, req); err != nil {
			return fmt.Errorf("validation: dispatch to %s: %w", validatorID, err)
		}
	}
	return nil
}

// send either publishes onto the bus (breaker closed/half-open) or, when
// the breaker is open, calls the validator worker in-process and feeds its
// result straight into the aggregator.
func (d *BusDispatcher) send(ctx context.Context, validatorID string, req ValidationRequest) error {
	if !d.breaker.Allow() {
		return d.sendSync(ctx, validatorID, req)
	}
	if err := d.bus.ValidationRequest.Publish(ctx, validatorID, req); err != nil {
		d.breaker.RecordFailure()
		return d.sendSync(ctx, validatorID, req)
	}
	d.breaker.RecordSuccess()
	return nil
}

func (d *BusDispatcher) sendSync(ctx context.Context, validatorID string, req ValidationRequest) error {
	w, ok := d.workers[validatorID]
	if !ok {
		return fmt.Errorf("validation: no worker registered for %s", validatorID)
	}
	result, err := w.HandleOne(ctx, req)
	if err != nil {
		return err
	}
	_, err = d.aggregator.Ingest(ctx, result)
	return err
}
