// Copyright 2025 Certen Protocol

package override

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/canonical"
	"github.com/archon72/conclave/pkg/eventstore"
)

// EventAppender is the narrow slice of eventstore.Writer this package needs.
type EventAppender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// KeeperSigner signs override payload content with the keeper key valid at
// the given time, matching pkg/signing.Ed25519Signer's shape so that
// implementation can be used directly.
type KeeperSigner interface {
	Sign(ctx context.Context, ownerID string, at time.Time, content []byte) ([]byte, error)
}

// ErrHardBlocked is returned when a keeper has exhausted the rolling-365-day
// threshold and has not supplied an authorizing ceremony.
type ErrHardBlocked struct{ KeeperID string }

func (e ErrHardBlocked) Error() string {
	return fmt.Sprintf("override: keeper %s is hard-blocked; an authorizing ceremony is required", e.KeeperID)
}

const (
	dailyIncidentThreshold = 3
	warningThreshold       = 15
	criticalThreshold      = 18
	hardBlockThreshold     = 20
)

// Overseer drives §4.11's witness-then-threshold-count override flow.
type Overseer struct {
	Events     EventAppender
	Store      RollingWindowStore
	Signer     KeeperSigner
	PrevHashOf func() (string, error) // returns the current chain tip's content_hash, or eventstore.GenesisHash
	Clock      func() time.Time
}

// Invoke records an override. The event is written before the caller is
// told it is safe to let the override take effect (step 1 in §4.11); the
// rolling-window threshold is evaluated on the count including this one.
func (o *Overseer) Invoke(ctx context.Context, req Request, ceremonyAuthorized bool) (*Result, error) {
	now := o.Clock()

	dayCountBefore, err := o.Store.CountSince(ctx, req.KeeperID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	yearCountBefore, err := o.Store.CountSince(ctx, req.KeeperID, now.Add(-365*24*time.Hour))
	if err != nil {
		return nil, err
	}
	if yearCountBefore >= hardBlockThreshold && !ceremonyAuthorized {
		return nil, ErrHardBlocked{KeeperID: req.KeeperID}
	}

	prevHash, err := o.PrevHashOf()
	if err != nil {
		return nil, err
	}

	payload := Payload{
		KeeperID:          req.KeeperID,
		Kind:              req.Kind,
		Scope:             req.Scope,
		DurationSeconds:   int64(req.Duration.Seconds()),
		Reason:            req.Reason,
		SpokenDeclaration: req.SpokenDeclaration,
		InitiatedAt:       now,
		PrevHash:          prevHash,
	}

	unsigned, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("override: canonicalize payload: %w", err)
	}
	content := append(unsigned, []byte(prevHash)...)
	sig, err := o.Signer.Sign(ctx, req.KeeperID, now, content)
	if err != nil {
		return nil, fmt.Errorf("override: sign: %w", err)
	}
	payload.KeeperSignature = sig

	dayCountAfter := dayCountBefore + 1
	yearCountAfter := yearCountBefore + 1
	payload.Threshold = thresholdFor(dayCountAfter, yearCountAfter)

	if _, err := o.Events.Append(ctx, eventstore.OverrideInvoked, payload, req.KeeperID, req.KeeperID); err != nil {
		return nil, err
	}
	if err := o.Store.Record(ctx, req.KeeperID, now); err != nil {
		return nil, err
	}

	// Automatic escalation signal, reusing the breach vocabulary rather than
	// inventing a threshold-specific event type: incident/warning register
	// as a declared breach, critical/hard-block as an escalated one.
	switch payload.Threshold {
	case ThresholdIncident, ThresholdWarning:
		if _, err := o.Events.Append(ctx, eventstore.BreachDeclared, payload, req.KeeperID, req.KeeperID); err != nil {
			return nil, err
		}
	case ThresholdCritical, ThresholdHardBlock:
		if _, err := o.Events.Append(ctx, eventstore.BreachEscalated, payload, req.KeeperID, req.KeeperID); err != nil {
			return nil, err
		}
	}

	return &Result{
		Payload:            payload,
		RollingDayCount:    dayCountAfter,
		Rolling365DayCount: yearCountAfter,
		Blocked:            yearCountAfter >= hardBlockThreshold,
	}, nil
}

// PrevHashFromStore adapts an eventstore.Store's chain tip into the
// func() (string, error) shape Overseer.PrevHashOf expects.
func PrevHashFromStore(store *eventstore.Store) func() (string, error) {
	return func() (string, error) {
		head, err := store.Head()
		if err != nil {
			return "", err
		}
		if head == nil {
			return eventstore.GenesisHash, nil
		}
		return head.ContentHash, nil
	}
}

// thresholdFor picks the highest-severity threshold crossed by either the
// rolling-day or rolling-365-day count (§4.11 point 2's ladder).
func thresholdFor(dayCount, yearCount int) ThresholdLevel {
	level := ThresholdNone
	if dayCount > dailyIncidentThreshold {
		level = ThresholdIncident
	}
	if yearCount >= warningThreshold && level == ThresholdNone {
		level = ThresholdWarning
	}
	if yearCount >= criticalThreshold {
		level = ThresholdCritical
	}
	if yearCount >= hardBlockThreshold {
		level = ThresholdHardBlock
	}
	return level
}
