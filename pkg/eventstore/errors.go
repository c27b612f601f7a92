// Copyright 2025 Certen Protocol

package eventstore

import "errors"

var (
	ErrHaltViolation         = errors.New("eventstore: halt violation")
	ErrCessationActive       = errors.New("eventstore: cessation active")
	ErrSignatureInvalid      = errors.New("eventstore: signature invalid")
	ErrKeyNotTemporallyValid = errors.New("eventstore: key not temporally valid")
	ErrWitnessPoolExhausted  = errors.New("eventstore: witness pool exhausted")
	ErrUnknownEventType      = errors.New("eventstore: unknown event type")
)
