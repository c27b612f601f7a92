// Copyright 2025 Certen Protocol
//
// Sentinel errors for audit repository operations.

package audit

import "errors"

var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("audit: entity not found")

	// ErrViolationNotFound is returned when a flagged violation is not found.
	ErrViolationNotFound = errors.New("audit: violation not found")

	// ErrBreachNotFound is returned when a breach record is not found.
	ErrBreachNotFound = errors.New("audit: breach not found")

	// ErrSnapshotNotFound is returned when a cost snapshot is not found.
	ErrSnapshotNotFound = errors.New("audit: cost snapshot not found")
)
