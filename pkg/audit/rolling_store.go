// Copyright 2025 Certen Protocol
//
// Postgres-backed implementation of pkg/override.RollingWindowStore.

package audit

import (
	"context"
	"time"
)

// PostgresRollingWindowStore persists override invocation timestamps so the
// rolling-window counts in §4.11 survive process restarts, unlike
// override.MemoryRollingWindowStore.
type PostgresRollingWindowStore struct {
	client *Client
}

// NewPostgresRollingWindowStore wraps client for use as an
// override.RollingWindowStore.
func NewPostgresRollingWindowStore(client *Client) *PostgresRollingWindowStore {
	return &PostgresRollingWindowStore{client: client}
}

// Record appends an override timestamp for keeperID.
func (s *PostgresRollingWindowStore) Record(ctx context.Context, keeperID string, at time.Time) error {
	_, err := s.client.ExecContext(ctx,
		`INSERT INTO rolling_overrides (keeper_id, invoked_at) VALUES ($1, $2)`,
		keeperID, at)
	return err
}

// CountSince counts keeperID's overrides at or after since.
func (s *PostgresRollingWindowStore) CountSince(ctx context.Context, keeperID string, since time.Time) (int, error) {
	var n int
	err := s.client.QueryRowContext(ctx,
		`SELECT count(*) FROM rolling_overrides WHERE keeper_id = $1 AND invoked_at >= $2`,
		keeperID, since).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
