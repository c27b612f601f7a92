// Copyright 2025 Certen Protocol
//
// Postgres-backed ViolationRepository and BreachRepository.

package audit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresViolationRepository implements ViolationRepository over Client.
type PostgresViolationRepository struct {
	client *Client
}

func NewPostgresViolationRepository(client *Client) *PostgresViolationRepository {
	return &PostgresViolationRepository{client: client}
}

func (r *PostgresViolationRepository) Insert(ctx context.Context, id string, v Violation) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO violations (violation_id, category, artifact_ref, matched_term, quarter, flagged_at, deadline_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, v.Category, v.ArtifactRef, v.MatchedTerm, v.Quarter, v.FlaggedAt, v.Deadline)
	return err
}

func (r *PostgresViolationRepository) MarkResolved(ctx context.Context, id string, at time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE violations SET resolved_at = $1 WHERE violation_id = $2 AND resolved_at IS NULL`,
		at, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrViolationNotFound)
}

func (r *PostgresViolationRepository) MarkEscalated(ctx context.Context, id string, at time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE violations SET escalated_at = $1 WHERE violation_id = $2 AND escalated_at IS NULL`,
		at, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrViolationNotFound)
}

func (r *PostgresViolationRepository) Unresolved(ctx context.Context, asOf time.Time) ([]UnresolvedViolation, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT violation_id, category, artifact_ref, matched_term, quarter, flagged_at, deadline_at
		 FROM violations WHERE resolved_at IS NULL AND escalated_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnresolvedViolation
	for rows.Next() {
		var u UnresolvedViolation
		if err := rows.Scan(&u.ID, &u.Category, &u.ArtifactRef, &u.MatchedTerm, &u.Quarter, &u.FlaggedAt, &u.Deadline); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PostgresBreachRepository implements BreachRepository over Client.
type PostgresBreachRepository struct {
	client *Client
}

func NewPostgresBreachRepository(client *Client) *PostgresBreachRepository {
	return &PostgresBreachRepository{client: client}
}

func (r *PostgresBreachRepository) Insert(ctx context.Context, p BreachPayload) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO breaches (breach_id, breach_type, threshold, declared_at, escalation_deadline)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.BreachID, p.Type, p.Threshold, p.DeclaredAt, p.EscalationDeadline)
	return err
}

func (r *PostgresBreachRepository) MarkEscalated(ctx context.Context, breachID string, at time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE breaches SET escalated_at = $1 WHERE breach_id = $2 AND escalated_at IS NULL`,
		at, breachID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrBreachNotFound)
}

func (r *PostgresBreachRepository) Unescalated(ctx context.Context, asOf time.Time) ([]BreachPayload, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT breach_id, breach_type, threshold, declared_at, escalation_deadline
		 FROM breaches WHERE escalated_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BreachPayload
	for rows.Next() {
		var p BreachPayload
		if err := rows.Scan(&p.BreachID, &p.Type, &p.Threshold, &p.DeclaredAt, &p.EscalationDeadline); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PostgresSnapshotRepository implements SnapshotRepository over Client.
type PostgresSnapshotRepository struct {
	client *Client
}

func NewPostgresSnapshotRepository(client *Client) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{client: client}
}

func (r *PostgresSnapshotRepository) Insert(ctx context.Context, s CostSnapshot) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO cost_snapshots
		 (cycle_id, taken_at, override_count, breach_count, failed_continuation_count, unclosed_cycles, dissolution_events)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.CycleID, s.TakenAt, s.OverrideCount, s.BreachCount, s.FailedContinuationCount, s.UnclosedCycles, s.DissolutionEvents)
	return err
}

func (r *PostgresSnapshotRepository) Latest(ctx context.Context) (*CostSnapshot, error) {
	var s CostSnapshot
	err := r.client.QueryRowContext(ctx,
		`SELECT cycle_id, taken_at, override_count, breach_count, failed_continuation_count, unclosed_cycles, dissolution_events
		 FROM cost_snapshots ORDER BY taken_at DESC LIMIT 1`).
		Scan(&s.CycleID, &s.TakenAt, &s.OverrideCount, &s.BreachCount, &s.FailedContinuationCount, &s.UnclosedCycles, &s.DissolutionEvents)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func requireRowsAffected(res sql.Result, errIfZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errIfZero
	}
	return nil
}
