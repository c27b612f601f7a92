// Copyright 2025 Certen Protocol

package metrics

import (
	"context"
	"fmt"

	"github.com/archon72/conclave/pkg/audit"
)

// RefreshCostCounters sets the override and breach gauges from the same
// audit.Counters source a cost snapshot (§4.14) would bundle, pulled at
// scrape-adjacent intervals rather than pushed from every override/breach
// call site. pkg/audit.EventScanCounters already documents the O(n)
// scan-per-call tradeoff this inherits; a poll interval coarser than the
// chain's growth rate keeps that cost bounded.
func (r *Registry) RefreshCostCounters(ctx context.Context, counters audit.Counters) error {
	overrides, err := counters.OverrideCount(ctx)
	if err != nil {
		return fmt.Errorf("metrics: refresh override count: %w", err)
	}
	breaches, err := counters.BreachCount(ctx)
	if err != nil {
		return fmt.Errorf("metrics: refresh breach count: %w", err)
	}
	r.OverrideCount.Set(float64(overrides))
	r.BreachCount.Set(float64(breaches))
	return nil
}
