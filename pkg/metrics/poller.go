// Copyright 2025 Certen Protocol
//
// Poller periodically refreshes the pull-based gauges (witness pool size,
// validator-bus backlog, override/breach counts). Grounded on
// pkg/consensus.ConsensusHealthMonitor.monitorLoop's ticker-plus-ctx.Done
// shape; unlike that monitor this loop never returns an error to a caller,
// since a failed refresh just leaves a gauge stale until the next tick.

package metrics

import (
	"context"
	"log"
	"time"

	"github.com/archon72/conclave/pkg/audit"
)

// Poller drives Registry's pull-based refreshes on a fixed interval.
type Poller struct {
	registry *Registry
	pool     PoolSizer
	streams  []BusBacklogSource
	counters audit.Counters
	interval time.Duration
	logger   *log.Logger
}

// NewPoller builds a Poller. logger may be nil, in which case a default
// "[Metrics] "-prefixed logger is created, matching
// attestation.Service's NewAttestationHandlers default-logger idiom.
func NewPoller(registry *Registry, pool PoolSizer, counters audit.Counters, interval time.Duration, logger *log.Logger, streams ...BusBacklogSource) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[Metrics] ", log.LstdFlags)
	}
	return &Poller{registry: registry, pool: pool, streams: streams, counters: counters, interval: interval, logger: logger}
}

// Run blocks, refreshing every tick, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	if p.pool != nil {
		p.registry.RefreshWitnessPoolSize(p.pool)
	}
	if len(p.streams) > 0 {
		p.registry.RefreshValidatorBusBacklog(p.streams...)
	}
	if p.counters != nil {
		if err := p.registry.RefreshCostCounters(ctx, p.counters); err != nil {
			p.logger.Printf("refresh cost counters: %v", err)
		}
	}
}
