// Copyright 2025 Certen Protocol
//
// Selector implements eventstore.WitnessSelector: deterministic, verifiable
// selection by scoring hash(seed || witness_id), then collecting real
// attestation signatures from the chosen witnesses (§4.5 steps 1-3).

package witness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/archon72/conclave/pkg/eventstore"
)

// Signer is the capability Selector needs to collect a witness attestation.
type Signer interface {
	SignAsWitness(ctx context.Context, witnessID string, content []byte) ([]byte, error)
}

// Selector picks witnesses for each event and gathers their attestations.
type Selector struct {
	pool   *Pool
	signer Signer

	mu  sync.Mutex
	seq int64 // monotonic call counter, doubles as the cooldown clock
}

// NewSelector builds a Selector over pool using signer to collect
// attestations.
func NewSelector(pool *Pool, signer Signer) *Selector {
	return &Selector{pool: pool, signer: signer}
}

type scored struct {
	id    string
	score string
}

// score computes hash(seed || witness_id) as a hex string; hex strings
// compare lexicographically the same as the underlying bytes, so sorting
// the hex representation is a correct, verifiable, reproducible ranking.
func score(seed, witnessID string) string {
	h := sha256.Sum256([]byte(seed + witnessID))
	return hex.EncodeToString(h[:])
}

// SelectAndAttest implements eventstore.WitnessSelector.
func (s *Selector) SelectAndAttest(ctx context.Context, seed string, minCount int, content []byte) ([]eventstore.WitnessAttribution, error) {
	s.mu.Lock()
	s.seq++
	atSeq := s.seq
	s.mu.Unlock()

	eligible := s.pool.Eligible(atSeq)
	if len(eligible) < minCount {
		return nil, fmt.Errorf("witness: pool exhausted, need %d, have %d eligible", minCount, len(eligible))
	}

	ranked := make([]scored, 0, len(eligible))
	for _, id := range eligible {
		ranked = append(ranked, scored{id: id, score: score(seed, id)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	selected := ranked
	if len(selected) > minCount {
		selected = selected[:minCount]
	}

	attributions := make([]eventstore.WitnessAttribution, 0, len(selected))
	for _, r := range selected {
		sig, err := s.signer.SignAsWitness(ctx, r.id, content)
		if err != nil {
			continue // bounded retry happens at the writer; a single failure here just shrinks this attempt's set
		}
		attributions = append(attributions, eventstore.WitnessAttribution{WitnessID: r.id, Signature: sig})
		s.pool.MarkUsed(r.id, atSeq)
	}

	if len(attributions) < minCount {
		return attributions, fmt.Errorf("witness: only %d of %d selected witnesses signed", len(attributions), minCount)
	}
	return attributions, nil
}
