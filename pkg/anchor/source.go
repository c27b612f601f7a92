// Copyright 2025 Certen Protocol
//
// Source implements pkg/observer.AnchorSource by rebuilding the Merkle
// tree a closed snapshot swept and generating the inclusion proof for one
// event within it. The snapshot record only carries the root and witness
// attestations, not the tree itself, so rebuilding from the event store's
// content hashes is the same recomputation pkg/observer already trusts
// for any Merkle-backed proof.

package anchor

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/merkle"
	"github.com/archon72/conclave/pkg/observer"
)

// Source adapts a Repository and the event store into an
// observer.AnchorSource.
type Source struct {
	Store *eventstore.Store
	Repo  Repository
}

// NewSource builds a Source.
func NewSource(store *eventstore.Store, repo Repository) *Source {
	return &Source{Store: store, Repo: repo}
}

// ProofFor implements observer.AnchorSource.
func (s *Source) ProofFor(ctx context.Context, sequence int64) (*observer.AnchorProof, error) {
	snap, err := s.Repo.FindCovering(ctx, sequence)
	if err == ErrSnapshotNotFound {
		return nil, observer.ErrNotYetAnchored{Sequence: sequence}
	}
	if err != nil {
		return nil, fmt.Errorf("anchor: find snapshot covering %d: %w", sequence, err)
	}
	if !snap.Covers(sequence) {
		return nil, fmt.Errorf("anchor: repository returned snapshot %d not covering sequence %d", snap.AnchorSequence, sequence)
	}

	leaves := make([][]byte, 0, snap.LastEventSeq-snap.FirstEventSeq+1)
	for seq := snap.FirstEventSeq; seq <= snap.LastEventSeq; seq++ {
		ev, err := s.Store.GetEvent(seq)
		if err != nil {
			return nil, fmt.Errorf("anchor: read event %d: %w", seq, err)
		}
		leaf, err := hex.DecodeString(ev.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("anchor: decode content hash for event %d: %w", seq, err)
		}
		leaves = append(leaves, leaf)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("anchor: rebuild tree for anchor %d: %w", snap.AnchorSequence, err)
	}
	if tree.RootHex() != snap.Root {
		return nil, fmt.Errorf("anchor: rebuilt root mismatch for anchor %d", snap.AnchorSequence)
	}

	inclusion, err := tree.GenerateProof(snap.leafIndex(sequence))
	if err != nil {
		return nil, fmt.Errorf("anchor: generate inclusion proof for event %d: %w", sequence, err)
	}

	return &observer.AnchorProof{
		EventSequence:  sequence,
		Inclusion:      inclusion,
		AnchorSequence: snap.AnchorSequence,
		AnchorRoot:     snap.Root,
		AnchoredAt:     snap.ClosedAt,
	}, nil
}

var _ observer.AnchorSource = (*Source)(nil)
