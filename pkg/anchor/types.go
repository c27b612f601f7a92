// Copyright 2025 Certen Protocol
//
// Periodic Merkle anchor snapshots (§4.12: "fetch a Merkle-style proof for
// a given event against a periodic anchor"). A Snapshot sweeps a
// contiguous run of event content hashes into one Merkle tree and attests
// its root with a BLS-aggregated witness signature, so the proof an
// observer fetches stays small no matter how many events the anchor
// covers.

package anchor

import (
	"errors"
	"time"
)

// ErrNoNewEvents means the store has not advanced past the last closed
// snapshot, so there is nothing new to anchor.
var ErrNoNewEvents = errors.New("anchor: no new events since last snapshot")

// ErrInsufficientAttestations means fewer witnesses signed the root than
// Builder.Threshold requires.
var ErrInsufficientAttestations = errors.New("anchor: insufficient witness attestations for quorum")

// ErrSnapshotNotFound means the repository has no snapshot matching the
// lookup.
var ErrSnapshotNotFound = errors.New("anchor: snapshot not found")

// WitnessAttestation is one witness's BLS signature over a snapshot's
// Merkle root, kept individually so a snapshot can be re-verified
// witness-by-witness even after its attestations have been aggregated.
type WitnessAttestation struct {
	WitnessID string `json:"witness_id"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// Snapshot is one closed anchor: the Merkle root over FirstEventSeq..
// LastEventSeq's content hashes, and the witness attestations collected
// over that root.
type Snapshot struct {
	AnchorSequence      int64                `json:"anchor_sequence"`
	FirstEventSeq       int64                `json:"first_event_seq"`
	LastEventSeq        int64                `json:"last_event_seq"`
	Root                string               `json:"root"` // hex-encoded 32-byte Merkle root
	Attestations        []WitnessAttestation `json:"attestations"`
	AggregateSignature  []byte               `json:"aggregate_signature"`
	AggregatePublicKeys [][]byte             `json:"aggregate_public_keys"`
	ClosedAt            time.Time            `json:"closed_at"`
}

// Covers reports whether sequence falls within this snapshot's swept
// range.
func (s Snapshot) Covers(sequence int64) bool {
	return sequence >= s.FirstEventSeq && sequence <= s.LastEventSeq
}

// leafIndex returns sequence's 0-based position among this snapshot's
// leaves, which BuildTree and GenerateProof both index from 0.
func (s Snapshot) leafIndex(sequence int64) int {
	return int(sequence - s.FirstEventSeq)
}
