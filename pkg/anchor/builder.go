// Copyright 2025 Certen Protocol
//
// Builder closes periodic anchor snapshots. Every witness independently
// signs the same message (a Merkle root), and the signatures aggregate
// into one compact BLS signature only because they all cover that
// identical message.

package anchor

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/crypto/bls"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/merkle"
)

// WitnessSet reports the witness IDs expected to attest the next anchor
// root.
type WitnessSet interface {
	Active() []string
}

// StaticWitnessSet is a fixed witness-ID list, for deployments where the
// anchor witness set is configured directly rather than sourced from the
// event-witnessing pool's cooldown-tracked set (pkg/witness.Pool's
// cooldown exists to spread per-event selection load, which does not
// apply to a witness attesting one root per anchor period).
type StaticWitnessSet []string

// Active implements WitnessSet.
func (s StaticWitnessSet) Active() []string { return []string(s) }

// Signer collects one witness's BLS attestation over an anchor root.
type Signer interface {
	SignRoot(ctx context.Context, witnessID string, root []byte) (*bls.Signature, *bls.PublicKey, error)
}

// localSigner signs directly against an in-process BLSKeystore, the path
// a single-process deployment or a test uses. A multi-process deployment
// would instead implement Signer over peer RPC, the way
// pkg/witness.Signer abstracts per-event attestation collection.
type localSigner struct {
	keystore *BLSKeystore
}

// SignRoot implements Signer.
func (s *localSigner) SignRoot(ctx context.Context, witnessID string, root []byte) (*bls.Signature, *bls.PublicKey, error) {
	sig, err := s.keystore.SignRoot(witnessID, root)
	if err != nil {
		return nil, nil, err
	}
	pub, err := s.keystore.PublicKey(witnessID)
	if err != nil {
		return nil, nil, err
	}
	return sig, pub, nil
}

// Builder sweeps new events into a Merkle tree, collects a BLS
// attestation over the root from every active witness, aggregates them,
// and persists the closed snapshot.
type Builder struct {
	Store     *eventstore.Store
	Repo      Repository
	Witnesses WitnessSet
	Signer    Signer
	Threshold int // minimum attestations required to close; 0 means require every active witness
	Clock     func() time.Time
}

// NewBuilder wires a Builder that signs directly against keystore.
func NewBuilder(store *eventstore.Store, repo Repository, witnesses WitnessSet, keystore *BLSKeystore) *Builder {
	return &Builder{
		Store:     store,
		Repo:      repo,
		Witnesses: witnesses,
		Signer:    &localSigner{keystore: keystore},
		Clock:     time.Now,
	}
}

// CloseSnapshot sweeps every event since the last closed snapshot into
// one new snapshot. Returns ErrNoNewEvents if the store has not advanced.
func (b *Builder) CloseSnapshot(ctx context.Context) (*Snapshot, error) {
	clock := b.Clock
	if clock == nil {
		clock = time.Now
	}

	head, err := b.Store.Head()
	if err != nil {
		return nil, fmt.Errorf("anchor: read store head: %w", err)
	}
	if head == nil {
		return nil, ErrNoNewEvents
	}

	firstSeq := int64(1)
	nextAnchorSeq := int64(1)
	last, err := b.Repo.Latest(ctx)
	if err == nil {
		firstSeq = last.LastEventSeq + 1
		nextAnchorSeq = last.AnchorSequence + 1
	} else if err != ErrSnapshotNotFound {
		return nil, err
	}
	if firstSeq > head.Sequence {
		return nil, ErrNoNewEvents
	}

	leaves := make([][]byte, 0, head.Sequence-firstSeq+1)
	for seq := firstSeq; seq <= head.Sequence; seq++ {
		ev, err := b.Store.GetEvent(seq)
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
		return nil, fmt.Errorf("anchor: build tree: %w", err)
	}
	root := tree.Root()

	attestations, sigs, pubs, err := b.collectAttestations(ctx, root)
	if err != nil {
		return nil, err
	}

	aggSig, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, fmt.Errorf("anchor: aggregate signatures: %w", err)
	}

	snapshot := Snapshot{
		AnchorSequence:      nextAnchorSeq,
		FirstEventSeq:       firstSeq,
		LastEventSeq:        head.Sequence,
		Root:                tree.RootHex(),
		Attestations:        attestations,
		AggregateSignature:  aggSig.Bytes(),
		AggregatePublicKeys: pubKeyBytes(pubs),
		ClosedAt:            clock(),
	}

	if err := b.Repo.Insert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("anchor: persist snapshot: %w", err)
	}
	return &snapshot, nil
}

// collectAttestations gathers and verifies one BLS signature per active
// witness over root, discarding any witness that fails to sign or whose
// signature does not verify rather than failing the whole close.
func (b *Builder) collectAttestations(ctx context.Context, root []byte) ([]WitnessAttestation, []*bls.Signature, []*bls.PublicKey, error) {
	ids := b.Witnesses.Active()
	if len(ids) == 0 {
		return nil, nil, nil, fmt.Errorf("anchor: no active witnesses to attest anchor root")
	}
	threshold := b.Threshold
	if threshold <= 0 {
		threshold = len(ids)
	}

	var attestations []WitnessAttestation
	var sigs []*bls.Signature
	var pubs []*bls.PublicKey
	for _, id := range ids {
		sig, pub, err := b.Signer.SignRoot(ctx, id, root)
		if err != nil {
			continue
		}
		if !VerifyAttestation(pub, root, sig) {
			continue
		}
		attestations = append(attestations, WitnessAttestation{WitnessID: id, PublicKey: pub.Bytes(), Signature: sig.Bytes()})
		sigs = append(sigs, sig)
		pubs = append(pubs, pub)
	}
	if len(attestations) < threshold {
		return nil, nil, nil, ErrInsufficientAttestations
	}
	return attestations, sigs, pubs, nil
}

func pubKeyBytes(pubs []*bls.PublicKey) [][]byte {
	out := make([][]byte, len(pubs))
	for i, p := range pubs {
		out[i] = p.Bytes()
	}
	return out
}
