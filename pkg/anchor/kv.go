// Copyright 2025 Certen Protocol
//
// Repository persists closed anchor snapshots over the same eventstore.KV
// abstraction the event store itself uses (CometBFTKV over cometbft-db, or
// an in-memory stub for tests), rather than a second Postgres store: lib/pq
// in this tree is reserved for pkg/audit's durable breach and cost records.
// Key layout mirrors eventstore/kv.go's prefix-plus-big-endian-sequence
// convention.

package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/archon72/conclave/pkg/eventstore"
)

var (
	keyAnchorHead     = []byte("anchor:head")      // -> int64 anchor sequence of the latest closed snapshot
	keySnapshotPrefix = []byte("anchor:snapshot:") // + big-endian anchor sequence -> Snapshot
	keyIndex          = []byte("anchor:index")     // -> []indexEntry sorted by FirstEventSeq
)

// indexEntry lets FindCovering locate the snapshot for an event sequence
// without a range scan, which eventstore.KV does not support.
type indexEntry struct {
	AnchorSequence int64 `json:"anchor_sequence"`
	FirstEventSeq  int64 `json:"first_event_seq"`
	LastEventSeq   int64 `json:"last_event_seq"`
}

func snapshotKey(anchorSeq int64) []byte {
	b := make([]byte, len(keySnapshotPrefix)+8)
	copy(b, keySnapshotPrefix)
	putBigEndian(b[len(keySnapshotPrefix):], uint64(anchorSeq))
	return b
}

func putBigEndian(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
}

// Repository persists and retrieves closed anchor snapshots.
type Repository interface {
	Insert(ctx context.Context, s Snapshot) error
	Latest(ctx context.Context) (*Snapshot, error)
	FindCovering(ctx context.Context, sequence int64) (*Snapshot, error)
}

// KVRepository implements Repository over eventstore.KV.
type KVRepository struct {
	kv eventstore.KV
}

// NewKVRepository wraps kv as a snapshot repository.
func NewKVRepository(kv eventstore.KV) *KVRepository {
	return &KVRepository{kv: kv}
}

func (r *KVRepository) loadIndex() ([]indexEntry, error) {
	raw, err := r.kv.Get(keyIndex)
	if err != nil {
		return nil, fmt.Errorf("anchor: read index: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var idx []indexEntry
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("anchor: decode index: %w", err)
	}
	return idx, nil
}

// Insert writes s, updates the FirstEventSeq-sorted index, and advances
// the head pointer, all in one KV batch so a crash mid-write cannot leave
// the index and the snapshot record disagreeing.
func (r *KVRepository) Insert(ctx context.Context, s Snapshot) error {
	sBytes, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("anchor: marshal snapshot: %w", err)
	}

	idx, err := r.loadIndex()
	if err != nil {
		return err
	}
	idx = append(idx, indexEntry{AnchorSequence: s.AnchorSequence, FirstEventSeq: s.FirstEventSeq, LastEventSeq: s.LastEventSeq})
	sort.Slice(idx, func(i, j int) bool { return idx[i].FirstEventSeq < idx[j].FirstEventSeq })
	idxBytes, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("anchor: marshal index: %w", err)
	}

	headBytes, err := json.Marshal(s.AnchorSequence)
	if err != nil {
		return fmt.Errorf("anchor: marshal head: %w", err)
	}

	return r.kv.SetBatch(map[string][]byte{
		string(snapshotKey(s.AnchorSequence)): sBytes,
		string(keyIndex):                      idxBytes,
		string(keyAnchorHead):                 headBytes,
	})
}

// Latest returns the most recently closed snapshot, or ErrSnapshotNotFound
// if no snapshot has ever been closed.
func (r *KVRepository) Latest(ctx context.Context) (*Snapshot, error) {
	raw, err := r.kv.Get(keyAnchorHead)
	if err != nil {
		return nil, fmt.Errorf("anchor: read head: %w", err)
	}
	if raw == nil {
		return nil, ErrSnapshotNotFound
	}
	var anchorSeq int64
	if err := json.Unmarshal(raw, &anchorSeq); err != nil {
		return nil, fmt.Errorf("anchor: decode head: %w", err)
	}
	return r.get(anchorSeq)
}

func (r *KVRepository) get(anchorSeq int64) (*Snapshot, error) {
	raw, err := r.kv.Get(snapshotKey(anchorSeq))
	if err != nil {
		return nil, fmt.Errorf("anchor: read snapshot %d: %w", anchorSeq, err)
	}
	if raw == nil {
		return nil, ErrSnapshotNotFound
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("anchor: decode snapshot %d: %w", anchorSeq, err)
	}
	return &s, nil
}

// FindCovering returns the snapshot whose swept range contains sequence,
// or ErrSnapshotNotFound if sequence has not been anchored yet.
func (r *KVRepository) FindCovering(ctx context.Context, sequence int64) (*Snapshot, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range idx {
		if sequence >= e.FirstEventSeq && sequence <= e.LastEventSeq {
			return r.get(e.AnchorSequence)
		}
	}
	return nil, ErrSnapshotNotFound
}

var _ Repository = (*KVRepository)(nil)
