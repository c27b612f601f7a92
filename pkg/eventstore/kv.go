// Copyright 2025 Certen Protocol
//
// KV is the storage abstraction backing the event store. SetBatch gives
// the writer a single atomic multi-key commit for "event row + head
// pointer" (§4.1 step 10).

package eventstore

import "errors"

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("eventstore: key not found")

// KV is the minimal key-value contract the event store needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	SetBatch(pairs map[string][]byte) error
}

// ====== KV key layout ======

var (
	keyHead        = []byte("eventstore:head")       // -> headRecord{sequence, content_hash}
	keyEventPrefix = []byte("eventstore:event:")     // + big-endian sequence -> Event
	keyCessation   = []byte("eventstore:cessation")  // -> bool (schema: true never reverts)
	keyHaltState   = []byte("eventstore:halt:state") // -> haltRecord (primary channel)
)

func eventKey(sequence int64) []byte {
	b := make([]byte, len(keyEventPrefix)+8)
	copy(b, keyEventPrefix)
	putBigEndian(b[len(keyEventPrefix):], uint64(sequence))
	return b
}

func putBigEndian(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
}
