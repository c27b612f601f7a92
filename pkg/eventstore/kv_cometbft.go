// Copyright 2025 Certen Protocol
//
// CometBFTKV wraps a cometbft-db dbm.DB for durable, on-disk event storage,
// with a batched write for the atomic "event row + head pointer" commit
// (§4.1 step 10).

package eventstore

import (
	dbm "github.com/cometbft/cometbft-db"
)

// CometBFTKV adapts a cometbft-db handle to the eventstore.KV contract.
type CometBFTKV struct {
	db dbm.DB
}

// NewCometBFTKV wraps db.
func NewCometBFTKV(db dbm.DB) *CometBFTKV {
	return &CometBFTKV{db: db}
}

func (a *CometBFTKV) Get(key []byte) ([]byte, error) {
	return a.db.Get(key)
}

func (a *CometBFTKV) Set(key, value []byte) error {
	return a.db.SetSync(key, value)
}

func (a *CometBFTKV) SetBatch(pairs map[string][]byte) error {
	batch := a.db.NewBatch()
	defer batch.Close()
	for k, v := range pairs {
		if err := batch.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}
