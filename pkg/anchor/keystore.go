// Copyright 2025 Certen Protocol
//
// BLSKeystore holds one BLS12-381 keypair per witness, used only to attest
// periodic anchor roots. This is deliberately a second key per witness,
// separate from the Ed25519 key pkg/witness uses for per-event
// attestation: BLS aggregation is only meaningful when every signer signs
// the identical message, which a periodic anchor root is and a per-event
// attestation is not. Domain-separated from every other signing purpose
// in this tree the same way pkg/witness.RegistrySigner is domain-separated
// from pkg/signing's agent-signature domain.

package anchor

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/archon72/conclave/pkg/crypto/bls"
)

const domainAnchorAttestation = "CONCLAVE_ANCHOR_ATTESTATION_V1"
const domainAnchorKeySeed = "CONCLAVE_ANCHOR_KEY_V1"

// BLSKeystore is an in-process registry of witness BLS keypairs. It holds
// private keys, so it must never be serialized; callers persist only the
// public keys and signatures recorded on a Snapshot.
type BLSKeystore struct {
	mu   sync.RWMutex
	keys map[string]*bls.PrivateKey
}

// NewBLSKeystore builds an empty keystore.
func NewBLSKeystore() *BLSKeystore {
	return &BLSKeystore{keys: make(map[string]*bls.PrivateKey)}
}

// GenerateForWitness deterministically derives witnessID's anchor BLS
// keypair from witnessID and chainID, mirroring
// bls.KeyManager.GenerateFromValidatorID's seed derivation but under a
// distinct domain tag so the two key spaces can never collide.
func (k *BLSKeystore) GenerateForWitness(witnessID, chainID string) (*bls.PublicKey, error) {
	seed := sha256.Sum256([]byte(domainAnchorKeySeed + ":" + witnessID + ":" + chainID))
	priv, pub, err := bls.GenerateKeyPairFromSeed(seed[:])
	if err != nil {
		return nil, fmt.Errorf("anchor: generate BLS key for witness %s: %w", witnessID, err)
	}
	k.mu.Lock()
	k.keys[witnessID] = priv
	k.mu.Unlock()
	return pub, nil
}

// Register installs an externally-provisioned keypair for witnessID,
// for deployments that load BLS keys from a file the way
// bls.KeyManager.LoadKey does rather than deriving them.
func (k *BLSKeystore) Register(witnessID string, priv *bls.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[witnessID] = priv
}

// PublicKey returns witnessID's anchor public key.
func (k *BLSKeystore) PublicKey(witnessID string) (*bls.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	priv, ok := k.keys[witnessID]
	if !ok {
		return nil, fmt.Errorf("anchor: no BLS key registered for witness %s", witnessID)
	}
	return priv.PublicKey(), nil
}

// SignRoot signs root on behalf of witnessID with the anchor-attestation
// domain tag.
func (k *BLSKeystore) SignRoot(witnessID string, root []byte) (*bls.Signature, error) {
	k.mu.RLock()
	priv, ok := k.keys[witnessID]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("anchor: no BLS key registered for witness %s", witnessID)
	}
	return priv.SignWithDomain(root, domainAnchorAttestation), nil
}

// VerifyAttestation checks one witness's signature over root.
func VerifyAttestation(pub *bls.PublicKey, root []byte, sig *bls.Signature) bool {
	return pub.VerifyWithDomain(sig, root, domainAnchorAttestation)
}
