// Copyright 2025 Certen Protocol
//
// WitnessSigner and WitnessVerifier adapt a signing.Registry to the
// witness-attestation domain, separate from the agent-signature domain in
// pkg/signing so the two purposes can never be confused cryptographically.

package witness

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/signing"
)

const domainWitnessAttestation = "CONCLAVE_WITNESS_ATTESTATION_V1"

func witnessDomainMessage(content []byte) []byte {
	h := sha256.Sum256(content)
	msg := make([]byte, 0, len(domainWitnessAttestation)+len(h))
	msg = append(msg, domainWitnessAttestation...)
	msg = append(msg, h[:]...)
	return msg
}

// RegistrySigner implements Signer over a key registry shared with the
// signing package, using a distinct domain tag.
type RegistrySigner struct {
	registry *signing.Registry
	clock    func() time.Time
}

// NewRegistrySigner builds a RegistrySigner.
func NewRegistrySigner(registry *signing.Registry, clock func() time.Time) *RegistrySigner {
	if clock == nil {
		clock = time.Now
	}
	return &RegistrySigner{registry: registry, clock: clock}
}

// SignAsWitness implements Signer.
func (s *RegistrySigner) SignAsWitness(ctx context.Context, witnessID string, content []byte) ([]byte, error) {
	rec, err := s.registry.GetActiveAt(witnessID, s.clock())
	if err != nil {
		return nil, fmt.Errorf("witness: %s: %w", witnessID, err)
	}
	if len(rec.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("witness: %s has no usable private key loaded", witnessID)
	}
	return ed25519.Sign(rec.PrivateKey, witnessDomainMessage(content)), nil
}

// Verifier checks witness attestation signatures, implementing
// eventstore.WitnessVerifier.
type Verifier struct {
	registry *signing.Registry
	clock    func() time.Time
}

// NewVerifier builds a Verifier.
func NewVerifier(registry *signing.Registry, clock func() time.Time) *Verifier {
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{registry: registry, clock: clock}
}

// VerifyAttribution implements eventstore.WitnessVerifier.
func (v *Verifier) VerifyAttribution(witnessID string, content, signature []byte) (bool, error) {
	rec, err := v.registry.GetActiveAt(witnessID, v.clock())
	if err != nil {
		return false, err
	}
	if len(rec.PublicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(rec.PublicKey, witnessDomainMessage(content), signature), nil
}
