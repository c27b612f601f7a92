// Copyright 2025 Certen Protocol
//
// Ed25519Signer implements eventstore.SigningPort by looking up the active
// key for an owner at a given timestamp and signing over a domain-separated
// digest, the same construction as the teacher's Ed25519 attestation
// strategy (domain || sha256(content), then Ed25519 over that).

package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
)

const domainAgentSignature = "CONCLAVE_AGENT_SIGNATURE_V1"

// Ed25519Signer is the production SigningPort implementation.
type Ed25519Signer struct {
	registry *Registry
	mode     eventstore.ModeWatermark
}

// NewEd25519Signer builds a signer. mode is fixed at construction, set from
// the validated DevMode/Environment config (H1) at process startup.
func NewEd25519Signer(registry *Registry, devMode bool) *Ed25519Signer {
	mode := eventstore.WatermarkProduction
	if devMode {
		mode = eventstore.WatermarkDevStub
	}
	return &Ed25519Signer{registry: registry, mode: mode}
}

func domainMessage(content []byte) []byte {
	h := sha256.Sum256(content)
	msg := make([]byte, 0, len(domainAgentSignature)+len(h))
	msg = append(msg, domainAgentSignature...)
	msg = append(msg, h[:]...)
	return msg
}

// Sign implements eventstore.SigningPort.
func (s *Ed25519Signer) Sign(ctx context.Context, ownerID string, at time.Time, content []byte) ([]byte, error) {
	rec, err := s.registry.GetActiveAt(ownerID, at)
	if err != nil {
		return nil, fmt.Errorf("signing: %s at %s: %w", ownerID, at, err)
	}
	if len(rec.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing: owner %s has no usable private key loaded", ownerID)
	}
	return ed25519.Sign(rec.PrivateKey, domainMessage(content)), nil
}

// Mode implements eventstore.SigningPort.
func (s *Ed25519Signer) Mode() eventstore.ModeWatermark { return s.mode }

// VerifyAt implements eventstore.KeyVerifier: checks a signature against
// the key that was active at the claimed signing time.
func (s *Ed25519Signer) VerifyAt(ownerID string, at interface{}, content, signature []byte) (bool, error) {
	ts, ok := at.(time.Time)
	if !ok {
		return false, fmt.Errorf("signing: VerifyAt expects a time.Time, got %T", at)
	}
	rec, err := s.registry.GetActiveAt(ownerID, ts)
	if err != nil {
		return false, err
	}
	if len(rec.PublicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(rec.PublicKey, domainMessage(content), signature), nil
}
