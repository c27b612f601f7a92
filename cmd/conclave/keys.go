// Copyright 2025 Certen Protocol
//
// Signing-key bootstrap for a single-process deployment. Grounded on
// main.go's loadOrGenerateEd25519Key: a hex-encoded private key persisted
// under the data directory, generated once and reused across restarts.

package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/archon72/conclave/pkg/signing"
)

const systemKeyFile = "system_ed25519.key"

// loadOrGenerateEd25519Key reads the process's signing key from dataDir,
// generating and persisting one on first run.
func loadOrGenerateEd25519Key(dataDir string) (ed25519.PrivateKey, error) {
	keyPath := filepath.Join(dataDir, systemKeyFile)

	if raw, err := os.ReadFile(keyPath); err == nil {
		keyBytes, err := hex.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("keys: decode %s: %w", keyPath, err)
		}
		if len(keyBytes) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("keys: %s has wrong key size %d", keyPath, len(keyBytes))
		}
		return ed25519.PrivateKey(keyBytes), nil
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("keys: create data dir: %w", err)
	}
	keyHex := hex.EncodeToString(priv)
	if err := os.WriteFile(keyPath, []byte(keyHex), 0600); err != nil {
		return nil, fmt.Errorf("keys: write %s: %w", keyPath, err)
	}
	return priv, nil
}

// bootstrapSigningKeys registers one process-wide key under every fixed
// system identity the event-sourced substrate itself signs as (the
// validator roles and the reconciliation gate). Per-archon keys for the
// 72 deliberating agents are provisioned separately, through
// signing.CeremonyManager's operator-driven ceremony, not at process
// startup: that is a witnessed, multi-party state machine, not something
// safe to run unattended.
func bootstrapSigningKeys(registry *signing.Registry, priv ed25519.PrivateKey, owners []string, now time.Time) error {
	pub := priv.Public().(ed25519.PublicKey)
	for _, owner := range owners {
		rec := signing.KeyRecord{
			OwnerID:    owner,
			KeyID:      "system-bootstrap",
			PublicKey:  pub,
			PrivateKey: priv,
			ActiveFrom: now,
		}
		if err := registry.Add(rec); err != nil {
			return fmt.Errorf("keys: register owner %s: %w", owner, err)
		}
	}
	return nil
}
