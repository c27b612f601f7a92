// Copyright 2025 Certen Protocol
//
// KeyManager orchestrates key registry operations (§4.4): every mutation is
// recorded as an event before (or as) it takes effect in the Registry, so
// the registry can always be rebuilt by replay.

package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/google/uuid"
)

// KeyRegisteredPayload is the event payload for a new key window.
type KeyRegisteredPayload struct {
	OwnerID    string    `json:"owner_id"`
	KeyID      string    `json:"key_id"`
	PublicKey  string    `json:"public_key_hex"`
	ActiveFrom time.Time `json:"active_from"`
}

// KeyDeactivatedPayload records a scheduled (rotation) deactivation.
type KeyDeactivatedPayload struct {
	OwnerID     string    `json:"owner_id"`
	KeyID       string    `json:"key_id"`
	ActiveUntil time.Time `json:"active_until"`
	Reason      string    `json:"reason"`
}

// KeyEmergencyRevokedPayload records an immediate, overlap-bypassing revoke.
type KeyEmergencyRevokedPayload struct {
	OwnerID string `json:"owner_id"`
	KeyID   string `json:"key_id"`
	Reason  string `json:"reason"`
}

// Appender is the subset of eventstore.Writer that KeyManager needs.
type Appender interface {
	Append(ctx context.Context, eventType eventstore.EventType, payload interface{}, agentID, ownerID string) (*eventstore.Event, error)
}

// KeyManager wires Registry to the event log.
type KeyManager struct {
	registry *Registry
	writer   Appender
	clock    func() time.Time
}

// NewKeyManager builds a KeyManager. Each mutating method (Register, Rotate,
// EmergencyRevoke) takes a writerOwnerID identifying the signing key used to
// sign the registry-mutation events themselves (typically a system/keeper
// key, already registered out of band at bootstrap).
func NewKeyManager(registry *Registry, writer Appender, clock func() time.Time) *KeyManager {
	if clock == nil {
		clock = time.Now
	}
	return &KeyManager{registry: registry, writer: writer, clock: clock}
}

// Register generates a fresh Ed25519 key pair for ownerID, writes
// KeyRegistered, and adds the window to the registry.
func (m *KeyManager) Register(ctx context.Context, ownerID, actorID, writerOwnerID string) (*KeyRecord, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: generate keypair: %w", err)
	}
	activeFrom := m.clock()
	keyID := uuid.New().String()

	if _, err := m.writer.Append(ctx, eventstore.KeyRegistered, KeyRegisteredPayload{
		OwnerID: ownerID, KeyID: keyID, PublicKey: hex.EncodeToString(pub), ActiveFrom: activeFrom,
	}, actorID, writerOwnerID); err != nil {
		return nil, err
	}

	rec := KeyRecord{OwnerID: ownerID, KeyID: keyID, PublicKey: pub, PrivateKey: priv, ActiveFrom: activeFrom}
	if err := m.registry.Add(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Rotate generates a new key for ownerID and schedules the current active
// key's expiry 30 days out, leaving both valid during the overlap window.
func (m *KeyManager) Rotate(ctx context.Context, ownerID, actorID, writerOwnerID string) (*KeyRecord, error) {
	now := m.clock()
	current, err := m.registry.GetActiveAt(ownerID, now)
	if err == nil {
		until := now.Add(rotationOverlap)
		if _, werr := m.writer.Append(ctx, eventstore.KeyDeactivated, KeyDeactivatedPayload{
			OwnerID: ownerID, KeyID: current.KeyID, ActiveUntil: until, Reason: "rotation",
		}, actorID, writerOwnerID); werr != nil {
			return nil, werr
		}
		if err := m.registry.SetActiveUntil(ownerID, current.KeyID, until); err != nil {
			return nil, err
		}
	}
	return m.Register(ctx, ownerID, actorID, writerOwnerID)
}

// EmergencyRevoke sets active_until = now immediately, bypassing the
// rotation overlap entirely.
func (m *KeyManager) EmergencyRevoke(ctx context.Context, ownerID, keyID, reason, actorID, writerOwnerID string) error {
	now := m.clock()
	if _, err := m.writer.Append(ctx, eventstore.KeyEmergencyRevoked, KeyEmergencyRevokedPayload{
		OwnerID: ownerID, KeyID: keyID, Reason: reason,
	}, actorID, writerOwnerID); err != nil {
		return err
	}
	return m.registry.SetActiveUntil(ownerID, keyID, now)
}
