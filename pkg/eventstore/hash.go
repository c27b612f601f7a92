// Copyright 2025 Certen Protocol

package eventstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/archon72/conclave/pkg/canonical"
)

func canonicalMarshal(v interface{}) ([]byte, error) {
	return canonical.Marshal(v)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
