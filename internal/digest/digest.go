// Package digest implements the core runtime's content hashing,
// authenticated encryption, and JSON schema-path extraction — the
// building blocks the Analysis Cache and Encrypted Session Store layer
// their durability on.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a 32-byte SHA-256 content hash.
type Digest [sha256.Size]byte

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// String renders the digest as canonical lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
