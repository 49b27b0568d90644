// Package hash computes content hashes of Python syntax trees. The build
// cache keys lowered modules by these hashes.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/pyaot/pyast"
)

// HashModule computes the SHA-256 content hash of a module tree.
//
// The hash is computed over a deterministic serialization of the tree that
// ignores source positions. Two modules with the same name and the same
// statements produce the same hash.
func HashModule(m *pyast.Module) [32]byte {
	return sha256.Sum256(Serialize(m))
}

// Hex renders a hash as lowercase hexadecimal.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
