// Package hashing wraps SHA-256 digests over canonical bytes. Every hash in a
// lineage uses the same algorithm; the genesis block records the algorithm tag
// so a future migration can introduce a new one without breaking old chains.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/veritrace/veritrace/canonical"
)

// AlgSHA256 is the algorithm tag pinned on genesis blocks. It is the only
// algorithm current lineages may use.
const AlgSHA256 = "sha256"

// DigestHex returns the SHA-256 digest of b as a 64-character lowercase hex
// string.
func DigestHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashRecord canonically encodes v and returns the hex digest of the result.
// Identical logical records always hash to the same value.
func HashRecord(v any) (string, error) {
	b, err := canonical.Encode(v)
	if err != nil {
		return "", err
	}
	return DigestHex(b), nil
}

// HashIdentity pseudonymizes a party or product identifier. An empty
// identifier hashes to the empty string so optional parties stay absent
// rather than acquiring a hash of "".
func HashIdentity(id string) string {
	if id == "" {
		return ""
	}
	return DigestHex([]byte(id))
}
