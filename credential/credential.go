// Package credential implements the encrypted QR credential that binds a
// physical unit to its ledger lineage. A credential is sealed into a compact
// token with authenticated encryption; the token is what gets embedded in the
// distributed QR artifact. Opening a token with the wrong secret, or a token
// whose bytes were tampered with, fails closed: no partially decrypted
// credential is ever returned.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritrace/veritrace/canonical"
)

// Credential is the plaintext payload sealed into a QR token. It is never
// stored verbatim, only as ciphertext.
type Credential struct {
	ProductID string `json:"product_id"`
	IssuerID  string `json:"issuer_id"`
	OrgID     string `json:"org_id"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"issued_at"`
}

// Issue mints a fresh credential for a product with a random nonce and the
// current Unix timestamp.
func Issue(productID, issuerID, orgID string) Credential {
	return Credential{
		ProductID: productID,
		IssuerID:  issuerID,
		OrgID:     orgID,
		Nonce:     uuid.NewString(),
		IssuedAt:  time.Now().Unix(),
	}
}

// CodecErrorKind classifies why a token could not be opened.
type CodecErrorKind string

const (
	// MalformedToken means the token was not decodable at all: bad base64,
	// or too short to contain a nonce and ciphertext.
	MalformedToken CodecErrorKind = "malformed_token"
	// AuthenticationFailed means the ciphertext or tag did not authenticate
	// under the supplied secret.
	AuthenticationFailed CodecErrorKind = "authentication_failed"
	// SchemaMismatch means decryption succeeded but the plaintext did not
	// contain a valid credential.
	SchemaMismatch CodecErrorKind = "schema_mismatch"
)

// CodecError reports a failed Open. The Kind is stable and safe to surface to
// callers; Detail is diagnostic only.
type CodecError struct {
	Kind   CodecErrorKind
	Detail string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("credential: %s: %s", e.Kind, e.Detail)
}

const gcmNonceSize = 12

// deriveKey stretches the configured secret into a 32-byte AES-256 key.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Seal serializes the credential canonically, encrypts it with AES-256-GCM
// under a per-seal random nonce, and returns base64url(nonce || ciphertext).
// The GCM tag is part of the ciphertext.
func Seal(c Credential, secret string) (string, error) {
	plaintext, err := canonical.Encode(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to initialize GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The authentication check happens before any decrypted
// byte is interpreted; on any failure the returned error is a *CodecError and
// the zero Credential.
func Open(token, secret string) (Credential, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Credential{}, &CodecError{Kind: MalformedToken, Detail: "invalid base64url"}
	}
	if len(raw) <= gcmNonceSize {
		return Credential{}, &CodecError{Kind: MalformedToken, Detail: "token too short"}
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return Credential{}, &CodecError{Kind: AuthenticationFailed, Detail: err.Error()}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Credential{}, &CodecError{Kind: AuthenticationFailed, Detail: err.Error()}
	}

	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credential{}, &CodecError{Kind: AuthenticationFailed, Detail: "tag verification failed"}
	}

	var c Credential
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Credential{}, &CodecError{Kind: SchemaMismatch, Detail: err.Error()}
	}
	if c.ProductID == "" || c.Nonce == "" {
		return Credential{}, &CodecError{Kind: SchemaMismatch, Detail: "missing required fields"}
	}
	return c, nil
}
