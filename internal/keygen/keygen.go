// Package keygen generates and recognizes API key secrets.
package keygen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/dandi/dandi/internal/model"
)

// Secret format: <prefix>-<48 hex chars>
// Example: dandi-dev-4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b4f8d2e1b9c7a5f3d
const (
	// PrefixDev is the secret prefix for dev keys.
	PrefixDev = "dandi-dev"
	// PrefixProd is the secret prefix for production keys.
	PrefixProd = "dandi-prod"

	// SecretBytes is the entropy of the random portion. 24 bytes render
	// as 48 hex characters; collision probability is negligible, with
	// the store's uniqueness constraint as the backstop.
	SecretBytes = 24
)

var secretPattern = regexp.MustCompile(`^dandi-(dev|prod)-[0-9a-f]{48}$`)

// Prefix returns the secret prefix for a key type.
func Prefix(keyType string) string {
	if keyType == model.KeyTypeProduction {
		return PrefixProd
	}
	return PrefixDev
}

// NewSecret generates a fresh bearer secret for the given key type.
// Backed by crypto/rand; safe for concurrent use without coordination.
func NewSecret(keyType string) (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return Prefix(keyType) + "-" + hex.EncodeToString(buf), nil
}

// MatchesFormat reports whether s looks like a secret this service issued.
func MatchesFormat(s string) bool {
	return secretPattern.MatchString(s)
}

// QuickHash returns a hex SHA-256 digest of a credential. Used to derive
// cache keys without storing the credential itself.
func QuickHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
