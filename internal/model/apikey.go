// Package model defines domain entities for the application.
package model

import "time"

// Key type constants. The type selects the secret prefix at creation and
// is immutable afterwards.
const (
	KeyTypeDev        = "dev"
	KeyTypeProduction = "production"
)

// ValidKeyType reports whether t is a recognized key type.
func ValidKeyType(t string) bool {
	return t == KeyTypeDev || t == KeyTypeProduction
}

// APIKey represents an API key entity.
//
// Key holds the bearer secret in plaintext. Secrets are persisted and
// returned on every read rather than shown once; this mirrors the
// product's retrievable-secret behavior and is a deliberately weaker
// posture than one-time reveal plus a stored hash.
type APIKey struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId,omitempty"`
	Name         string     `json:"name"`
	Key          string     `json:"key"`
	Type         string     `json:"type"`
	MonthlyLimit *int       `json:"monthlyLimit,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
	IsActive     bool       `json:"isActive"`
}

// CreateKeyRequest represents a request to create a new API key.
type CreateKeyRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	MonthlyLimit *int   `json:"monthlyLimit,omitempty"`
}

// UpdateKeyRequest represents a partial update to an API key.
// Only the name and active flag are mutable; other fields in the
// payload are ignored.
type UpdateKeyRequest struct {
	IsActive *bool   `json:"isActive,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// ValidateKeyRequest carries the secret presented for validation.
type ValidateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// KeyInfo is the subset of key attributes disclosed to a validating
// caller. The owner and row id are withheld on purpose: the caller
// holds the secret, not necessarily the account.
type KeyInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	MonthlyLimit *int   `json:"monthlyLimit,omitempty"`
}

// ValidationResult is the outcome of validating a secret. Invalid and
// inactive keys are ordinary results, not errors.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	KeyInfo *KeyInfo `json:"keyInfo,omitempty"`
}
