// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dandi/dandi/internal/keygen"
	"github.com/dandi/dandi/internal/metrics"
	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/store"
)

// Service errors.
var (
	ErrInvalidName  = errors.New("name is required and must be a string")
	ErrInvalidType  = errors.New("type must be either 'dev' or 'production'")
	ErrInvalidLimit = errors.New("monthlyLimit must be a positive integer")
	ErrKeyNotFound  = errors.New("API key not found")
)

// Validation result messages, part of the wire contract.
const (
	MsgInvalidKey  = "Invalid API key"
	MsgInactiveKey = "API key is inactive"
	MsgValidKey    = "API key is valid and active!"
)

// maxSecretRetries bounds regeneration attempts when an insert hits the
// secret uniqueness constraint.
const maxSecretRetries = 3

// KeyService implements the API key lifecycle: creation, ownership-scoped
// reads and mutations, and secret validation.
//
// Every read or mutation of a specific key id verifies the requester owns
// it, and reports a plain not-found on mismatch. Callers cannot tell
// "exists but not yours" from "does not exist"; do not separate the two.
type KeyService struct {
	store   store.Store
	metrics metrics.Recorder
}

// NewKeyService creates a KeyService.
func NewKeyService(st store.Store, recorder metrics.Recorder) *KeyService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &KeyService{
		store:   st,
		metrics: recorder,
	}
}

// CreateKeyInput defines input for creating an API key.
type CreateKeyInput struct {
	RequesterID  string
	Name         string
	Type         string
	MonthlyLimit *int
}

// CreateKey validates the input, generates a secret, and persists a new
// key owned by the requester. The returned record carries the plaintext
// secret; it stays retrievable on later reads as well.
func (s *KeyService) CreateKey(ctx context.Context, input CreateKeyInput) (*model.APIKey, error) {
	if input.Name == "" {
		return nil, ErrInvalidName
	}
	if !model.ValidKeyType(input.Type) {
		return nil, ErrInvalidType
	}
	if input.MonthlyLimit != nil && *input.MonthlyLimit < 1 {
		return nil, ErrInvalidLimit
	}

	var limit *int
	if input.MonthlyLimit != nil {
		v := *input.MonthlyLimit
		limit = &v
	}

	for attempt := 0; attempt < maxSecretRetries; attempt++ {
		secret, err := keygen.NewSecret(input.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}

		key := &model.APIKey{
			ID:           ulid.Make().String(),
			UserID:       input.RequesterID,
			Name:         input.Name,
			Key:          secret,
			Type:         input.Type,
			MonthlyLimit: limit,
			CreatedAt:    time.Now().UTC(),
			IsActive:     true,
		}

		err = s.store.CreateKey(ctx, key)
		if errors.Is(err, store.ErrDuplicateSecret) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create API key: %w", err)
		}

		s.metrics.IncKeyCreated()
		return key, nil
	}

	return nil, fmt.Errorf("failed to create API key: %w", store.ErrDuplicateSecret)
}

// ListKeys returns the requester's keys, newest first.
func (s *KeyService) ListKeys(ctx context.Context, requesterID string) ([]*model.APIKey, error) {
	keys, err := s.store.ListKeysByUserID(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// GetKey returns the key if it exists and the requester owns it.
func (s *KeyService) GetKey(ctx context.Context, requesterID, keyID string) (*model.APIKey, error) {
	key, err := s.store.GetKeyByID(ctx, keyID)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	if key.UserID != requesterID {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// UpdateKey applies a partial update to an owned key. Only the name and
// active flag are mutable; the secret, type, and owner never change.
func (s *KeyService) UpdateKey(ctx context.Context, requesterID, keyID string, req model.UpdateKeyRequest) (*model.APIKey, error) {
	if _, err := s.GetKey(ctx, requesterID, keyID); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateKey(ctx, keyID, store.KeyUpdate{
		IsActive: req.IsActive,
		Name:     req.Name,
	})
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update API key: %w", err)
	}

	s.metrics.IncKeyUpdated()
	return updated, nil
}

// DeleteKey removes an owned key. Deletion is terminal regardless of the
// key's active state.
func (s *KeyService) DeleteKey(ctx context.Context, requesterID, keyID string) error {
	if _, err := s.GetKey(ctx, requesterID, keyID); err != nil {
		return err
	}

	err := s.store.DeleteKey(ctx, keyID)
	if errors.Is(err, store.ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	s.metrics.IncKeyDeleted()
	return nil
}

// ValidateKey checks a presented secret. It takes no requester identity:
// anyone holding the raw secret may validate it, mirroring bearer-token
// semantics. A successful validation stamps last_used; invalid and
// inactive outcomes leave the record untouched.
func (s *KeyService) ValidateKey(ctx context.Context, secret string) (*model.ValidationResult, error) {
	key, err := s.store.GetKeyBySecret(ctx, secret)
	if errors.Is(err, store.ErrKeyNotFound) {
		s.metrics.IncKeyValidation("invalid")
		return &model.ValidationResult{Valid: false, Message: MsgInvalidKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	if !key.IsActive {
		s.metrics.IncKeyValidation("inactive")
		return &model.ValidationResult{Valid: false, Message: MsgInactiveKey}, nil
	}

	if err := s.store.TouchKeyLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to stamp last used: %w", err)
	}

	s.metrics.IncKeyValidation("valid")
	return &model.ValidationResult{
		Valid:   true,
		Message: MsgValidKey,
		KeyInfo: &model.KeyInfo{
			Name:         key.Name,
			Type:         key.Type,
			MonthlyLimit: key.MonthlyLimit,
		},
	}, nil
}
