// Package store defines the persistence contract for users and API keys.
//
// Two implementations exist: a Postgres-backed store (store/postgres) and
// an in-memory store (store/memory). The backend is chosen once at process
// startup by explicit configuration and injected into the layers above.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dandi/dandi/internal/model"
)

// Sentinel errors shared by all store implementations.
var (
	ErrKeyNotFound     = errors.New("API key not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateSecret = errors.New("API key secret already exists")
	ErrEmailExists     = errors.New("email already exists")
)

// KeyUpdate is a partial update for an API key. Nil fields are left
// untouched; the secret, type, owner, and creation time have no update
// path at all.
type KeyUpdate struct {
	IsActive *bool
	Name     *string
}

// Store is the persistence contract consumed by the lifecycle service and
// the identity resolver. All operations are atomic at the single-row
// level; no multi-row transactions are required.
type Store interface {
	// User operations.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	// UpdateUserProfile applies last-write-wins display attributes and
	// refreshes last_login for the user addressed by profile.Email.
	UpdateUserProfile(ctx context.Context, profile model.UserProfile, lastLogin time.Time) error
	// ListUsers returns all users, most recent login first.
	ListUsers(ctx context.Context) ([]*model.User, error)

	// API key operations.
	CreateKey(ctx context.Context, key *model.APIKey) error
	GetKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	// ListKeysByUserID returns the user's keys, newest first.
	ListKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	// UpdateKey merges the provided fields and returns the full updated
	// record, or ErrKeyNotFound if the id is absent.
	UpdateKey(ctx context.Context, id string, update KeyUpdate) (*model.APIKey, error)
	// DeleteKey removes the key, or returns ErrKeyNotFound.
	DeleteKey(ctx context.Context, id string) error
	// TouchKeyLastUsed stamps last_used for the key.
	TouchKeyLastUsed(ctx context.Context, id string, usedAt time.Time) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}
