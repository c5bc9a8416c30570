// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dandi/dandi/internal/identity"
	"github.com/dandi/dandi/internal/keygen"
	"github.com/dandi/dandi/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420421

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops the application tables so InitSchema can rebuild
// them from scratch.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		"DROP TABLE IF EXISTS api_keys",
		"DROP TABLE IF EXISTS users",
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	name := "Test User"
	return &model.User{
		ID:        UniqueID("user"),
		Email:     email,
		Name:      &name,
		CreatedAt: now,
		LastLogin: now,
	}
}

// NewTestAPIKey creates a test API key owned by the given user.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	secret, err := keygen.NewSecret(model.KeyTypeDev)
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	return &model.APIKey{
		ID:        UniqueID("key"),
		UserID:    userID,
		Name:      "Test Key",
		Key:       secret,
		Type:      model.KeyTypeDev,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
}

// NewSessionToken mints a signed session token for handler tests.
func NewSessionToken(t testing.TB, secret, email, name string) string {
	t.Helper()
	token, err := identity.SignSession(secret, identity.SessionClaims{
		Email: email,
		Name:  name,
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return token
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
