package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/store"
)

const apiKeyColumns = "id, user_id, name, key, type, monthly_limit, created_at, last_used, is_active"

// CreateKey inserts a new API key. The unique constraint on the key
// column is the backstop for secret uniqueness.
func (s *Store) CreateKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, name, key, type, monthly_limit, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Legacy owner-less keys store NULL, not the empty string.
	var userID *string
	if key.UserID != "" {
		userID = &key.UserID
	}

	_, err := s.pool.Exec(ctx, query,
		key.ID,
		userID,
		key.Name,
		key.Key,
		key.Type,
		key.MonthlyLimit,
		key.CreatedAt,
		key.IsActive,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSecret
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetKeyByID retrieves an API key by its id.
func (s *Store) GetKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanKey(s.pool.QueryRow(ctx, query, id))
}

// GetKeyBySecret retrieves an API key by its bearer secret.
func (s *Store) GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key = $1`
	return scanKey(s.pool.QueryRow(ctx, query, secret))
}

// ListKeysByUserID retrieves all keys for a user, newest first.
func (s *Store) ListKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanKeyFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// UpdateKey merges the provided fields and returns the full updated
// record. A KeyUpdate with no fields set is a read.
func (s *Store) UpdateKey(ctx context.Context, id string, update store.KeyUpdate) (*model.APIKey, error) {
	var sets []string
	var args []any

	if update.IsActive != nil {
		args = append(args, *update.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}

	if len(sets) == 0 {
		return s.GetKeyByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE api_keys SET %s WHERE id = $%d RETURNING `+apiKeyColumns,
		strings.Join(sets, ", "), len(args),
	)

	return scanKey(s.pool.QueryRow(ctx, query, args...))
}

// DeleteKey removes an API key.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrKeyNotFound
	}

	return nil
}

// TouchKeyLastUsed stamps last_used for the key.
func (s *Store) TouchKeyLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used = $2 WHERE id = $1`, id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

// scanKey scans a single row into an APIKey model.
func scanKey(row pgx.Row) (*model.APIKey, error) {
	key, err := scanKeyFromRows(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}
	return key, nil
}

// scanKeyFromRows scans the current row into an APIKey model.
func scanKeyFromRows(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	var userID *string

	err := row.Scan(
		&key.ID,
		&userID,
		&key.Name,
		&key.Key,
		&key.Type,
		&key.MonthlyLimit,
		&key.CreatedAt,
		&key.LastUsed,
		&key.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if userID != nil {
		key.UserID = *userID
	}
	return &key, nil
}
