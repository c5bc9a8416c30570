// Package memory provides an in-memory store implementation.
//
// It replaces the historical process-wide map with an explicit object
// constructed once at startup and injected into the service layer.
// Sample-data seeding is an explicit, optional step, never an
// import-time side effect.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dandi/dandi/internal/keygen"
	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/store"
)

// Store keeps all state in mutex-guarded maps. Reads return defensive
// copies so callers can never mutate stored records in place.
type Store struct {
	mu             sync.RWMutex
	users          map[string]*model.User
	userIDsByEmail map[string]string
	keys           map[string]*model.APIKey
	keyIDsBySecret map[string]string
	keyOrder       []string // creation order, oldest first
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:          make(map[string]*model.User),
		userIDsByEmail: make(map[string]string),
		keys:           make(map[string]*model.APIKey),
		keyIDsBySecret: make(map[string]string),
	}
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDsByEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userIDsByEmail[user.Email]; ok {
		return store.ErrEmailExists
	}
	s.users[user.ID] = cloneUser(user)
	s.userIDsByEmail[user.Email] = user.ID
	return nil
}

// UpdateUserProfile applies last-write-wins display attributes and
// refreshes last_login for the user addressed by email.
func (s *Store) UpdateUserProfile(ctx context.Context, profile model.UserProfile, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.userIDsByEmail[profile.Email]
	if !ok {
		return store.ErrUserNotFound
	}
	user := s.users[id]
	if profile.Name != nil {
		user.Name = cloneString(profile.Name)
	}
	if profile.Image != nil {
		user.Image = cloneString(profile.Image)
	}
	user.LastLogin = lastLogin
	return nil
}

// ListUsers returns all users, most recent login first.
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].LastLogin.After(users[j].LastLogin)
	})
	return users, nil
}

// CreateKey inserts a new API key.
func (s *Store) CreateKey(ctx context.Context, key *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keyIDsBySecret[key.Key]; ok {
		return store.ErrDuplicateSecret
	}
	s.keys[key.ID] = cloneKey(key)
	s.keyIDsBySecret[key.Key] = key.ID
	s.keyOrder = append(s.keyOrder, key.ID)
	return nil
}

// GetKeyByID retrieves an API key by id.
func (s *Store) GetKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return cloneKey(key), nil
}

// GetKeyBySecret retrieves an API key by its bearer secret.
func (s *Store) GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keyIDsBySecret[secret]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return cloneKey(s.keys[id]), nil
}

// ListKeysByUserID returns the user's keys, newest first.
func (s *Store) ListKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*model.APIKey, 0)
	for i := len(s.keyOrder) - 1; i >= 0; i-- {
		key := s.keys[s.keyOrder[i]]
		if key.UserID == userID {
			keys = append(keys, cloneKey(key))
		}
	}
	return keys, nil
}

// UpdateKey merges the provided fields and returns the updated record.
func (s *Store) UpdateKey(ctx context.Context, id string, update store.KeyUpdate) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	if update.IsActive != nil {
		key.IsActive = *update.IsActive
	}
	if update.Name != nil {
		key.Name = *update.Name
	}
	return cloneKey(key), nil
}

// DeleteKey removes an API key.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return store.ErrKeyNotFound
	}
	delete(s.keys, id)
	delete(s.keyIDsBySecret, key.Key)
	for i, kid := range s.keyOrder {
		if kid == id {
			s.keyOrder = append(s.keyOrder[:i], s.keyOrder[i+1:]...)
			break
		}
	}
	return nil
}

// TouchKeyLastUsed stamps last_used for the key. Missing keys are
// ignored; stamping is a side effect, not a lookup.
func (s *Store) TouchKeyLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[id]; ok {
		used := usedAt
		key.LastUsed = &used
	}
	return nil
}

// Ping always succeeds for the in-memory backend.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() {}

// Seed inserts sample keys for local development. It does nothing when
// the store already holds keys, so restarts do not duplicate data.
func (s *Store) Seed(ctx context.Context) error {
	s.mu.RLock()
	empty := len(s.keys) == 0
	s.mu.RUnlock()
	if !empty {
		return nil
	}

	limit := 10000
	samples := []*model.APIKey{
		{Name: "Development Key", Type: model.KeyTypeDev},
		{Name: "Production Key", Type: model.KeyTypeProduction, MonthlyLimit: &limit},
	}
	for _, key := range samples {
		secret, err := keygen.NewSecret(key.Type)
		if err != nil {
			return err
		}
		key.ID = ulid.Make().String()
		key.Key = secret
		key.CreatedAt = time.Now().UTC()
		key.IsActive = true
		if err := s.CreateKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Name = cloneString(u.Name)
	c.Image = cloneString(u.Image)
	return &c
}

func cloneKey(k *model.APIKey) *model.APIKey {
	c := *k
	if k.MonthlyLimit != nil {
		v := *k.MonthlyLimit
		c.MonthlyLimit = &v
	}
	if k.LastUsed != nil {
		t := *k.LastUsed
		c.LastUsed = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
