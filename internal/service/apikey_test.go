package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dandi/dandi/internal/keygen"
	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/store"
	"github.com/dandi/dandi/internal/store/memory"
)

func newTestService(t *testing.T) (*KeyService, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewKeyService(st, nil), st
}

func TestCreateKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	limit := 500
	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID:  "user-1",
		Name:         "CI pipeline",
		Type:         model.KeyTypeProduction,
		MonthlyLimit: &limit,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	if key.ID == "" {
		t.Error("expected generated id")
	}
	if key.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", key.UserID)
	}
	if !key.IsActive {
		t.Error("new key should be active")
	}
	if key.MonthlyLimit == nil || *key.MonthlyLimit != 500 {
		t.Errorf("MonthlyLimit = %v, want 500", key.MonthlyLimit)
	}
	if !keygen.MatchesFormat(key.Key) {
		t.Errorf("secret %q does not match issued format", key.Key)
	}
	if key.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if key.LastUsed != nil {
		t.Error("LastUsed should start unset")
	}
}

func TestCreateKey_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	zero := 0
	negative := -5

	tests := []struct {
		name    string
		input   CreateKeyInput
		wantErr error
	}{
		{
			name:    "missing name",
			input:   CreateKeyInput{RequesterID: "u", Type: model.KeyTypeDev},
			wantErr: ErrInvalidName,
		},
		{
			name:    "unknown type",
			input:   CreateKeyInput{RequesterID: "u", Name: "k", Type: "staging"},
			wantErr: ErrInvalidType,
		},
		{
			name:    "empty type",
			input:   CreateKeyInput{RequesterID: "u", Name: "k"},
			wantErr: ErrInvalidType,
		},
		{
			name:    "zero limit",
			input:   CreateKeyInput{RequesterID: "u", Name: "k", Type: model.KeyTypeDev, MonthlyLimit: &zero},
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "negative limit",
			input:   CreateKeyInput{RequesterID: "u", Name: "k", Type: model.KeyTypeDev, MonthlyLimit: &negative},
			wantErr: ErrInvalidLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateKey(ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateKey error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateKey_NoLimit(t *testing.T) {
	svc, _ := newTestService(t)

	key, err := svc.CreateKey(context.Background(), CreateKeyInput{
		RequesterID: "user-1",
		Name:        "unlimited",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if key.MonthlyLimit != nil {
		t.Errorf("MonthlyLimit = %v, want nil", key.MonthlyLimit)
	}
}

func TestListKeys_ScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, owner := range []string{"alice", "alice", "bob"} {
		_, err := svc.CreateKey(ctx, CreateKeyInput{
			RequesterID: owner,
			Name:        "key",
			Type:        model.KeyTypeDev,
		})
		if err != nil {
			t.Fatalf("CreateKey %d: %v", i, err)
		}
	}

	aliceKeys, err := svc.ListKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(aliceKeys) != 2 {
		t.Errorf("alice has %d keys, want 2", len(aliceKeys))
	}
	for _, k := range aliceKeys {
		if k.UserID != "alice" {
			t.Errorf("listing leaked key owned by %q", k.UserID)
		}
	}

	emptyKeys, err := svc.ListKeys(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(emptyKeys) != 0 {
		t.Errorf("expected no keys for unknown user, got %d", len(emptyKeys))
	}
}

func TestGetKey_OwnershipFoldsIntoNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "key",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	// Owner sees the key, secret included.
	got, err := svc.GetKey(ctx, "alice", key.ID)
	if err != nil {
		t.Fatalf("GetKey as owner: %v", err)
	}
	if got.Key != key.Key {
		t.Error("owner read did not return the plaintext secret")
	}

	// Another user gets the same error as for a nonexistent id.
	_, errOther := svc.GetKey(ctx, "bob", key.ID)
	_, errMissing := svc.GetKey(ctx, "alice", "no-such-id")
	if !errors.Is(errOther, ErrKeyNotFound) {
		t.Errorf("cross-user GetKey error = %v, want ErrKeyNotFound", errOther)
	}
	if !errors.Is(errMissing, ErrKeyNotFound) {
		t.Errorf("missing-id GetKey error = %v, want ErrKeyNotFound", errMissing)
	}
	if errOther.Error() != errMissing.Error() {
		t.Error("ownership mismatch and missing key must be indistinguishable")
	}
}

func TestUpdateKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "old name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	inactive := false
	newName := "new name"
	updated, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{
		IsActive: &inactive,
		Name:     &newName,
	})
	if err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}

	if updated.Name != "new name" {
		t.Errorf("Name = %q, want %q", updated.Name, "new name")
	}
	if updated.IsActive {
		t.Error("key should be inactive after update")
	}
	if updated.Key != key.Key {
		t.Error("secret must not change on update")
	}
	if updated.Type != key.Type {
		t.Error("type must not change on update")
	}
}

func TestUpdateKey_PartialAndEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	// Only the active flag.
	inactive := false
	updated, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}
	if updated.Name != "name" {
		t.Errorf("partial update touched name: %q", updated.Name)
	}
	if updated.IsActive {
		t.Error("active flag not applied")
	}

	// Empty update is a no-op returning the current record.
	same, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{})
	if err != nil {
		t.Fatalf("empty UpdateKey: %v", err)
	}
	if same.Name != "name" || same.IsActive {
		t.Error("empty update changed the record")
	}
}

func TestUpdateKey_NotOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	name := "hijacked"
	if _, err := svc.UpdateKey(ctx, "bob", key.ID, model.UpdateKeyRequest{Name: &name}); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("cross-user UpdateKey error = %v, want ErrKeyNotFound", err)
	}

	// The record is untouched.
	got, err := svc.GetKey(ctx, "alice", key.ID)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if got.Name != "name" {
		t.Errorf("cross-user update mutated the key: %q", got.Name)
	}
}

func TestDeleteKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	if err := svc.DeleteKey(ctx, "bob", key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("cross-user DeleteKey error = %v, want ErrKeyNotFound", err)
	}

	if err := svc.DeleteKey(ctx, "alice", key.ID); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}

	if _, err := svc.GetKey(ctx, "alice", key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetKey after delete error = %v, want ErrKeyNotFound", err)
	}

	// Deleting again reports not found.
	if err := svc.DeleteKey(ctx, "alice", key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second DeleteKey error = %v, want ErrKeyNotFound", err)
	}
}

func TestValidateKey_Valid(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	limit := 10000
	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID:  "alice",
		Name:         "Production Key",
		Type:         model.KeyTypeProduction,
		MonthlyLimit: &limit,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	before := time.Now().UTC()
	result, err := svc.ValidateKey(ctx, key.Key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}

	if !result.Valid {
		t.Error("expected valid result")
	}
	if result.Message != MsgValidKey {
		t.Errorf("message = %q, want %q", result.Message, MsgValidKey)
	}
	if result.KeyInfo == nil {
		t.Fatal("expected key info")
	}
	if result.KeyInfo.Name != "Production Key" {
		t.Errorf("KeyInfo.Name = %q", result.KeyInfo.Name)
	}
	if result.KeyInfo.Type != model.KeyTypeProduction {
		t.Errorf("KeyInfo.Type = %q", result.KeyInfo.Type)
	}
	if result.KeyInfo.MonthlyLimit == nil || *result.KeyInfo.MonthlyLimit != 10000 {
		t.Errorf("KeyInfo.MonthlyLimit = %v, want 10000", result.KeyInfo.MonthlyLimit)
	}

	// Validation stamps last_used.
	stored, err := st.GetKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetKeyByID: %v", err)
	}
	if stored.LastUsed == nil {
		t.Fatal("last_used not stamped by validation")
	}
	if stored.LastUsed.Before(before.Add(-time.Second)) {
		t.Errorf("last_used %v predates validation", stored.LastUsed)
	}
}

func TestValidateKey_Invalid(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ValidateKey(context.Background(), "dandi-dev-does-not-exist")
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid result")
	}
	if result.Message != MsgInvalidKey {
		t.Errorf("message = %q, want %q", result.Message, MsgInvalidKey)
	}
	if result.KeyInfo != nil {
		t.Error("invalid result must not carry key info")
	}
}

func TestValidateKey_Inactive(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	inactive := false
	if _, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}

	result, err := svc.ValidateKey(ctx, key.Key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if result.Valid {
		t.Error("inactive key must not validate")
	}
	if result.Message != MsgInactiveKey {
		t.Errorf("message = %q, want %q", result.Message, MsgInactiveKey)
	}

	// Inactive validation leaves last_used untouched.
	stored, err := st.GetKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetKeyByID: %v", err)
	}
	if stored.LastUsed != nil {
		t.Error("inactive validation stamped last_used")
	}
}

func TestValidateKey_ReactivatedKeyValidatesAgain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	inactive := false
	if _, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}
	active := true
	if _, err := svc.UpdateKey(ctx, "alice", key.ID, model.UpdateKeyRequest{IsActive: &active}); err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}

	result, err := svc.ValidateKey(ctx, key.Key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if !result.Valid {
		t.Error("reactivated key should validate")
	}
}

func TestValidateKey_DeletedKeyIsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if err := svc.DeleteKey(ctx, "alice", key.ID); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}

	result, err := svc.ValidateKey(ctx, key.Key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if result.Valid {
		t.Error("deleted key must not validate")
	}
	if result.Message != MsgInvalidKey {
		t.Errorf("message = %q, want %q", result.Message, MsgInvalidKey)
	}
}

// duplicateSecretStore wraps the memory store and fails the first N
// inserts with ErrDuplicateSecret to exercise the regeneration loop.
type duplicateSecretStore struct {
	store.Store
	failures int
}

func (d *duplicateSecretStore) CreateKey(ctx context.Context, key *model.APIKey) error {
	if d.failures > 0 {
		d.failures--
		return store.ErrDuplicateSecret
	}
	return d.Store.CreateKey(ctx, key)
}

func TestCreateKey_RetriesOnDuplicateSecret(t *testing.T) {
	st := &duplicateSecretStore{Store: memory.New(), failures: 2}
	svc := NewKeyService(st, nil)

	key, err := svc.CreateKey(context.Background(), CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if err != nil {
		t.Fatalf("CreateKey after collisions: %v", err)
	}
	if key == nil || key.Key == "" {
		t.Fatal("expected a key after retries")
	}
}

func TestCreateKey_GivesUpAfterRepeatedCollisions(t *testing.T) {
	st := &duplicateSecretStore{Store: memory.New(), failures: 10}
	svc := NewKeyService(st, nil)

	_, err := svc.CreateKey(context.Background(), CreateKeyInput{
		RequesterID: "alice",
		Name:        "name",
		Type:        model.KeyTypeDev,
	})
	if !errors.Is(err, store.ErrDuplicateSecret) {
		t.Errorf("error = %v, want wrapped ErrDuplicateSecret", err)
	}
}
