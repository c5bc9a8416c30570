package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dandi/dandi/internal/identity"
	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/service"
)

// KeyHandler handles API key management endpoints.
type KeyHandler struct {
	logger *slog.Logger
	keys   *service.KeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(logger *slog.Logger, keys *service.KeyService) *KeyHandler {
	return &KeyHandler{
		logger: logger,
		keys:   keys,
	}
}

// List handles GET /api/v1/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := identity.IdentityFromContext(ctx)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	keys, err := h.keys.ListKeys(ctx, ident.UserID)
	if err != nil {
		h.logger.Error("failed to list API keys", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch API keys")
		return
	}

	if keys == nil {
		keys = []*model.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Create handles POST /api/v1/keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := identity.IdentityFromContext(ctx)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	key, err := h.keys.CreateKey(ctx, service.CreateKeyInput{
		RequesterID:  ident.UserID,
		Name:         req.Name,
		Type:         req.Type,
		MonthlyLimit: req.MonthlyLimit,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidName):
			writeError(w, http.StatusBadRequest, "INVALID_NAME", "Name is required and must be a string")
		case errors.Is(err, service.ErrInvalidType):
			writeError(w, http.StatusBadRequest, "INVALID_TYPE", "Type must be either 'dev' or 'production'")
		case errors.Is(err, service.ErrInvalidLimit):
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "monthlyLimit must be a positive integer")
		default:
			h.logger.Error("failed to create API key", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key")
		}
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", key.ID),
		slog.String("key_type", key.Type),
		slog.String("user_id", ident.UserID),
	)

	writeJSON(w, http.StatusCreated, map[string]any{"key": key})
}

// Get handles GET /api/v1/keys/{id}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := identity.IdentityFromContext(ctx)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	keyID := r.PathValue("id")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Key ID is required")
		return
	}

	key, err := h.keys.GetKey(ctx, ident.UserID, keyID)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			writeKeyNotFound(w)
			return
		}
		h.logger.Error("failed to get API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch API key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key})
}

// Update handles PATCH /api/v1/keys/{id}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := identity.IdentityFromContext(ctx)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	keyID := r.PathValue("id")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Key ID is required")
		return
	}

	// Unknown fields in the payload are ignored, not rejected; only the
	// name and active flag have an update path.
	var req model.UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	key, err := h.keys.UpdateKey(ctx, ident.UserID, keyID, req)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			writeKeyNotFound(w)
			return
		}
		h.logger.Error("failed to update API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update API key")
		return
	}

	h.logger.Info("API key updated",
		slog.String("key_id", keyID),
		slog.String("user_id", ident.UserID),
	)

	writeJSON(w, http.StatusOK, map[string]any{"key": key})
}

// Delete handles DELETE /api/v1/keys/{id}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := identity.IdentityFromContext(ctx)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	keyID := r.PathValue("id")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Key ID is required")
		return
	}

	if err := h.keys.DeleteKey(ctx, ident.UserID, keyID); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			writeKeyNotFound(w)
			return
		}
		h.logger.Error("failed to delete API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete API key")
		return
	}

	h.logger.Info("API key deleted",
		slog.String("key_id", keyID),
		slog.String("user_id", ident.UserID),
	)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeKeyNotFound writes the uniform 404 used for both nonexistent and
// not-owned keys, so callers cannot enumerate other users' key ids.
func writeKeyNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or access denied")
}
