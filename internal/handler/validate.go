package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/service"
)

// ValidateHandler handles API key validation. The endpoint is
// unauthenticated: possession of the raw secret is the credential.
type ValidateHandler struct {
	logger *slog.Logger
	keys   *service.KeyService
}

// NewValidateHandler creates a new ValidateHandler.
func NewValidateHandler(logger *slog.Logger, keys *service.KeyService) *ValidateHandler {
	return &ValidateHandler{
		logger: logger,
		keys:   keys,
	}
}

// Validate handles POST /api/v1/validate
//
// Responses use the bare validation shape rather than the error envelope,
// including on 400 and 500, so clients parse one structure for every
// outcome.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, model.ValidationResult{
			Valid:   false,
			Message: "API key is required",
		})
		return
	}

	result, err := h.keys.ValidateKey(r.Context(), req.APIKey)
	if err != nil {
		h.logger.Error("failed to validate API key", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, model.ValidationResult{
			Valid:   false,
			Message: "Validation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
