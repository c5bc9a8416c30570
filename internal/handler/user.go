package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dandi/dandi/internal/model"
)

// UserLister is the subset of the store the user endpoints need.
type UserLister interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// UserHandler serves the registered-user listing.
type UserHandler struct {
	logger *slog.Logger
	users  UserLister
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(logger *slog.Logger, users UserLister) *UserHandler {
	return &UserHandler{
		logger: logger,
		users:  users,
	}
}

// List handles GET /api/v1/users
//
// Users are returned most recently active first.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch users")
		return
	}

	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
