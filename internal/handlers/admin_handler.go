package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// AdminService defines the admin user-management contract.
type AdminService interface {
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	GetStats(ctx context.Context) (*models.UserStats, error)
	Deactivate(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
	Activate(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
	ChangeRole(ctx context.Context, targetID string, role models.Role, actor *models.User) (*models.User, error)
	SoftDelete(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
}

// AdminHandler handles admin user-management HTTP requests.
type AdminHandler struct {
	service AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// ChangeRoleRequest represents the request body for a role change
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// ListUsers handles GET /admin/users
// Accepts ?skip, ?limit, ?include_deleted and repeated or comma-separated ?role.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	filter := models.UserFilter{Skip: skip, Limit: limit}
	if v := r.URL.Query().Get("include_deleted"); v != "" {
		if filter.IncludeDeleted, err = strconv.ParseBool(v); err != nil {
			pkghttp.WriteBadRequest(w, "include_deleted must be a boolean")
			return
		}
	}
	for _, raw := range r.URL.Query()["role"] {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				filter.Roles = append(filter.Roles, models.Role(role))
			}
		}
	}

	users, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usersToResponse(users))
}

// GetStats handles GET /admin/users/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Deactivate handles PUT /admin/users/{id}/deactivate
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Deactivate)
}

// Activate handles PUT /admin/users/{id}/activate
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Activate)
}

// DeleteUser handles DELETE /admin/users/{id}. The account is soft deleted.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.SoftDelete)
}

// ChangeRole handles PUT /admin/users/{id}/role
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.mutate(w, r, func(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
		return h.service.ChangeRole(ctx, targetID, models.Role(req.Role), actor)
	})
}

type adminMutation func(ctx context.Context, targetID string, actor *models.User) (*models.User, error)

func (h *AdminHandler) mutate(w http.ResponseWriter, r *http.Request, fn adminMutation) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	user, err := fn(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userModelToResponse(user))
}
