package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/services"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User, in services.UpdateProfileInput) (*models.User, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// UpdateMeRequest represents the request body for a self-service update.
// Omitted fields are left unchanged.
type UpdateMeRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
	Password *string `json:"password"`
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
}

// GetMe returns the authenticated user
// @Router /users/me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, userModelToResponse(user))
}

// UpdateMe updates the authenticated user's profile
// @Router /users/me [put]
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	var req UpdateMeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := services.UpdateProfileInput{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, in)
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Cannot change your own role")
			return
		}
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userModelToResponse(updated))
}

// ListUsers lists non-deleted users
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	users, err := h.service.ListUsers(r.Context(), skip, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usersToResponse(users))
}

// GetUser retrieves a user by ID
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "id"))
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

// parsePagination reads the skip and limit query parameters. Missing values
// fall through to the service defaults.
func parsePagination(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > services.MaxPageLimit {
			return 0, 0, errors.New("limit must be between 1 and " + strconv.Itoa(services.MaxPageLimit))
		}
	}
	return skip, limit, nil
}
