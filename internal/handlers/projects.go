package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/services"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// ProjectService defines the owner-scoped project contract
type ProjectService interface {
	List(ctx context.Context, ownerID string, skip, limit int) ([]*models.Project, error)
	Create(ctx context.Context, ownerID string, in services.ProjectInput) (*models.Project, error)
	Get(ctx context.Context, ownerID, id string) (*models.Project, error)
	Update(ctx context.Context, ownerID, id string, in services.ProjectInput) (*models.Project, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type ProjectHandler struct {
	service ProjectService
}

func NewProjectHandler(service ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// ProjectRequest is shared by create and update
type ProjectRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

func (req ProjectRequest) input() services.ProjectInput {
	return services.ProjectInput{Title: req.Title, Description: req.Description}
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := auth.GetUserFromContext(r)
	if owner == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}
	skip, limit, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	projects, err := h.service.List(r.Context(), owner.ID, skip, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	out := make([]*ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectToResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := auth.GetUserFromContext(r)
	if owner == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}
	var req ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), owner.ID, req.input())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectToResponse(p))
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := auth.GetUserFromContext(r)
	if owner == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	p, err := h.service.Get(r.Context(), owner.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeProjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(p))
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner := auth.GetUserFromContext(r)
	if owner == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}
	var req ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), owner.ID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeProjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(p))
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := auth.GetUserFromContext(r)
	if owner == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	if err := h.service.Delete(r.Context(), owner.ID, chi.URLParam(r, "id")); err != nil {
		writeProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeProjectError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteNotFound(w, "Project not found")
		return
	}
	WriteServiceError(w, err)
}
