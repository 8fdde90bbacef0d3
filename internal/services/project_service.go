package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/springboard/internal/models"
)

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Project, error)
	Create(ctx context.Context, p *models.Project) (*models.Project, error)
	Update(ctx context.Context, p *models.Project) (*models.Project, error)
	Delete(ctx context.Context, id string) error
}

// ProjectInput carries create/update fields. Nil means unchanged on update.
type ProjectInput struct {
	Title       *string
	Description *string
}

type ProjectService struct {
	repo   ProjectRepository
	logger *slog.Logger
}

func NewProjectService(repo ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{repo: repo, logger: logger}
}

func (s *ProjectService) List(ctx context.Context, ownerID string, skip, limit int) ([]*models.Project, error) {
	normalizePage(&skip, &limit)
	projects, err := s.repo.ListByOwner(ctx, ownerID, limit, skip)
	if err != nil {
		s.logger.Error("failed to list projects", slog.String("owner_id", ownerID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return projects, nil
}

func (s *ProjectService) Create(ctx context.Context, ownerID string, in ProjectInput) (*models.Project, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, fmt.Errorf("title is required: %w", models.ErrBadRequest)
	}
	p := &models.Project{
		Title:   strings.TrimSpace(*in.Title),
		OwnerID: ownerID,
	}
	if in.Description != nil {
		p.Description = *in.Description
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		s.logger.Error("failed to create project", slog.String("owner_id", ownerID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return created, nil
}

// Get returns the project if ownerID owns it.
func (s *ProjectService) Get(ctx context.Context, ownerID, id string) (*models.Project, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get project", slog.String("project_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if p.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	return p, nil
}

func (s *ProjectService) Update(ctx context.Context, ownerID, id string, in ProjectInput) (*models.Project, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("title cannot be empty: %w", models.ErrBadRequest)
		}
		p.Title = title
	}
	if in.Description != nil {
		p.Description = *in.Description
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		s.logger.Error("failed to update project", slog.String("project_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete project", slog.String("project_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
