package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/repositories"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

// AdminService enforces the admin policy: no self-targeted destructive
// actions and never fewer than one active admin.
type AdminService struct {
	repo        UserRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAdminService(repo UserRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// ListUsers returns users matching filter
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	normalizePage(&filter.Skip, &filter.Limit)
	for _, r := range filter.Roles {
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q: %w", r, models.ErrBadRequest)
		}
	}

	users, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// GetStats returns account counts for the admin dashboard
func (s *AdminService) GetStats(ctx context.Context) (*models.UserStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to load user stats", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

// Deactivate blocks targetID from authenticating.
func (s *AdminService) Deactivate(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	return s.guarded(ctx, "deactivate_user", targetID, actor, func(ctx context.Context, tx repositories.UserTx, target *models.User) (*models.User, error) {
		if target.CountsAsAdmin() {
			if err := ensureNotLastAdmin(ctx, tx); err != nil {
				return nil, err
			}
		}
		target.IsActive = false
		return tx.Update(ctx, target)
	})
}

// ChangeRole sets targetID's role. Demoting an admin is refused when it
// would leave no active admin.
func (s *AdminService) ChangeRole(ctx context.Context, targetID string, newRole models.Role, actor *models.User) (*models.User, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", newRole, models.ErrBadRequest)
	}
	return s.guarded(ctx, "change_role", targetID, actor, func(ctx context.Context, tx repositories.UserTx, target *models.User) (*models.User, error) {
		if target.Role == models.RoleAdmin && newRole != models.RoleAdmin {
			if err := ensureNotLastAdmin(ctx, tx); err != nil {
				return nil, err
			}
		}
		target.Role = newRole
		return tx.Update(ctx, target)
	})
}

// SoftDelete marks targetID deleted. Deleting an admin is refused when it
// would leave no active admin.
func (s *AdminService) SoftDelete(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	return s.guarded(ctx, "delete_user", targetID, actor, func(ctx context.Context, tx repositories.UserTx, target *models.User) (*models.User, error) {
		if target.IsDeleted {
			return nil, models.ErrNotFound
		}
		if target.Role == models.RoleAdmin {
			if err := ensureNotLastAdmin(ctx, tx); err != nil {
				return nil, err
			}
		}
		now := s.now().UTC()
		target.IsDeleted = true
		target.DeletedAt = &now
		return tx.Update(ctx, target)
	})
}

// Activate re-enables targetID. It is idempotent and needs no guard.
func (s *AdminService) Activate(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.IsActive {
		return user, nil
	}

	updated, err := s.repo.Activate(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to activate user", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAdminAction(ctx, "activate_user", actorID(actor), targetID, nil)
	return updated, nil
}

type guardedMutation func(ctx context.Context, tx repositories.UserTx, target *models.User) (*models.User, error)

// guarded runs mutate under the admin-set lock after the self-action check.
func (s *AdminService) guarded(ctx context.Context, action, targetID string, actor *models.User, mutate guardedMutation) (*models.User, error) {
	if actor != nil && actor.ID == targetID {
		s.auditLogger.LogAdminAction(ctx, action, actor.ID, targetID, models.ErrSelfActionForbidden)
		return nil, models.ErrSelfActionForbidden
	}

	var result *models.User
	err := s.repo.WithAdminLock(ctx, func(tx repositories.UserTx) error {
		target, err := tx.GetForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		result, err = mutate(ctx, tx, target)
		return err
	})

	s.auditLogger.LogAdminAction(ctx, action, actorID(actor), targetID, err)

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrLastAdminProtected):
		return nil, err
	default:
		s.logger.Error("admin action failed",
			slog.String("action", action),
			slog.String("target_user_id", targetID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
}

func ensureNotLastAdmin(ctx context.Context, tx repositories.UserTx) error {
	count, err := tx.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if count <= 1 {
		return models.ErrLastAdminProtected
	}
	return nil
}

func actorID(actor *models.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
