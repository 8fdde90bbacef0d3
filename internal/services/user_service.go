package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/repositories"
	pkgauth "github.com/BradenHooton/springboard/pkg/auth"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByOAuthIdentity(ctx context.Context, provider models.OAuthProvider, providerUserID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, changes models.ProfileChanges) (*models.User, error)
	SetPasswordHash(ctx context.Context, id, hash string) (*models.User, error)
	LinkOAuthIdentity(ctx context.Context, id string, link models.OAuthLink) (*models.User, error)
	Activate(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	Stats(ctx context.Context) (*models.UserStats, error)
	WithAdminLock(ctx context.Context, fn func(tx repositories.UserTx) error) error
}

// PasswordHasher hashes and checks password credentials
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) bool
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// UpdateProfileInput carries the optional fields a user may change on their
// own account. Nil means unchanged.
type UpdateProfileInput struct {
	FullName *string
	Email    *string
	Password *string
	Role     *models.Role
}

// UserService handles user business logic
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, hasher PasswordHasher, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		hasher: hasher,
		logger: logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves non-deleted users with pagination
func (s *UserService) ListUsers(ctx context.Context, skip, limit int) ([]*models.User, error) {
	filter := models.UserFilter{Skip: skip, Limit: limit}
	normalizePage(&filter.Skip, &filter.Limit)

	users, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("skip", skip), slog.Int("limit", limit), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// UpdateProfile applies a self-service update. Users cannot change their
// own role through this path.
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, in UpdateProfileInput) (*models.User, error) {
	if in.Role != nil && *in.Role != user.Role {
		return nil, fmt.Errorf("role cannot be changed here: %w", models.ErrForbidden)
	}

	var changes models.ProfileChanges

	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		changes.FullName = &name
	}

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != user.Email {
			existing, err := s.repo.GetByEmail(ctx, email)
			switch {
			case err == nil && existing.ID != user.ID:
				return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
			case err != nil && !errors.Is(err, models.ErrNotFound):
				s.logger.Error("failed to check email availability", slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
			changes.Email = &email
		}
	}

	if in.Password != nil {
		if err := pkgauth.ValidatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(ctx, *in.Password)
		if err != nil {
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		changes.PasswordHash = &hash
	}

	saved, err := s.repo.UpdateProfile(ctx, user.ID, changes)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update user", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user profile updated", slog.String("user_id", user.ID))
	return saved, nil
}

// EnsureAdmin creates a verified admin with the given credentials unless an
// account with that email already exists. It reports whether it created one.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("check existing admin: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return false, fmt.Errorf("FIRST_ADMIN_PASSWORD does not meet requirements: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	admin, err := s.repo.Create(ctx, &models.User{
		Email:         email,
		FullName:      fullName,
		PasswordHash:  hash,
		Role:          models.RoleAdmin,
		IsActive:      true,
		IsVerified:    true,
		OAuthProvider: models.ProviderLocal,
	})
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("initial admin user created",
		slog.String("user_id", admin.ID),
		slog.String("email", pkglogger.SanitizedEmail(admin.Email)))
	return true, nil
}

func normalizePage(skip, limit *int) {
	if *skip < 0 {
		*skip = 0
	}
	if *limit <= 0 {
		*limit = DefaultPageLimit
	}
	if *limit > MaxPageLimit {
		*limit = MaxPageLimit
	}
}
