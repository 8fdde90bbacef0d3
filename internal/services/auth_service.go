package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	pkgauth "github.com/BradenHooton/springboard/pkg/auth"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	// RevokeToken records jti and reports whether this call was the one
	// that revoked it.
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) (bool, error)
}

// AuthResult is the outcome of a successful login or refresh.
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

// RegisterInput holds the fields accepted by password registration.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	revokeRepo  TokenRevocationRepository
	hasher      PasswordHasher
	tm          *auth.TokenManager
	welcome     *welcomeMailer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	revokeRepo TokenRevocationRepository,
	hasher PasswordHasher,
	tm *auth.TokenManager,
	notifier Notifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		revokeRepo:  revokeRepo,
		hasher:      hasher,
		tm:          tm,
		welcome:     newWelcomeMailer(notifier, logger),
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Wait blocks until pending welcome emails have finished sending.
func (s *AuthService) Wait() {
	s.welcome.wait()
}

// Register creates a password account. The account starts active and
// unverified with the user role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: email already registered")
		return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:         email,
		FullName:      strings.TrimSpace(in.FullName),
		PasswordHash:  hash,
		Role:          models.RoleUser,
		IsActive:      true,
		OAuthProvider: models.ProviderLocal,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "register",
		UserID:    created.ID,
		Success:   true,
	})
	s.welcome.send(ctx, created)

	return created, nil
}

// Login authenticates an email/password pair and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get user by email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		// Spend the same bcrypt work as a real comparison so response time
		// does not reveal whether the account exists.
		s.hasher.Verify(ctx, password, s.timingHash(ctx))
		s.loginFailed(ctx, "", email, "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	if !user.HasPassword() {
		// OAuth-only account: same work as a mismatch.
		s.hasher.Verify(ctx, password, s.timingHash(ctx))
		s.loginFailed(ctx, user.ID, email, "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		s.loginFailed(ctx, user.ID, email, "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	if user.IsDeleted {
		s.loginFailed(ctx, user.ID, email, "account_deleted")
		return nil, models.ErrAccountDeleted
	}
	if !user.IsActive {
		s.loginFailed(ctx, user.ID, email, "account_inactive")
		return nil, models.ErrAccountInactive
	}

	tokens, err := s.tm.IssuePair(user.ID)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		Success:   true,
	})

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Revoking the
// presented token is the gate: of concurrent refreshes with the same token
// only the one whose revocation lands gets a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, ok := s.tm.Verify(strings.TrimSpace(refreshToken))
	if !ok || claims.Type != models.TokenTypeRefresh || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, models.ErrInvalidToken
	}

	user, err := s.repo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.IsDeleted || !user.IsActive {
		return nil, models.ErrInvalidToken
	}

	claimed, err := s.revokeRepo.RevokeToken(ctx, claims.ID, claims.Subject, claims.Type, claims.ExpiresAt.Time, "rotated")
	if err != nil {
		s.logger.Error("failed to revoke refresh token", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !claimed {
		s.logger.Warn("revoked refresh token presented", slog.String("user_id", claims.Subject))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "refresh",
			UserID:        claims.Subject,
			FailureReason: "token_revoked",
		})
		return nil, models.ErrInvalidToken
	}

	tokens, err := s.tm.IssuePair(user.ID)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Logout revokes the presented refresh token, if it is still valid. Logout
// always succeeds from the caller's point of view.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, ok := s.tm.Verify(refreshToken)
	if !ok || claims.Type != models.TokenTypeRefresh {
		return
	}
	if claims.ID != "" && claims.ExpiresAt != nil {
		_, err := s.revokeRepo.RevokeToken(ctx, claims.ID, claims.Subject, claims.Type, claims.ExpiresAt.Time, "logout")
		if err != nil {
			// The token still expires on its own.
			s.logger.Error("failed to revoke token", slog.String("user_id", claims.Subject), slog.Any("error", err))
		}
	}
	s.logger.Info("user logged out", slog.String("user_id", claims.Subject))
}

// AddPassword sets a password on an account that has none, typically one
// created through OAuth.
func (s *AuthService) AddPassword(ctx context.Context, userID, password string) (*models.User, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.HasPassword() {
		return nil, models.ErrAlreadyHasPassword
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	updated, err := s.repo.SetPasswordHash(ctx, user.ID, hash)
	if err != nil {
		s.auditLogger.LogPasswordChange(ctx, userID, false)
		switch {
		case errors.Is(err, models.ErrAlreadyHasPassword):
			return nil, models.ErrAlreadyHasPassword
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to store password", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogPasswordChange(ctx, userID, true)
	return updated, nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID, email, reason string) {
	s.logger.Info("login failed", slog.String("reason", reason))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login",
		UserID:        userID,
		Email:         email,
		FailureReason: reason,
	})
}

// timingHash lazily creates a throwaway hash at the configured cost.
func (s *AuthService) timingHash(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), "timing-equalizer-password-0")
		if err != nil {
			s.logger.Error("failed to create timing hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
