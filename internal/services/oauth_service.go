package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/oauth"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

// ProviderRegistry resolves configured OAuth providers by name.
type ProviderRegistry interface {
	Get(name models.OAuthProvider) (oauth.Provider, error)
}

// OAuthLoginResult is the account an OAuth identity resolved to.
type OAuthLoginResult struct {
	User  *models.User
	IsNew bool
}

// OAuthStart is what the login redirect hands to the browser. State and
// Verifier must come back with the callback.
type OAuthStart struct {
	AuthURL  string
	State    string
	Verifier string
}

// OAuthService links provider identities to local accounts
type OAuthService struct {
	repo        UserRepository
	providers   ProviderRegistry
	tm          *auth.TokenManager
	welcome     *welcomeMailer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewOAuthService(
	repo UserRepository,
	providers ProviderRegistry,
	tm *auth.TokenManager,
	notifier Notifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *OAuthService {
	return &OAuthService{
		repo:        repo,
		providers:   providers,
		tm:          tm,
		welcome:     newWelcomeMailer(notifier, logger),
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Wait blocks until pending welcome emails have finished sending.
func (s *OAuthService) Wait() {
	s.welcome.wait()
}

// BeginLogin returns the provider consent URL together with the state and
// PKCE verifier the callback must present.
func (s *OAuthService) BeginLogin(provider models.OAuthProvider) (*OAuthStart, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	state, err := oauth.NewState()
	if err != nil {
		return nil, err
	}
	verifier := oauth.NewVerifier()
	return &OAuthStart{
		AuthURL:  p.AuthCodeURL(state, verifier),
		State:    state,
		Verifier: verifier,
	}, nil
}

// CompleteLogin exchanges an authorization code, resolves the account and
// issues a token pair.
func (s *OAuthService) CompleteLogin(ctx context.Context, provider models.OAuthProvider, code, verifier string) (*AuthResult, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	identity, err := p.Exchange(ctx, code, verifier)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", slog.String("provider", string(provider)), slog.Any("error", err))
		if !errors.Is(err, models.ErrOAuthProvider) {
			err = fmt.Errorf("%v: %w", err, models.ErrOAuthProvider)
		}
		return nil, err
	}

	result, err := s.HandleOAuthLogin(ctx, identity)
	if err != nil {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "oauth_login",
			Email:         identity.Email,
			FailureReason: err.Error(),
			Metadata:      map[string]string{"provider": string(provider)},
		})
		return nil, err
	}

	tokens, err := s.tm.IssuePair(result.User.ID)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", result.User.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "oauth_login",
		UserID:    result.User.ID,
		Success:   true,
		Metadata:  map[string]string{"provider": string(provider), "new_account": fmt.Sprint(result.IsNew)},
	})
	if result.IsNew {
		s.welcome.send(ctx, result.User)
	}

	return &AuthResult{User: result.User, Tokens: tokens}, nil
}

// HandleOAuthLogin resolves identity to an account: an existing link wins,
// then an account with the same email is linked, otherwise a new account
// is created. A unique-constraint race on link or create is retried once.
func (s *OAuthService) HandleOAuthLogin(ctx context.Context, identity *models.OAuthIdentity) (*OAuthLoginResult, error) {
	if !identity.EmailVerified {
		return nil, models.ErrUnverifiedEmail
	}

	for attempt := 0; ; attempt++ {
		result, err := s.resolve(ctx, identity)
		if errors.Is(err, models.ErrConflict) && attempt == 0 {
			s.logger.Info("oauth account race detected, retrying",
				slog.String("provider", string(identity.Provider)))
			continue
		}
		return result, err
	}
}

func (s *OAuthService) resolve(ctx context.Context, identity *models.OAuthIdentity) (*OAuthLoginResult, error) {
	user, err := s.repo.GetByOAuthIdentity(ctx, identity.Provider, identity.ProviderUserID)
	switch {
	case err == nil:
		if user.IsDeleted {
			return nil, models.ErrAccountDeleted
		}
		if !user.IsActive {
			return nil, models.ErrAccountInactive
		}
		return &OAuthLoginResult{User: user}, nil
	case !errors.Is(err, models.ErrNotFound):
		s.logger.Error("failed to look up oauth identity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))

	user, err = s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.link(ctx, user, identity)
	case !errors.Is(err, models.ErrNotFound):
		s.logger.Error("failed to look up user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:             email,
		FullName:          identity.FullName,
		Role:              models.RoleUser,
		IsActive:          true,
		IsVerified:        true,
		OAuthProvider:     identity.Provider,
		OAuthProviderID:   identity.ProviderUserID,
		ProfilePictureURL: identity.PictureURL,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create oauth user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("oauth user created",
		slog.String("user_id", created.ID),
		slog.String("provider", string(identity.Provider)))
	return &OAuthLoginResult{User: created, IsNew: true}, nil
}

func (s *OAuthService) link(ctx context.Context, user *models.User, identity *models.OAuthIdentity) (*OAuthLoginResult, error) {
	if !user.IsActive {
		return nil, models.ErrAccountInactive
	}

	linked, err := s.repo.LinkOAuthIdentity(ctx, user.ID, models.OAuthLink{
		Provider:          identity.Provider,
		ProviderUserID:    identity.ProviderUserID,
		ProfilePictureURL: identity.PictureURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			return nil, err
		case errors.Is(err, models.ErrNotFound):
			// Deactivated or deleted since it was read; resolve again.
			return nil, fmt.Errorf("account changed during link: %w", models.ErrConflict)
		}
		s.logger.Error("failed to link oauth identity", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("oauth identity linked to existing account",
		slog.String("user_id", linked.ID),
		slog.String("provider", string(identity.Provider)))
	return &OAuthLoginResult{User: linked}, nil
}
