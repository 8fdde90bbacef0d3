package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/services"
)

// OAuthService defines the interface for provider login
type OAuthService interface {
	BeginLogin(provider models.OAuthProvider) (*services.OAuthStart, error)
	CompleteLogin(ctx context.Context, provider models.OAuthProvider, code, verifier string) (*services.AuthResult, error)
}

// OAuthHandler drives the browser side of the authorization-code flow.
type OAuthHandler struct {
	service     OAuthService
	cookies     TokenCookies
	stateTTL    time.Duration
	frontendURL string
	logger      *slog.Logger
}

func NewOAuthHandler(service OAuthService, cookies TokenCookies, stateTTL time.Duration, frontendURL string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		service:     service,
		cookies:     cookies,
		stateTTL:    stateTTL,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// GoogleLogin redirects to the Google consent screen
// @Router /auth/google/login [get]
func (h *OAuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.ProviderGoogle)
}

// GoogleCallback completes the Google flow and redirects to the frontend
// @Router /auth/google/callback [get]
func (h *OAuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, models.ProviderGoogle)
}

func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request, provider models.OAuthProvider) {
	start, err := h.service.BeginLogin(provider)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	auth.SetOAuthStateCookies(w, start.State, start.Verifier, h.stateTTL, h.cookies.Config)
	http.Redirect(w, r, start.AuthURL, http.StatusFound)
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request, provider models.OAuthProvider) {
	expected := auth.GetCookieValue(r, auth.OAuthStateCookie)
	verifier := auth.GetCookieValue(r, auth.OAuthVerifierCookie)
	auth.ClearOAuthStateCookies(w, h.cookies.Config)

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("oauth provider returned an error",
			slog.String("provider", string(provider)),
			slog.String("error", providerErr))
		h.redirectError(w, r, "Authentication was cancelled or denied")
		return
	}

	state := q.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		h.logger.Warn("oauth state mismatch", slog.String("provider", string(provider)))
		h.redirectError(w, r, "Invalid OAuth state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "Missing authorization code")
		return
	}
	if verifier == "" {
		h.logger.Warn("oauth verifier cookie missing", slog.String("provider", string(provider)))
		h.redirectError(w, r, "Invalid OAuth state")
		return
	}

	result, err := h.service.CompleteLogin(r.Context(), provider, code, verifier)
	if err != nil {
		if _, known := lookupError(err); !known || errors.Is(err, models.ErrOAuthProvider) {
			h.report(r, err)
		}
		h.redirectError(w, r, userFacingMessage(err))
		return
	}

	h.cookies.set(w, result.Tokens)
	http.Redirect(w, r, h.frontendURL+"/auth/callback", http.StatusFound)
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	target := h.frontendURL + "/auth/callback?error=" + url.QueryEscape(message)
	http.Redirect(w, r, target, http.StatusFound)
}

// report sends unexpected callback failures to Sentry when it is configured.
func (h *OAuthHandler) report(r *http.Request, err error) {
	h.logger.Error("oauth callback failed", slog.Any("error", err))
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
