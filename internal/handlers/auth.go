package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/services"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// AuthService defines the interface for auth business logic
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	Logout(ctx context.Context, refreshToken string)
	AddPassword(ctx context.Context, userID, password string) (*models.User, error)
}

// TokenCookies describes how issued tokens are mirrored into cookies.
type TokenCookies struct {
	Config     auth.CookieConfig
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c TokenCookies) set(w http.ResponseWriter, tokens *models.TokenPair) {
	auth.SetTokenCookies(w, tokens.AccessToken, tokens.RefreshToken, c.AccessTTL, c.RefreshTTL, c.Config)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthService
	cookies TokenCookies
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthService, cookies TokenCookies) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
	}
}

// LoginRequest represents the request body for login. Form posts use the
// OAuth2 password-grant field name "username" for the email.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"omitempty,max=255"`
}

// RefreshTokenRequest represents the request body for token refresh and
// logout. The refresh_token cookie is used when the body omits it.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AddPasswordRequest represents the request body for adding a password
type AddPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// Register handles user registration
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userModelToResponse(user))
}

// Login handles user login
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := parseLoginRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		WriteServiceError(w, err)
		return
	}

	h.cookies.set(w, result.Tokens)
	writeJSON(w, http.StatusOK, result.Tokens)
}

func parseLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			pkghttp.WriteBadRequest(w, "Invalid form body")
			return req, false
		}
		req.Email = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return req, false
		}
	default:
		if !decodeJSON(w, r, &req) {
			return req, false
		}
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return req, true
}

// RefreshToken rotates the refresh token and returns a new pair
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFromRequest(w, r)
	if !ok {
		return
	}
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	result, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		WriteServiceError(w, err)
		return
	}

	h.cookies.set(w, result.Tokens)
	writeJSON(w, http.StatusOK, result.Tokens)
}

// Logout revokes the presented refresh token and clears auth cookies. It
// always succeeds.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFromRequest(w, r)
	if !ok {
		return
	}

	h.service.Logout(r.Context(), token)
	auth.ClearTokenCookies(w, h.cookies.Config)

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// AddPassword sets a password on the current OAuth-only account
// @Router /auth/add-password [post]
func (h *AuthHandler) AddPassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		WriteServiceError(w, models.ErrInvalidToken)
		return
	}

	var req AddPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.AddPassword(r.Context(), user.ID, req.Password)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userModelToResponse(updated))
}

// refreshTokenFromRequest reads an optional JSON body, falling back to the
// refresh_token cookie. An empty body is allowed.
func refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req RefreshTokenRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return "", false
		}
	}

	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token, true
	}
	return auth.GetCookieValue(r, auth.RefreshTokenCookie), true
}
