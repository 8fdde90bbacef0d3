package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/services"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

var testCookies = TokenCookies{
	Config:     auth.CookieConfig{SameSite: "lax"},
	AccessTTL:  30 * time.Minute,
	RefreshTTL: 7 * 24 * time.Hour,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRequest creates an HTTP request with a JSON body
func newTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withUser injects an authenticated user as AuthMiddleware would
func withUser(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

// withURLParam sets a chi route parameter on req
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func testUser(id string, role models.Role) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:            id,
		Email:         id + "@example.com",
		FullName:      "User " + id,
		Role:          role,
		IsActive:      true,
		OAuthProvider: models.ProviderLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testTokens() *models.TokenPair {
	return &models.TokenPair{AccessToken: "access-jwt", RefreshToken: "refresh-jwt", TokenType: "bearer"}
}

// assertJSONResponse checks status and content type and decodes the body
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// assertErrorResponse checks that response is a valid error response
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockAuthService implements AuthService for testing
type MockAuthService struct {
	RegisterFunc    func(ctx context.Context, in services.RegisterInput) (*models.User, error)
	LoginFunc       func(ctx context.Context, email, password string) (*services.AuthResult, error)
	RefreshFunc     func(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	LogoutFunc      func(ctx context.Context, refreshToken string)
	AddPasswordFunc func(ctx context.Context, userID, password string) (*models.User, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, refreshToken)
	}
}

func (m *MockAuthService) AddPassword(ctx context.Context, userID, password string) (*models.User, error) {
	if m.AddPasswordFunc == nil {
		return nil, models.ErrAlreadyHasPassword
	}
	return m.AddPasswordFunc(ctx, userID, password)
}

// MockOAuthService implements OAuthService for testing
type MockOAuthService struct {
	BeginLoginFunc    func(provider models.OAuthProvider) (*services.OAuthStart, error)
	CompleteLoginFunc func(ctx context.Context, provider models.OAuthProvider, code, verifier string) (*services.AuthResult, error)
}

func (m *MockOAuthService) BeginLogin(provider models.OAuthProvider) (*services.OAuthStart, error) {
	if m.BeginLoginFunc == nil {
		return nil, models.ErrNotConfigured
	}
	return m.BeginLoginFunc(provider)
}

func (m *MockOAuthService) CompleteLogin(ctx context.Context, provider models.OAuthProvider, code, verifier string) (*services.AuthResult, error) {
	if m.CompleteLoginFunc == nil {
		return nil, models.ErrOAuthProvider
	}
	return m.CompleteLoginFunc(ctx, provider, code, verifier)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc   func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc     func(ctx context.Context, skip, limit int) ([]*models.User, error)
	UpdateProfileFunc func(ctx context.Context, user *models.User, in services.UpdateProfileInput) (*models.User, error)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, skip, limit int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, skip, limit)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, user *models.User, in services.UpdateProfileInput) (*models.User, error) {
	if m.UpdateProfileFunc == nil {
		return user, nil
	}
	return m.UpdateProfileFunc(ctx, user, in)
}

// MockAdminService implements AdminService for testing
type MockAdminService struct {
	ListUsersFunc  func(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	GetStatsFunc   func(ctx context.Context) (*models.UserStats, error)
	DeactivateFunc func(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
	ActivateFunc   func(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
	ChangeRoleFunc func(ctx context.Context, targetID string, role models.Role, actor *models.User) (*models.User, error)
	SoftDeleteFunc func(ctx context.Context, targetID string, actor *models.User) (*models.User, error)
}

func (m *MockAdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, filter)
}

func (m *MockAdminService) GetStats(ctx context.Context) (*models.UserStats, error) {
	if m.GetStatsFunc == nil {
		return &models.UserStats{}, nil
	}
	return m.GetStatsFunc(ctx)
}

func (m *MockAdminService) Deactivate(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	if m.DeactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DeactivateFunc(ctx, targetID, actor)
}

func (m *MockAdminService) Activate(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	if m.ActivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ActivateFunc(ctx, targetID, actor)
}

func (m *MockAdminService) ChangeRole(ctx context.Context, targetID string, role models.Role, actor *models.User) (*models.User, error) {
	if m.ChangeRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChangeRoleFunc(ctx, targetID, role, actor)
}

func (m *MockAdminService) SoftDelete(ctx context.Context, targetID string, actor *models.User) (*models.User, error) {
	if m.SoftDeleteFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SoftDeleteFunc(ctx, targetID, actor)
}

// MockProjectService implements ProjectService for testing
type MockProjectService struct {
	ListFunc   func(ctx context.Context, ownerID string, skip, limit int) ([]*models.Project, error)
	CreateFunc func(ctx context.Context, ownerID string, in services.ProjectInput) (*models.Project, error)
	GetFunc    func(ctx context.Context, ownerID, id string) (*models.Project, error)
	UpdateFunc func(ctx context.Context, ownerID, id string, in services.ProjectInput) (*models.Project, error)
	DeleteFunc func(ctx context.Context, ownerID, id string) error
}

func (m *MockProjectService) List(ctx context.Context, ownerID string, skip, limit int) ([]*models.Project, error) {
	if m.ListFunc == nil {
		return []*models.Project{}, nil
	}
	return m.ListFunc(ctx, ownerID, skip, limit)
}

func (m *MockProjectService) Create(ctx context.Context, ownerID string, in services.ProjectInput) (*models.Project, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrBadRequest
	}
	return m.CreateFunc(ctx, ownerID, in)
}

func (m *MockProjectService) Get(ctx context.Context, ownerID, id string) (*models.Project, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, ownerID, id)
}

func (m *MockProjectService) Update(ctx context.Context, ownerID, id string, in services.ProjectInput) (*models.Project, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, ownerID, id, in)
}

func (m *MockProjectService) Delete(ctx context.Context, ownerID, id string) error {
	if m.DeleteFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteFunc(ctx, ownerID, id)
}
