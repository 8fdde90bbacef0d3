package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/BradenHooton/springboard/internal/oauth"
	"github.com/BradenHooton/springboard/internal/repositories"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

const testSecret = "test-secret-32-characters-long!!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

func testTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
}

// NewTestUser creates a test user with sensible defaults
func NewTestUser(id, email, name string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:            id,
		Email:         email,
		FullName:      name,
		Role:          models.RoleUser,
		IsActive:      true,
		OAuthProvider: models.ProviderLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestAdmin creates an active admin
func NewTestAdmin(id, email string) *models.User {
	u := NewTestUser(id, email, "Admin "+id)
	u.Role = models.RoleAdmin
	return u
}

// memUserStore is an in-memory UserRepository with the same uniqueness
// rules as the users table. WithAdminLock serializes callers and only
// applies updates when fn succeeds.
type memUserStore struct {
	mu      sync.Mutex
	adminMu sync.Mutex
	users   map[string]*models.User

	// createErrs are returned, in order, by the next Create calls.
	createErrs []error
	failWith   error

	// beforeModify, when set, runs once ahead of the next scoped update,
	// standing in for a write that lands between a read and that update.
	beforeModify func()
}

func newMemUserStore(users ...*models.User) *memUserStore {
	s := &memUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		c := *u
		s.users[u.ID] = &c
	}
	return s
}

func (s *memUserStore) get(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (s *memUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	if u := s.get(id); u != nil {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if !u.IsDeleted && strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memUserStore) GetByOAuthIdentity(_ context.Context, provider models.OAuthProvider, providerUserID string) (*models.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.OAuthProvider == provider && u.OAuthProviderID == providerUserID {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memUserStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		return nil, err
	}
	if err := s.checkUnique(user); err != nil {
		return nil, err
	}
	c := *user
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.Role == "" {
		c.Role = models.RoleUser
	}
	if c.OAuthProvider == "" {
		c.OAuthProvider = models.ProviderLocal
	}
	s.users[c.ID] = &c
	out := c
	return &out, nil
}

// put stores user as-is, for arranging test state.
func (s *memUserStore) put(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	s.users[c.ID] = &c
}

// modify applies fn to the stored row of id under mu, mirroring a scoped
// UPDATE ... WHERE id = $1 AND <cond>. A false cond reports ErrNotFound.
func (s *memUserStore) modify(id string, cond func(u *models.User) bool, fn func(u *models.User)) (*models.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	if hook := s.beforeModify; hook != nil {
		s.beforeModify = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[id]
	if !ok || !cond(stored) {
		return nil, models.ErrNotFound
	}
	c := *stored
	fn(&c)
	if err := s.checkUnique(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	s.users[id] = &c
	out := c
	return &out, nil
}

func (s *memUserStore) UpdateProfile(_ context.Context, id string, changes models.ProfileChanges) (*models.User, error) {
	return s.modify(id, func(u *models.User) bool { return !u.IsDeleted }, func(u *models.User) {
		if changes.FullName != nil {
			u.FullName = *changes.FullName
		}
		if changes.Email != nil {
			u.Email = strings.ToLower(*changes.Email)
		}
		if changes.PasswordHash != nil {
			u.PasswordHash = *changes.PasswordHash
		}
	})
}

func (s *memUserStore) SetPasswordHash(_ context.Context, id, hash string) (*models.User, error) {
	u, err := s.modify(id, func(u *models.User) bool { return !u.IsDeleted && !u.HasPassword() }, func(u *models.User) {
		u.PasswordHash = hash
	})
	if errors.Is(err, models.ErrNotFound) {
		if current := s.get(id); current != nil && current.HasPassword() && !current.IsDeleted {
			return nil, models.ErrAlreadyHasPassword
		}
	}
	return u, err
}

func (s *memUserStore) LinkOAuthIdentity(_ context.Context, id string, link models.OAuthLink) (*models.User, error) {
	return s.modify(id, func(u *models.User) bool { return u.IsActive && !u.IsDeleted }, func(u *models.User) {
		u.OAuthProvider = link.Provider
		u.OAuthProviderID = link.ProviderUserID
		u.IsVerified = true
		if u.ProfilePictureURL == "" {
			u.ProfilePictureURL = link.ProfilePictureURL
		}
	})
}

func (s *memUserStore) Activate(_ context.Context, id string) (*models.User, error) {
	return s.modify(id, func(*models.User) bool { return true }, func(u *models.User) {
		u.IsActive = true
	})
}

func (s *memUserStore) update(user *models.User) (*models.User, error) {
	if _, ok := s.users[user.ID]; !ok {
		return nil, models.ErrNotFound
	}
	if err := s.checkUnique(user); err != nil {
		return nil, err
	}
	c := *user
	c.UpdatedAt = time.Now().UTC()
	s.users[c.ID] = &c
	out := c
	return &out, nil
}

// checkUnique must be called with mu held.
func (s *memUserStore) checkUnique(user *models.User) error {
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if !u.IsDeleted && !user.IsDeleted && strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("duplicate email: %w", models.ErrConflict)
		}
		if user.OAuthProviderID != "" && u.OAuthProvider == user.OAuthProvider && u.OAuthProviderID == user.OAuthProviderID {
			return fmt.Errorf("duplicate oauth identity: %w", models.ErrConflict)
		}
	}
	return nil
}

func (s *memUserStore) List(_ context.Context, filter models.UserFilter) ([]*models.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if u.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, u.Role) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	if filter.Skip >= len(out) {
		return []*models.User{}, nil
	}
	out = out[filter.Skip:]
	if filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsRole(roles []models.Role, r models.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func (s *memUserStore) Stats(_ context.Context) (*models.UserStats, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.UserStats{}
	for _, u := range s.users {
		if u.IsDeleted {
			stats.DeletedUsers++
			continue
		}
		stats.TotalUsers++
		if u.IsActive {
			stats.ActiveUsers++
		} else {
			stats.InactiveUsers++
		}
		if u.Role == models.RoleAdmin {
			stats.AdminUsers++
		}
	}
	return stats, nil
}

func (s *memUserStore) countActiveAdmins() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.CountsAsAdmin() {
			n++
		}
	}
	return n
}

func (s *memUserStore) WithAdminLock(ctx context.Context, fn func(tx repositories.UserTx) error) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	tx := &memUserTx{store: s, pending: make(map[string]*models.User)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range tx.pending {
		if _, err := s.update(u); err != nil {
			return err
		}
	}
	return nil
}

type memUserTx struct {
	store   *memUserStore
	pending map[string]*models.User
}

func (t *memUserTx) GetForUpdate(_ context.Context, id string) (*models.User, error) {
	if u, ok := t.pending[id]; ok {
		c := *u
		return &c, nil
	}
	if u := t.store.get(id); u != nil {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (t *memUserTx) CountActiveAdmins(_ context.Context) (int64, error) {
	return t.store.countActiveAdmins(), nil
}

func (t *memUserTx) Update(_ context.Context, user *models.User) (*models.User, error) {
	c := *user
	t.pending[user.ID] = &c
	out := c
	return &out, nil
}

// memRevocations implements TokenRevocationRepository
type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]string
	fail    error
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]string)}
}

func (m *memRevocations) RevokeToken(_ context.Context, jti, _, _ string, _ time.Time, reason string) (bool, error) {
	if m.fail != nil {
		return false, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[jti]; ok {
		return false, nil
	}
	m.revoked[jti] = reason
	return true, nil
}

func (m *memRevocations) reason(jti string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti]
}

func (m *memRevocations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}

// fakeHasher is a cheap, deterministic PasswordHasher
type fakeHasher struct{}

func (fakeHasher) Hash(_ context.Context, password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	return "hashed:" + password, nil
}

func (fakeHasher) Verify(_ context.Context, password, hash string) bool {
	return hash != "" && hash == "hashed:"+password
}

// recordingNotifier captures welcome emails
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) SendWelcomeEmail(_ context.Context, email, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// blockingNotifier holds every send until release is closed.
type blockingNotifier struct {
	release chan struct{}
	sent    []string
	ctxErr  error
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{release: make(chan struct{})}
}

func (n *blockingNotifier) SendWelcomeEmail(ctx context.Context, email, _ string) error {
	<-n.release
	n.sent = append(n.sent, email)
	n.ctxErr = ctx.Err()
	return nil
}

// fakeProvider is an oauth.Provider returning a fixed identity
type fakeProvider struct {
	identity *models.OAuthIdentity
	err      error

	mu        sync.Mutex
	verifiers []string
}

func (p *fakeProvider) Name() models.OAuthProvider { return models.ProviderGoogle }

func (p *fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://accounts.example.com/auth?state=" + state + "&code_challenge=" + oauth.S256Challenge(verifier)
}

func (p *fakeProvider) Exchange(_ context.Context, _, verifier string) (*models.OAuthIdentity, error) {
	p.mu.Lock()
	p.verifiers = append(p.verifiers, verifier)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	c := *p.identity
	return &c, nil
}

var _ oauth.Provider = (*fakeProvider)(nil)
