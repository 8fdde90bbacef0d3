package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/springboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUser(t *testing.T, repo *UserRepository, email string, role models.Role) *models.User {
	t.Helper()
	u, err := repo.Create(context.Background(), &models.User{
		Email:        email,
		FullName:     "Test User",
		PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)
	return u
}

// lockedUpdate writes every column of u the way admin actions do.
func lockedUpdate(t *testing.T, repo *UserRepository, u *models.User) {
	t.Helper()
	err := repo.WithAdminLock(context.Background(), func(tx UserTx) error {
		_, err := tx.Update(context.Background(), u)
		return err
	})
	require.NoError(t, err)
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created := createTestUser(t, repo, "  Alice@Example.com ", models.RoleUser)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, models.ProviderLocal, created.OAuthProvider)
	assert.Empty(t, created.OAuthProviderID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)

	byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_EmailUniqueAmongLiveAccounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	first := createTestUser(t, repo, "dup@example.com", models.RoleUser)

	_, err := repo.Create(ctx, &models.User{Email: "dup@example.com", IsActive: true})
	assert.ErrorIs(t, err, models.ErrConflict)

	now := time.Now().UTC()
	first.IsDeleted = true
	first.DeletedAt = &now
	lockedUpdate(t, repo, first)

	_, err = repo.GetByEmail(ctx, "dup@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound, "deleted accounts are invisible to email lookup")

	_, err = repo.Create(ctx, &models.User{Email: "dup@example.com", IsActive: true})
	assert.NoError(t, err, "email of a deleted account can be reused")
}

func TestUserRepository_OAuthIdentityUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.User{
		Email: "g1@example.com", IsActive: true, IsVerified: true,
		OAuthProvider: models.ProviderGoogle, OAuthProviderID: "sub-1",
	})
	require.NoError(t, err)

	found, err := repo.GetByOAuthIdentity(ctx, models.ProviderGoogle, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "g1@example.com", found.Email)

	_, err = repo.Create(ctx, &models.User{
		Email: "g2@example.com", IsActive: true,
		OAuthProvider: models.ProviderGoogle, OAuthProviderID: "sub-1",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserRepository_ListAndStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createTestUser(t, repo, "admin@example.com", models.RoleAdmin)
	createTestUser(t, repo, "u1@example.com", models.RoleUser)
	inactive := createTestUser(t, repo, "u2@example.com", models.RoleUser)
	deleted := createTestUser(t, repo, "u3@example.com", models.RoleUser)

	inactive.IsActive = false
	lockedUpdate(t, repo, inactive)

	now := time.Now().UTC()
	deleted.IsDeleted = true
	deleted.DeletedAt = &now
	lockedUpdate(t, repo, deleted)

	live, err := repo.List(ctx, models.UserFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, live, 3)

	all, err := repo.List(ctx, models.UserFilter{Limit: 100, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	admins, err := repo.List(ctx, models.UserFilter{Limit: 100, Roles: []models.Role{models.RoleAdmin}})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin@example.com", admins[0].Email)

	page, err := repo.List(ctx, models.UserFilter{Skip: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{
		TotalUsers:    3,
		ActiveUsers:   2,
		InactiveUsers: 1,
		AdminUsers:    1,
		DeletedUsers:  1,
	}, *stats)

	n, err := repo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUserRepository_WithAdminLock_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	admin := createTestUser(t, repo, "admin@example.com", models.RoleAdmin)
	sentinel := errors.New("abort")

	err := repo.WithAdminLock(ctx, func(tx UserTx) error {
		u, err := tx.GetForUpdate(ctx, admin.ID)
		if err != nil {
			return err
		}
		u.Role = models.RoleUser
		if _, err := tx.Update(ctx, u); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	reloaded, err := repo.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, reloaded.Role)
}

// Two admins demote each other at the same time. Without serialization both
// would see a count of 2 and both demotions would commit.
func TestUserRepository_WithAdminLock_ConcurrentDemotion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	a := createTestUser(t, repo, "a@example.com", models.RoleAdmin)
	b := createTestUser(t, repo, "b@example.com", models.RoleAdmin)

	demote := func(targetID string) error {
		return repo.WithAdminLock(ctx, func(tx UserTx) error {
			target, err := tx.GetForUpdate(ctx, targetID)
			if err != nil {
				return err
			}
			count, err := tx.CountActiveAdmins(ctx)
			if err != nil {
				return err
			}
			if count <= 1 {
				return models.ErrLastAdminProtected
			}
			// widen the race window
			time.Sleep(50 * time.Millisecond)
			target.Role = models.RoleUser
			_, err = tx.Update(ctx, target)
			return err
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = demote(id)
		}(i, id)
	}
	wg.Wait()

	var succeeded, protected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrLastAdminProtected):
			protected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, protected)

	n, err := repo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createTestUser(t, repo, "profile@example.com", models.RoleUser)
	createTestUser(t, repo, "taken@example.com", models.RoleUser)

	name, email, hash := "Renamed", " New@Example.com", "$2a$04$another"
	updated, err := repo.UpdateProfile(ctx, u.ID, models.ProfileChanges{FullName: &name, Email: &email, PasswordHash: &hash})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FullName)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, hash, updated.PasswordHash)

	// Nil fields are left alone.
	updated, err = repo.UpdateProfile(ctx, u.ID, models.ProfileChanges{})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FullName)
	assert.Equal(t, hash, updated.PasswordHash)

	taken := "taken@example.com"
	_, err = repo.UpdateProfile(ctx, u.ID, models.ProfileChanges{Email: &taken})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserRepository_UpdateProfileAfterAdminAction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	target := createTestUser(t, repo, "target@example.com", models.RoleAdmin)
	demoted := createTestUser(t, repo, "demoted@example.com", models.RoleAdmin)

	// Admin actions commit after the profile owner loaded their rows.
	now := time.Now().UTC()
	deleted := *target
	deleted.IsDeleted = true
	deleted.DeletedAt = &now
	lockedUpdate(t, repo, &deleted)

	changed := *demoted
	changed.Role = models.RoleUser
	changed.IsActive = false
	lockedUpdate(t, repo, &changed)

	name := "renamed"
	_, err := repo.UpdateProfile(ctx, target.ID, models.ProfileChanges{FullName: &name})
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := repo.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "Test User", got.FullName)

	updated, err := repo.UpdateProfile(ctx, demoted.ID, models.ProfileChanges{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.FullName)
	assert.Equal(t, models.RoleUser, updated.Role)
	assert.False(t, updated.IsActive)
}

func TestUserRepository_SetPasswordHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	oauthOnly, err := repo.Create(ctx, &models.User{
		Email: "oauth@example.com", IsActive: true, IsVerified: true,
		OAuthProvider: models.ProviderGoogle, OAuthProviderID: "sub-pw",
	})
	require.NoError(t, err)

	updated, err := repo.SetPasswordHash(ctx, oauthOnly.ID, "$2a$04$first")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$first", updated.PasswordHash)

	_, err = repo.SetPasswordHash(ctx, oauthOnly.ID, "$2a$04$second")
	assert.ErrorIs(t, err, models.ErrAlreadyHasPassword)

	got, err := repo.GetByID(ctx, oauthOnly.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$first", got.PasswordHash)

	_, err = repo.SetPasswordHash(ctx, "00000000-0000-0000-0000-000000000000", "$2a$04$x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_LinkOAuthIdentity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createTestUser(t, repo, "link@example.com", models.RoleUser)

	linked, err := repo.LinkOAuthIdentity(ctx, u.ID, models.OAuthLink{
		Provider:          models.ProviderGoogle,
		ProviderUserID:    "sub-link",
		ProfilePictureURL: "https://example.com/p.png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, linked.OAuthProvider)
	assert.Equal(t, "sub-link", linked.OAuthProviderID)
	assert.True(t, linked.IsVerified)
	assert.Equal(t, "https://example.com/p.png", linked.ProfilePictureURL)
	assert.True(t, linked.HasPassword())

	relinked, err := repo.LinkOAuthIdentity(ctx, u.ID, models.OAuthLink{
		Provider:          models.ProviderGoogle,
		ProviderUserID:    "sub-link",
		ProfilePictureURL: "https://example.com/other.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p.png", relinked.ProfilePictureURL, "existing picture is kept")

	inactive := createTestUser(t, repo, "inactive-link@example.com", models.RoleUser)
	inactive.IsActive = false
	lockedUpdate(t, repo, inactive)

	_, err = repo.LinkOAuthIdentity(ctx, inactive.ID, models.OAuthLink{Provider: models.ProviderGoogle, ProviderUserID: "sub-2"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	got, err := repo.GetByID(ctx, inactive.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.OAuthProviderID)
}

func TestUserRepository_Activate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createTestUser(t, repo, "activate@example.com", models.RoleAdmin)
	u.IsActive = false
	lockedUpdate(t, repo, u)

	activated, err := repo.Activate(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.Equal(t, models.RoleAdmin, activated.Role)

	_, err = repo.Activate(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
