package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/springboard/internal/database"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// adminSetLockKey serializes every transaction that can shrink the set of
// active admins.
const adminSetLockKey int64 = 0x5370_7261_646d_6e01

const userColumns = `id, email, full_name, password_hash, role, is_active, is_verified, is_deleted, deleted_at,
	oauth_provider, oauth_provider_id, profile_picture_url, created_at, updated_at`

// UserTx is the view of the user table available inside WithAdminLock.
type UserTx interface {
	GetForUpdate(ctx context.Context, id string) (*models.User, error)
	CountActiveAdmins(ctx context.Context) (int64, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var fullName, passwordHash, providerID, pictureURL *string

	err := scanner.Scan(
		&user.ID, &user.Email, &fullName, &passwordHash, &user.Role,
		&user.IsActive, &user.IsVerified, &user.IsDeleted, &user.DeletedAt,
		&user.OAuthProvider, &providerID, &pictureURL,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.FullName = deref(fullName)
	user.PasswordHash = deref(passwordHash)
	user.OAuthProviderID = deref(providerID)
	user.ProfilePictureURL = deref(pictureURL)

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByEmail looks up a non-deleted account by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1 AND NOT is_deleted`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, normalizeEmail(email)))
}

// GetByOAuthIdentity looks up an account by its linked provider identity,
// deleted accounts included.
func (r *UserRepository) GetByOAuthIdentity(ctx context.Context, provider models.OAuthProvider, providerUserID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_provider_id = $2`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, provider, providerUserID))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = normalizeEmail(user.Email)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.OAuthProvider == "" {
		user.OAuthProvider = models.ProviderLocal
	}

	query := `
		INSERT INTO users (id, email, full_name, password_hash, role, is_active, is_verified,
			oauth_provider, oauth_provider_id, profile_picture_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, nullable(user.FullName), nullable(user.PasswordHash), user.Role,
		user.IsActive, user.IsVerified,
		user.OAuthProvider, nullable(user.OAuthProviderID), nullable(user.ProfilePictureURL),
		user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateProfile overwrites the self-service columns set in changes. Role,
// activation and deletion state are never touched here, so a concurrent
// admin action cannot be undone by a stale copy of the row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, changes models.ProfileChanges) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	var email *string
	if changes.Email != nil {
		e := normalizeEmail(*changes.Email)
		email = &e
	}

	query := `
		UPDATE users SET
			full_name = CASE WHEN $2::boolean THEN NULLIF($3::text, '') ELSE full_name END,
			email = COALESCE($4, email),
			password_hash = COALESCE($5, password_hash),
			updated_at = $6
		WHERE id = $1 AND NOT is_deleted
		RETURNING ` + userColumns

	fullName := ""
	if changes.FullName != nil {
		fullName = *changes.FullName
	}

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		id, changes.FullName != nil, fullName, email, changes.PasswordHash, time.Now().UTC(),
	))
}

// SetPasswordHash stores hash on an account that has no password yet. It
// returns ErrAlreadyHasPassword when one was set in the meantime.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1 AND password_hash IS NULL AND NOT is_deleted
		RETURNING ` + userColumns

	user, err := scanUserRow(r.db.Pool.QueryRow(ctx, query, id, hash, time.Now().UTC()))
	if errors.Is(err, models.ErrNotFound) {
		current, getErr := r.GetByID(ctx, id)
		if getErr == nil && current.HasPassword() && !current.IsDeleted {
			return nil, models.ErrAlreadyHasPassword
		}
	}
	return user, err
}

// LinkOAuthIdentity attaches link to an active account and marks it
// verified. An existing profile picture is kept.
func (r *UserRepository) LinkOAuthIdentity(ctx context.Context, id string, link models.OAuthLink) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `
		UPDATE users SET
			oauth_provider = $2,
			oauth_provider_id = $3,
			is_verified = TRUE,
			profile_picture_url = COALESCE(NULLIF(profile_picture_url, ''), $4),
			updated_at = $5
		WHERE id = $1 AND is_active AND NOT is_deleted
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		id, link.Provider, nullable(link.ProviderUserID), nullable(link.ProfilePictureURL), time.Now().UTC(),
	))
}

// Activate re-enables id without touching any other column.
func (r *UserRepository) Activate(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `UPDATE users SET is_active = TRUE, updated_at = $2 WHERE id = $1 RETURNING ` + userColumns
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id, time.Now().UTC()))
}

func updateUser(ctx context.Context, q database.Querier, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET email = $1, full_name = $2, password_hash = $3, role = $4, is_active = $5,
			is_verified = $6, is_deleted = $7, deleted_at = $8, oauth_provider = $9,
			oauth_provider_id = $10, profile_picture_url = $11, updated_at = $12
		WHERE id = $13
		RETURNING ` + userColumns

	return scanUserRow(q.QueryRow(ctx, query,
		normalizeEmail(user.Email), nullable(user.FullName), nullable(user.PasswordHash), user.Role, user.IsActive,
		user.IsVerified, user.IsDeleted, user.DeletedAt, user.OAuthProvider,
		nullable(user.OAuthProviderID), nullable(user.ProfilePictureURL), time.Now().UTC(),
		user.ID,
	))
}

func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	roles := make([]string, 0, len(filter.Roles))
	for _, role := range filter.Roles {
		roles = append(roles, string(role))
	}

	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE ($1 OR NOT is_deleted)
		  AND (cardinality($2::text[]) = 0 OR role = ANY($2::text[]))
		ORDER BY created_at ASC, id ASC
		OFFSET $3 LIMIT $4`

	rows, err := r.db.Pool.Query(ctx, query, filter.IncludeDeleted, pq.Array(roles), filter.Skip, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

// Stats counts accounts for the admin dashboard. All counts except
// DeletedUsers exclude soft-deleted accounts.
func (r *UserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_deleted),
			COUNT(*) FILTER (WHERE NOT is_deleted AND is_active),
			COUNT(*) FILTER (WHERE NOT is_deleted AND NOT is_active),
			COUNT(*) FILTER (WHERE NOT is_deleted AND role = 'admin'),
			COUNT(*) FILTER (WHERE is_deleted)
		FROM users`

	var s models.UserStats
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&s.TotalUsers, &s.ActiveUsers, &s.InactiveUsers, &s.AdminUsers, &s.DeletedUsers,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *UserRepository) CountActiveAdmins(ctx context.Context) (int64, error) {
	return countActiveAdmins(ctx, r.db.Pool)
}

func countActiveAdmins(ctx context.Context, q database.Querier) (int64, error) {
	var n int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active AND NOT is_deleted`,
	).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// WithAdminLock runs fn in a transaction holding the admin-set advisory
// lock. Concurrent callers observe each other's committed writes, so a
// count taken inside fn stays valid until fn returns.
func (r *UserRepository) WithAdminLock(ctx context.Context, fn func(tx UserTx) error) error {
	return r.db.WithAdvisoryLock(ctx, adminSetLockKey, func(tx pgx.Tx) error {
		return fn(&userTx{tx: tx})
	})
}

type userTx struct {
	tx pgx.Tx
}

func (t *userTx) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUserRow(t.tx.QueryRow(ctx, query, id))
}

func (t *userTx) CountActiveAdmins(ctx context.Context) (int64, error) {
	return countActiveAdmins(ctx, t.tx)
}

func (t *userTx) Update(ctx context.Context, user *models.User) (*models.User, error) {
	return updateUser(ctx, t.tx, user)
}
