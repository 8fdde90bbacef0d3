package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/springboard/internal/database"
)

const (
	revokeTokenSQL = `
		INSERT INTO revoked_tokens (jti, user_id, token_type, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO NOTHING`

	pruneRevokedSQL = `DELETE FROM revoked_tokens WHERE expires_at < $1`
)

// TokenRevocationRepository records refresh tokens that were rotated or
// logged out, keyed by jti, until they would have expired on their own.
type TokenRevocationRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool, now: time.Now}
}

// RevokeToken records jti and reports whether this call inserted it. A jti
// that is already revoked keeps its first reason and yields false, which
// makes the insert usable as a single-winner gate.
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, revokeTokenSQL, jti, userID, tokenType, expiresAt, reason)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// CleanupExpiredTokens deletes rows whose token has expired and reports
// how many went.
func (r *TokenRevocationRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, pruneRevokedSQL, r.now().UTC())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
