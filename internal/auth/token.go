package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/springboard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}
}

// WithClock returns a copy of tm that reads time from now, for both
// issuing and expiry checks.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	clone := *tm
	clone.now = now
	return &clone
}

func (tm *TokenManager) AccessTokenExpiry() time.Duration  { return tm.accessTokenExpiry }
func (tm *TokenManager) RefreshTokenExpiry() time.Duration { return tm.refreshTokenExpiry }

// IssueAccessToken creates a short-lived access token for subjectID
func (tm *TokenManager) IssueAccessToken(subjectID string) (string, error) {
	return tm.issue(subjectID, models.TokenTypeAccess, tm.accessTokenExpiry)
}

// IssueRefreshToken creates a long-lived refresh token for subjectID
func (tm *TokenManager) IssueRefreshToken(subjectID string) (string, error) {
	return tm.issue(subjectID, models.TokenTypeRefresh, tm.refreshTokenExpiry)
}

// IssuePair creates an access and a refresh token for subjectID.
func (tm *TokenManager) IssuePair(subjectID string) (*models.TokenPair, error) {
	access, err := tm.IssueAccessToken(subjectID)
	if err != nil {
		return nil, err
	}
	refresh, err := tm.IssueRefreshToken(subjectID)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (tm *TokenManager) issue(subjectID, tokenType string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("failed to sign %s token: empty subject", tokenType)
	}
	now := tm.now()

	claims := &models.TokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// Verify checks signature, algorithm, expiry, subject and type. Every
// failure collapses to (nil, false).
func (tm *TokenManager) Verify(tokenString string) (*models.TokenClaims, bool) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !token.Valid {
		return nil, false
	}

	if claims.Subject == "" {
		return nil, false
	}
	if claims.Type != models.TokenTypeAccess && claims.Type != models.TokenTypeRefresh {
		return nil, false
	}

	return claims, true
}
