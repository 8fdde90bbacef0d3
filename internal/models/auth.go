package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the JWT payload. The subject id travels in the registered
// "sub" claim.
type TokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back to the caller.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// OAuthIdentity is the set of identity claims returned by a provider after
// a successful code exchange.
type OAuthIdentity struct {
	Provider       OAuthProvider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	FullName       string
	PictureURL     string
}
