package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountDeleted     = errors.New("account has been deleted")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnverifiedEmail    = errors.New("email not verified by OAuth provider")
	ErrAlreadyHasPassword = errors.New("account already has a password")
	ErrOAuthProvider      = errors.New("oauth authentication failed")
	ErrNotConfigured      = errors.New("oauth provider is not configured")
)

// Admin policy errors
var (
	ErrSelfActionForbidden = errors.New("cannot perform this action on your own account")
	ErrLastAdminProtected  = errors.New("cannot remove the last active admin")
)
