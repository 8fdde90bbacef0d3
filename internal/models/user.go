package models

import (
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// OAuthProvider identifies where an account's identity comes from.
type OAuthProvider string

const (
	ProviderLocal     OAuthProvider = "local"
	ProviderGoogle    OAuthProvider = "google"
	ProviderGitHub    OAuthProvider = "github"
	ProviderMicrosoft OAuthProvider = "microsoft"
)

// Valid reports whether p is a known provider.
func (p OAuthProvider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderGitHub, ProviderMicrosoft:
		return true
	}
	return false
}

type User struct {
	ID                string
	Email             string
	FullName          string
	PasswordHash      string // empty for OAuth-only accounts
	Role              Role
	IsActive          bool
	IsVerified        bool
	IsDeleted         bool
	DeletedAt         *time.Time
	OAuthProvider     OAuthProvider
	OAuthProviderID   string // empty when the account never linked a provider
	ProfilePictureURL string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAdmin returns true if the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword returns true if a password credential is set
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// CountsAsAdmin reports whether u is part of the protected admin set:
// admin role, active, and not deleted.
func (u *User) CountsAsAdmin() bool {
	return u.Role == RoleAdmin && u.IsActive && !u.IsDeleted
}

// UserFilter narrows user listings.
type UserFilter struct {
	Skip           int
	Limit          int
	IncludeDeleted bool
	Roles          []Role
}

// UserStats holds the counts shown on the admin dashboard.
type UserStats struct {
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users"`
	InactiveUsers int64 `json:"inactive_users"`
	AdminUsers    int64 `json:"admin_users"`
	DeletedUsers  int64 `json:"deleted_users"`
}

// ProfileChanges lists the self-service columns to overwrite. Nil fields
// are left as stored.
type ProfileChanges struct {
	FullName     *string
	Email        *string
	PasswordHash *string
}

// OAuthLink is the provider identity attached to an existing account.
type OAuthLink struct {
	Provider          OAuthProvider
	ProviderUserID    string
	ProfilePictureURL string
}
