package handlers

import (
	"time"

	"github.com/BradenHooton/springboard/internal/models"
)

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	Role              string     `json:"role"`
	IsActive          bool       `json:"is_active"`
	IsVerified        bool       `json:"is_verified"`
	IsDeleted         bool       `json:"is_deleted"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	OAuthProvider     string     `json:"oauth_provider"`
	ProfilePictureURL string     `json:"profile_picture_url,omitempty"`
	HasPassword       bool       `json:"has_password"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:                user.ID,
		Email:             user.Email,
		FullName:          user.FullName,
		Role:              string(user.Role),
		IsActive:          user.IsActive,
		IsVerified:        user.IsVerified,
		IsDeleted:         user.IsDeleted,
		DeletedAt:         user.DeletedAt,
		OAuthProvider:     string(user.OAuthProvider),
		ProfilePictureURL: user.ProfilePictureURL,
		HasPassword:       user.HasPassword(),
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}

func usersToResponse(users []*models.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userModelToResponse(u))
	}
	return out
}

// ProjectResponse represents a project in the HTTP response
type ProjectResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func projectToResponse(p *models.Project) *ProjectResponse {
	return &ProjectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// MessageResponse is a plain acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}
