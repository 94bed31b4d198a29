package user

import (
	"errors"
	"time"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidRole   = errors.New("invalid role")
	ErrLastAdmin     = errors.New("last admin account")
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	ProfilePic   *string   `json:"profilePic,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PictureName is the stored picture filename, or "" when none was uploaded.
func (u User) PictureName() string {
	if u.ProfilePic == nil {
		return ""
	}
	return *u.ProfilePic
}

// form payloads

type CredentialsRequest struct {
	Username string `form:"username" binding:"required,username"`
	Password string `form:"password" binding:"required"`
}

type UpdateInfoRequest struct {
	Username string `form:"username" binding:"required,username"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `form:"current_password"`
	NewPassword     string `form:"new_password"`
	ConfirmPassword string `form:"confirm_password"`
}

type AdminCreateRequest struct {
	Username string `form:"new_username" binding:"required,username"`
	Password string `form:"new_password" binding:"required"`
	Role     Role   `form:"new_role" binding:"required,oneof=User Admin"`
}

type AdminTargetRequest struct {
	UserID int64 `form:"user_id" binding:"required,min=1"`
}

type AdminRoleRequest struct {
	UserID int64 `form:"user_id" binding:"required,min=1"`
	Role   Role  `form:"role" binding:"required,oneof=User Admin"`
}
