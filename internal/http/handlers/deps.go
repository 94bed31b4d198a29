package handlers

import (
	"context"
	"io"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/session"
	"github.com/geocoder89/userhub/internal/storage"
	"github.com/gin-gonic/gin"
)

type UserReader interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateProfilePic(ctx context.Context, id int64, filename string) error
}

type UserAdmin interface {
	List(ctx context.Context) ([]user.User, error)
	UpdateRole(ctx context.Context, id int64, role user.Role) error
	Delete(ctx context.Context, id int64) error
}

// UserStore is everything the handlers need from the users table.
type UserStore interface {
	UserReader
	UserWriter
	UserAdmin
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

type Sessions interface {
	Current(c *gin.Context) (session.State, bool)
	Login(c *gin.Context, u user.User) error
	Logout(c *gin.Context) error
	SetUsername(c *gin.Context, username string) error
	AddFlash(c *gin.Context, category, message string)
	CommitFlashes(c *gin.Context) error
	TakeFlashes(c *gin.Context) []session.Flash
}

type Uploads interface {
	Save(ctx context.Context, name string, data []byte, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, storage.Info, error)
	Remove(ctx context.Context, name string) error
}
