package db

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/repo/sqlite"
)

// Store is the full user store surface every backend provides.
type Store interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	CountByRole(ctx context.Context, role user.Role) (int, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateProfilePic(ctx context.Context, id int64, filename string) error
	UpdateRole(ctx context.Context, id int64, role user.Role) error
	Delete(ctx context.Context, id int64) error
}

var (
	_ Store = (*memory.UsersRepo)(nil)
	_ Store = (*postgres.UsersRepo)(nil)
	_ Store = (*sqlite.UsersRepo)(nil)
)

// OpenStore builds the user store named by cfg.StoreDriver and makes sure the
// users table exists. The returned func releases the underlying handle.
func OpenStore(ctx context.Context, cfg config.Config, prom *observability.Prom) (Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		repo := postgres.NewUsersRepo(pool, prom)

		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := repo.Migrate(mctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return repo, pool.Close, nil

	case "sqlite":
		sqlDB, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.NewUsersRepo(sqlDB, prom), func() { _ = sqlDB.Close() }, nil

	case "memory":
		return memory.NewUsersRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
