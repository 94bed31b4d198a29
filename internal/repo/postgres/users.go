package postgres

import (
	"context"
	_ "embed"
	"errors"
	"slices"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const userColumns = `id, username, password_hash, role, profile_pic, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

// NewUsersRepo returns a repo over pool. prom may be nil.
func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

// Migrate creates the users table if it doesn't exist.
func (r *UsersRepo) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UsersRepo) Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error) {
	if !role.IsValid() {
		return user.User{}, user.ErrInvalidRole
	}

	var u user.User

	err := r.prom.ObserveDB("users.create", func() error {
		// the unique constraint decides; no separate existence check to race against
		return scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (username, password_hash, role)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (username) DO NOTHING
			 RETURNING `+userColumns,
			username, passwordHash, string(role),
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.get_by_username", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			 FROM users
			 WHERE username = $1`,
			username,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			 FROM users
			 WHERE id = $1`,
			id,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	output := make([]user.User, 0)

	err := r.prom.ObserveDB("users.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var u user.User

			if err := scanUser(rows, &u); err != nil {
				return err
			}

			output = append(output, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return output, nil
}

func (r *UsersRepo) CountByRole(ctx context.Context, role user.Role) (int, error) {
	var n int

	err := r.prom.ObserveDB("users.count_by_role", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&n)
	})

	return n, err
}

func (r *UsersRepo) UpdateUsername(ctx context.Context, id int64, username string) error {
	err := r.exec(ctx, "users.update_username",
		`UPDATE users SET username = $2, updated_at = NOW() WHERE id = $1`,
		id, username,
	)

	if isUniqueViolation(err) {
		return user.ErrUsernameTaken
	}

	return err
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, "users.update_password_hash",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
}

func (r *UsersRepo) UpdateProfilePic(ctx context.Context, id int64, filename string) error {
	return r.exec(ctx, "users.update_profile_pic",
		`UPDATE users SET profile_pic = $2, updated_at = NOW() WHERE id = $1`,
		id, filename,
	)
}

// UpdateRole returns ErrLastAdmin instead of demoting the only Admin.
func (r *UsersRepo) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	if !role.IsValid() {
		return user.ErrInvalidRole
	}

	return r.adminGuarded(ctx, "users.update_role", id, role != user.RoleAdmin,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`,
		id, string(role),
	)
}

// Delete returns ErrLastAdmin instead of removing the only Admin.
func (r *UsersRepo) Delete(ctx context.Context, id int64) error {
	return r.adminGuarded(ctx, "users.delete", id, true, `DELETE FROM users WHERE id = $1`, id)
}

// adminGuarded runs a write on row id after locking every Admin row, so two
// admins removing each other serialize and the second one sees the first's
// commit. dropsAdmin says whether the write takes id out of the Admin set.
func (r *UsersRepo) adminGuarded(ctx context.Context, op string, id int64, dropsAdmin bool, sql string, args ...any) error {
	var (
		refused bool
		tag     pgconn.CommandTag
	)

	err := r.prom.ObserveDB(op, func() error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT id FROM users WHERE role = 'Admin' ORDER BY id FOR UPDATE`)
			if err != nil {
				return err
			}

			admins, err := pgx.CollectRows(rows, pgx.RowTo[int64])
			if err != nil {
				return err
			}

			if dropsAdmin && len(admins) <= 1 && slices.Contains(admins, id) {
				refused = true
				return nil
			}

			tag, err = tx.Exec(ctx, sql, args...)
			return err
		})
	})

	switch {
	case err != nil:
		return err
	case refused:
		return user.ErrLastAdmin
	case tag.RowsAffected() == 0:
		return user.ErrNotFound
	}
	return nil
}

// exec runs a single-row write and maps "no row touched" to ErrNotFound.
func (r *UsersRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, args...)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row, u *user.User) error {
	var role string

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&role,
		&u.ProfilePic,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	u.Role = user.Role(role)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
