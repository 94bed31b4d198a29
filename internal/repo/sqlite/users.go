// Package sqlite is the single-file User Store, handy for small deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const userColumns = `id, username, password_hash, role, profile_pic, created_at, updated_at`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "userhub.db"
	}
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; also keeps shared-cache memory databases consistent
	d.SetMaxOpenConns(1)

	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	// journal_mode may not be supported in some contexts (e.g., in-memory). Ignore errors.
	_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	if _, err := d.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = d.Close()
		return nil, err
	}
	if _, err := d.Exec(schemaSQL); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// adminGuard keeps a write from touching the only remaining Admin row. SQLite
// serializes writers, so the count and the write see the same state.
const adminGuard = `(role <> 'Admin' OR (SELECT COUNT(*) FROM users WHERE role = 'Admin') > 1)`

type UsersRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

// NewUsersRepo returns a repo over db. prom may be nil.
func NewUsersRepo(db *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *UsersRepo) Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error) {
	if !role.IsValid() {
		return user.User{}, user.ErrInvalidRole
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var res sql.Result

	err := r.prom.ObserveDB("users.create", func() error {
		var err error
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)
			 ON CONFLICT (username) DO NOTHING`,
			username, passwordHash, string(role),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return user.User{}, err
	}
	if n == 0 {
		return user.User{}, user.ErrUsernameTaken
	}

	id, err := res.LastInsertId()
	if err != nil {
		return user.User{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := make([]user.User, 0)

	err := r.prom.ObserveDB("users.list", func() error {
		rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u user.User
			if err := scanUser(rows, &u); err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UsersRepo) CountByRole(ctx context.Context, role user.Role) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.prom.ObserveDB("users.count_by_role", func() error {
		return r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, string(role)).Scan(&n)
	})
	return n, err
}

func (r *UsersRepo) UpdateUsername(ctx context.Context, id int64, username string) error {
	n, err := r.exec(ctx, "users.update_username",
		`UPDATE users SET username = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, username, id)
	if isUniqueViolation(err) {
		return user.ErrUsernameTaken
	}
	return notFoundIfNone(n, err)
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return notFoundIfNone(r.exec(ctx, "users.update_password_hash",
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, hash, id))
}

func (r *UsersRepo) UpdateProfilePic(ctx context.Context, id int64, filename string) error {
	return notFoundIfNone(r.exec(ctx, "users.update_profile_pic",
		`UPDATE users SET profile_pic = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, filename, id))
}

// UpdateRole returns ErrLastAdmin instead of demoting the only Admin.
func (r *UsersRepo) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	if !role.IsValid() {
		return user.ErrInvalidRole
	}

	n, err := r.exec(ctx, "users.update_role",
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND (? = 'Admin' OR `+adminGuard+`)`,
		string(role), id, string(role),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.refusedOrMissing(ctx, id)
	}
	return nil
}

// Delete returns ErrLastAdmin instead of removing the only Admin.
func (r *UsersRepo) Delete(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, "users.delete", `DELETE FROM users WHERE id = ? AND `+adminGuard, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.refusedOrMissing(ctx, id)
	}
	return nil
}

// refusedOrMissing explains a guarded write that touched no row.
func (r *UsersRepo) refusedOrMissing(ctx context.Context, id int64) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return user.ErrLastAdmin
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u user.User
	err := r.prom.ObserveDB(op, func() error {
		return scanUser(r.db.QueryRowContext(ctx, query, arg), &u)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// exec runs a single-row write and reports how many rows it touched.
func (r *UsersRepo) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var res sql.Result

	err := r.prom.ObserveDB(op, func() error {
		var err error
		res, err = r.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func notFoundIfNone(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, u *user.User) error {
	var role string
	var pic sql.NullString

	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &pic, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}

	u.Role = user.Role(role)
	if pic.Valid {
		u.ProfilePic = &pic.String
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
