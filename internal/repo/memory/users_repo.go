package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// UsersRepo keeps users in process memory. Used for local development and tests.
type UsersRepo struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]user.User
	byName map[string]int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		nextID: 1,
		items:  make(map[int64]user.User),
		byName: make(map[string]int64),
	}
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *UsersRepo) Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error) {
	if !role.IsValid() {
		return user.User{}, user.ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[username]; taken {
		return user.User{}, user.ErrUsernameTaken
	}

	now := time.Now().UTC()
	u := user.User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.nextID++

	r.items[u.ID] = u
	r.byName[username] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *UsersRepo) CountByRole(ctx context.Context, role user.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.countLocked(role), nil
}

func (r *UsersRepo) countLocked(role user.Role) int {
	n := 0
	for _, u := range r.items {
		if u.Role == role {
			n++
		}
	}
	return n
}

func (r *UsersRepo) adminsLocked() int {
	return r.countLocked(user.RoleAdmin)
}

func (r *UsersRepo) UpdateUsername(ctx context.Context, id int64, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	if owner, taken := r.byName[username]; taken && owner != id {
		return user.ErrUsernameTaken
	}

	delete(r.byName, u.Username)
	u.Username = username
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u
	r.byName[username] = id

	return nil
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return r.update(id, func(u *user.User) { u.PasswordHash = hash })
}

func (r *UsersRepo) UpdateProfilePic(ctx context.Context, id int64, filename string) error {
	return r.update(id, func(u *user.User) { u.ProfilePic = &filename })
}

// UpdateRole returns ErrLastAdmin instead of demoting the only Admin.
func (r *UsersRepo) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	if !role.IsValid() {
		return user.ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}
	if u.IsAdmin() && role != user.RoleAdmin && r.adminsLocked() <= 1 {
		return user.ErrLastAdmin
	}

	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return nil
}

// Delete returns ErrLastAdmin instead of removing the only Admin.
func (r *UsersRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}
	if u.IsAdmin() && r.adminsLocked() <= 1 {
		return user.ErrLastAdmin
	}

	delete(r.items, id)
	delete(r.byName, u.Username)

	return nil
}

func (r *UsersRepo) update(id int64, fn func(*user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return nil
}
