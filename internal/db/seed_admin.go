package db

import (
	"context"
	"errors"

	"github.com/geocoder89/userhub/internal/domain/user"
)

type adminSeedStore interface {
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Create(ctx context.Context, username, passwordHash string, role user.Role) (user.User, error)
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the bootstrap Admin when both credentials are set
// and no account with that username exists yet. An existing account is left
// untouched. It reports whether a row was created.
func EnsureAdminUser(ctx context.Context, store adminSeedStore, hasher passwordHasher, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	// check if the user exists

	_, err := store.GetByUsername(ctx, username)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := hasher.Hash(password)

	if err != nil {
		return false, err
	}

	_, err = store.Create(ctx, username, hash, user.RoleAdmin)

	// another instance won the race
	if errors.Is(err, user.ErrUsernameTaken) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
