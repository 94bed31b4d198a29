package session

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
)

var ErrNotFound = errors.New("session not found")

type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// State is what the server remembers about one client. A zero UserID is an
// anonymous session that only carries flashes.
type State struct {
	UserID   int64     `json:"userId,omitempty"`
	Role     user.Role `json:"role,omitempty"`
	Username string    `json:"username,omitempty"`
	Flashes  []Flash   `json:"flashes,omitempty"`
}

func (s State) Authenticated() bool {
	return s.UserID != 0
}

// Store persists State under opaque ids.
type Store interface {
	Create(ctx context.Context, id string, st State, ttl time.Duration) error
	Get(ctx context.Context, id string) (State, error)
	// Save replaces the state and keeps the remaining TTL. It returns ErrNotFound
	// rather than resurrecting an expired or deleted id.
	Save(ctx context.Context, id string, st State) error
	Delete(ctx context.Context, id string) error
}
