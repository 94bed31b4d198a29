package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DefaultTTL   = 24 * time.Hour
	storeTimeout = 2 * time.Second
	ctxKey       = "session.request"
)

type Config struct {
	Secret    string
	TTL       time.Duration
	Transport Transport
}

// Manager ties a Store, a Signer and a Transport into the per-request
// session API used by handlers.
type Manager struct {
	store     Store
	signer    *Signer
	transport Transport
	ttl       time.Duration
	log       *slog.Logger
}

func NewManager(store Store, cfg Config, log *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Transport == nil {
		cfg.Transport = CookieTransport{Name: DefaultCookieName}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:     store,
		signer:    NewSigner(cfg.Secret),
		transport: cfg.Transport,
		ttl:       cfg.TTL,
		log:       log,
	}
}

// requestSession is the session as seen by one request.
type requestSession struct {
	id      string
	state   State
	pending []Flash
}

// Middleware loads the session once per request.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.from(c)
		c.Next()
	}
}

func (m *Manager) from(c *gin.Context) *requestSession {
	if v, ok := c.Get(ctxKey); ok {
		if rs, ok := v.(*requestSession); ok {
			return rs
		}
	}

	rs := &requestSession{}

	if raw := m.transport.Read(c); raw != "" {
		id, err := m.signer.Parse(raw)

		if err == nil {
			ctx, cancel := m.ctx(c)
			st, err := m.store.Get(ctx, id)
			cancel()

			switch {
			case err == nil:
				rs.id = id
				rs.state = st
			case errors.Is(err, ErrNotFound):
				// expired or logged out elsewhere
			default:
				m.log.WarnContext(c.Request.Context(), "session load failed", "err", err)
			}
		}
	}

	c.Set(ctxKey, rs)
	return rs
}

// Current returns the authenticated state, if any.
func (m *Manager) Current(c *gin.Context) (State, bool) {
	rs := m.from(c)
	if !rs.state.Authenticated() {
		return State{}, false
	}
	return rs.state, true
}

// Login starts a fresh session for u. The previous id is discarded so a
// pre-login token cannot be reused.
func (m *Manager) Login(c *gin.Context, u user.User) error {
	rs := m.from(c)

	ctx, cancel := m.ctx(c)
	defer cancel()

	if rs.id != "" {
		if err := m.store.Delete(ctx, rs.id); err != nil {
			m.log.WarnContext(ctx, "session rotate: delete old", "err", err)
		}
	}

	st := State{
		UserID:   u.ID,
		Role:     u.Role,
		Username: u.Username,
		Flashes:  rs.state.Flashes,
	}

	id, err := m.start(ctx, c, st)
	if err != nil {
		return err
	}

	rs.id = id
	rs.state = st
	return nil
}

// Logout drops all server state for the client and clears its token.
func (m *Manager) Logout(c *gin.Context) error {
	rs := m.from(c)

	ctx, cancel := m.ctx(c)
	defer cancel()

	var err error
	if rs.id != "" {
		err = m.store.Delete(ctx, rs.id)
	}

	m.transport.Clear(c)

	rs.id = ""
	rs.state = State{}
	return err
}

// SetUsername refreshes the cached username after a profile rename.
func (m *Manager) SetUsername(c *gin.Context, username string) error {
	rs := m.from(c)
	rs.state.Username = username

	if rs.id == "" {
		return nil
	}

	ctx, cancel := m.ctx(c)
	defer cancel()

	return m.store.Save(ctx, rs.id, rs.state)
}

// AddFlash queues a message for the next rendered page.
func (m *Manager) AddFlash(c *gin.Context, category, message string) {
	rs := m.from(c)
	rs.pending = append(rs.pending, Flash{Category: category, Message: message})
}

// CommitFlashes persists queued flashes so they survive a redirect. Anonymous
// clients get a flash-only session.
func (m *Manager) CommitFlashes(c *gin.Context) error {
	rs := m.from(c)
	if len(rs.pending) == 0 {
		return nil
	}

	ctx, cancel := m.ctx(c)
	defer cancel()

	st := rs.state
	st.Flashes = append(append([]Flash(nil), st.Flashes...), rs.pending...)

	if rs.id != "" {
		err := m.store.Save(ctx, rs.id, st)
		if err == nil {
			rs.state = st
			rs.pending = nil
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		// the session vanished underneath us; fall back to an anonymous one
		st = State{Flashes: st.Flashes}
	}

	id, err := m.start(ctx, c, st)
	if err != nil {
		return err
	}

	rs.id = id
	rs.state = st
	rs.pending = nil
	return nil
}

// TakeFlashes returns stored then queued flashes and clears both.
func (m *Manager) TakeFlashes(c *gin.Context) []Flash {
	rs := m.from(c)

	out := make([]Flash, 0, len(rs.state.Flashes)+len(rs.pending))
	out = append(out, rs.state.Flashes...)
	out = append(out, rs.pending...)
	rs.pending = nil

	if len(rs.state.Flashes) > 0 && rs.id != "" {
		rs.state.Flashes = nil

		ctx, cancel := m.ctx(c)
		defer cancel()

		if err := m.store.Save(ctx, rs.id, rs.state); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.WarnContext(ctx, "session flash clear failed", "err", err)
		}
	}

	return out
}

func (m *Manager) start(ctx context.Context, c *gin.Context, st State) (string, error) {
	id := uuid.NewString()
	expiresAt := time.Now().Add(m.ttl)

	token, err := m.signer.Sign(id, expiresAt)
	if err != nil {
		return "", err
	}

	if err := m.store.Create(ctx, id, st, m.ttl); err != nil {
		return "", err
	}

	m.transport.Write(c, token, m.ttl)
	return id, nil
}

func (m *Manager) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), storeTimeout)
}
