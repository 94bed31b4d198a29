package session

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testCookie = "sid"

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(store, Config{
		Secret:    "test-secret",
		TTL:       time.Hour,
		Transport: CookieTransport{Name: testCookie},
	}, log)
	return m, store
}

// newTestEngine exposes the manager operations as tiny routes.
func newTestEngine(m *Manager) *gin.Engine {
	r := gin.New()
	r.Use(m.Middleware())

	r.POST("/login", func(c *gin.Context) {
		_ = m.Login(c, user.User{ID: 42, Username: "alice", Role: user.RoleAdmin})
		m.AddFlash(c, "success", "Login successful!")
		_ = m.CommitFlashes(c)
		c.Status(http.StatusSeeOther)
	})
	r.GET("/whoami", func(c *gin.Context) {
		st, ok := m.Current(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "%d/%s/%s", st.UserID, st.Role, st.Username)
	})
	r.GET("/flashes", func(c *gin.Context) {
		var msgs []string
		for _, f := range m.TakeFlashes(c) {
			msgs = append(msgs, f.Category+":"+f.Message)
		}
		c.String(http.StatusOK, strings.Join(msgs, ","))
	})
	r.POST("/rename", func(c *gin.Context) {
		_ = m.SetUsername(c, c.Query("to"))
		c.Status(http.StatusNoContent)
	})
	r.POST("/logout", func(c *gin.Context) {
		_ = m.Logout(c)
		m.AddFlash(c, "info", "Logged out successfully")
		_ = m.CommitFlashes(c)
		c.Status(http.StatusSeeOther)
	})
	return r
}

func do(r http.Handler, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// lastCookie returns the final Set-Cookie for the session, as a browser would keep it.
func lastCookie(w *httptest.ResponseRecorder) *http.Cookie {
	var out *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			out = c
		}
	}
	return out
}

func TestManager_LoginCurrentLogout(t *testing.T) {
	m, store := newTestManager(t)
	r := newTestEngine(m)

	if body := do(r, http.MethodGet, "/whoami", nil).Body.String(); body != "anonymous" {
		t.Fatalf("expected anonymous before login, got %q", body)
	}

	w := do(r, http.MethodPost, "/login", nil)
	cookie := lastCookie(w)
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("login did not set a session cookie")
	}
	if !cookie.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	if body := do(r, http.MethodGet, "/whoami", cookie).Body.String(); body != "42/Admin/alice" {
		t.Fatalf("whoami after login = %q", body)
	}

	if body := do(r, http.MethodGet, "/flashes", cookie).Body.String(); body != "success:Login successful!" {
		t.Fatalf("flashes = %q", body)
	}
	if body := do(r, http.MethodGet, "/flashes", cookie).Body.String(); body != "" {
		t.Fatalf("flashes must be one-shot, got %q", body)
	}

	do(r, http.MethodPost, "/rename?to=alicia", cookie)
	if body := do(r, http.MethodGet, "/whoami", cookie).Body.String(); body != "42/Admin/alicia" {
		t.Fatalf("whoami after rename = %q", body)
	}

	w = do(r, http.MethodPost, "/logout", cookie)
	if body := do(r, http.MethodGet, "/whoami", cookie).Body.String(); body != "anonymous" {
		t.Fatalf("old token still authenticated after logout: %q", body)
	}

	// the post-logout flash rides on a new anonymous session
	anon := lastCookie(w)
	if anon == nil || anon.Value == "" || anon.Value == cookie.Value {
		t.Fatalf("expected a fresh anonymous cookie after logout, got %+v", anon)
	}
	if body := do(r, http.MethodGet, "/flashes", anon).Body.String(); body != "info:Logged out successfully" {
		t.Fatalf("post-logout flashes = %q", body)
	}
	if body := do(r, http.MethodGet, "/whoami", anon).Body.String(); body != "anonymous" {
		t.Fatalf("anonymous session must not authenticate, got %q", body)
	}

	if store.Len() != 1 {
		t.Fatalf("expected only the anonymous session to remain, got %d", store.Len())
	}
}

func TestManager_LoginRotatesSessionID(t *testing.T) {
	m, _ := newTestManager(t)
	r := newTestEngine(m)

	// an anonymous session exists before login (e.g. carrying a flash)
	w := do(r, http.MethodPost, "/logout", nil)
	before := lastCookie(w)
	if before == nil {
		t.Fatalf("expected anonymous cookie")
	}

	w = do(r, http.MethodPost, "/login", before)
	after := lastCookie(w)
	if after == nil || after.Value == before.Value {
		t.Fatalf("login must issue a new token")
	}

	if body := do(r, http.MethodGet, "/whoami", before).Body.String(); body != "anonymous" {
		t.Fatalf("pre-login token must not gain the identity, got %q", body)
	}

	// flash queued before login survives the rotation
	if body := do(r, http.MethodGet, "/flashes", after).Body.String(); body != "info:Logged out successfully,success:Login successful!" {
		t.Fatalf("flashes after rotation = %q", body)
	}
}

func TestManager_RejectsForgedToken(t *testing.T) {
	m, store := newTestManager(t)
	r := newTestEngine(m)

	// plant a session directly and present its raw id instead of a signed token
	_ = store.Create(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "planted", State{UserID: 1, Role: user.RoleAdmin}, time.Hour)

	body := do(r, http.MethodGet, "/whoami", &http.Cookie{Name: testCookie, Value: "planted"}).Body.String()
	if body != "anonymous" {
		t.Fatalf("unsigned id must be rejected, got %q", body)
	}
}

func TestHeaderTransport(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, Config{Secret: "s", Transport: HeaderTransport{Name: "X-Session-Token"}}, nil)
	r := newTestEngine(m)

	w := do(r, http.MethodPost, "/login", nil)
	token := w.Header().Get("X-Session-Token")
	if token == "" {
		t.Fatalf("expected token in response header")
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Session-Token", token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "42/Admin/alice" {
		t.Fatalf("header transport whoami = %q", w.Body.String())
	}
}
