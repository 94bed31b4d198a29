package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/session"
	"github.com/geocoder89/userhub/internal/storage"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore behaves like the memory repo unless a hook overrides a call.

type fakeStore struct {
	*memory.UsersRepo

	getByUsernameFn func(ctx context.Context, username string) (user.User, error)
	listFn          func(ctx context.Context) ([]user.User, error)

	// beforeAdminWrite runs just before Delete/UpdateRole reach the store.
	beforeAdminWrite func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{UsersRepo: memory.NewUsersRepo()}
}

func (f *fakeStore) GetByUsername(ctx context.Context, username string) (user.User, error) {
	if f.getByUsernameFn != nil {
		return f.getByUsernameFn(ctx, username)
	}
	return f.UsersRepo.GetByUsername(ctx, username)
}

func (f *fakeStore) List(ctx context.Context) ([]user.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return f.UsersRepo.List(ctx)
}

func (f *fakeStore) Delete(ctx context.Context, id int64) error {
	if f.beforeAdminWrite != nil {
		f.beforeAdminWrite()
	}
	return f.UsersRepo.Delete(ctx, id)
}

func (f *fakeStore) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	if f.beforeAdminWrite != nil {
		f.beforeAdminWrite()
	}
	return f.UsersRepo.UpdateRole(ctx, id, role)
}

func (f *fakeStore) mustCreate(t *testing.T, username, password string, role user.Role) user.User {
	t.Helper()
	u, err := f.Create(context.Background(), username, "hashed:"+password, role)
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return u
}

// fakeHasher keeps digests readable in assertions.

type fakeHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *fakeHasher) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}

func (h *fakeHasher) Verify(hash, plain string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return hash == "hashed:"+plain
}

func (h *fakeHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// fakeSessions is a single client's session.

type fakeSessions struct {
	mu        sync.Mutex
	state     session.State
	pending   []session.Flash
	committed []session.Flash
	logins    int
	logouts   int
	loginErr  error
}

func (s *fakeSessions) Current(_ *gin.Context) (session.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.state.Authenticated()
}

func (s *fakeSessions) Login(_ *gin.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginErr != nil {
		return s.loginErr
	}
	s.logins++
	s.state = session.State{UserID: u.ID, Role: u.Role, Username: u.Username}
	return nil
}

func (s *fakeSessions) Logout(_ *gin.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.state = session.State{}
	return nil
}

func (s *fakeSessions) SetUsername(_ *gin.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Username = username
	return nil
}

func (s *fakeSessions) AddFlash(_ *gin.Context, category, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, session.Flash{Category: category, Message: message})
}

func (s *fakeSessions) CommitFlashes(_ *gin.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, s.pending...)
	s.pending = nil
	return nil
}

func (s *fakeSessions) TakeFlashes(_ *gin.Context) []session.Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append(s.committed, s.pending...)
	s.committed, s.pending = nil, nil
	return out
}

func (s *fakeSessions) committedMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.committed {
		out = append(out, f.Message)
	}
	return out
}

func (s *fakeSessions) loginAs(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = session.State{UserID: u.ID, Role: u.Role, Username: u.Username}
}

// fakeUploads keeps pictures in a map.

type fakeUploads struct {
	mu      sync.Mutex
	files   map[string][]byte
	types   map[string]string
	saveErr error
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{files: map[string][]byte{}, types: map[string]string{}}
}

func (u *fakeUploads) Save(_ context.Context, name string, data []byte, contentType string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.saveErr != nil {
		return u.saveErr
	}
	u.files[name] = append([]byte(nil), data...)
	u.types[name] = contentType
	return nil
}

func (u *fakeUploads) Open(_ context.Context, name string) (io.ReadCloser, storage.Info, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.files[name]
	if !ok {
		return nil, storage.Info{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.Info{Size: int64(len(data)), ContentType: u.types[name]}, nil
}

func (u *fakeUploads) Remove(_ context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, name)
	return nil
}

func (u *fakeUploads) has(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.files[name]
	return ok
}

// test app

type testApp struct {
	store    *fakeStore
	hasher   *fakeHasher
	sessions *fakeSessions
	uploads  *fakeUploads
	router   *gin.Engine
}

func newTestApp(t *testing.T, maxUpload int64) *testApp {
	t.Helper()

	app := &testApp{
		store:    newFakeStore(),
		hasher:   &fakeHasher{},
		sessions: &fakeSessions{},
		uploads:  newFakeUploads(),
	}

	tmpl, err := views.Templates()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	authH := handlers.NewAuthHandler(app.store, app.hasher, app.sessions, nil, nil)
	profileH := handlers.NewProfileHandler(app.store, app.hasher, app.sessions, app.uploads, maxUpload, nil, nil)
	usersH := handlers.NewUsersHandler(app.store, app.hasher, app.sessions, app.uploads, nil, nil)
	uploadsH := handlers.NewUploadsHandler(app.uploads)

	mw := middlewares.NewAuthMiddleware(app.sessions)

	r.GET("/register", authH.RegisterForm)
	r.POST("/register", authH.Register)
	r.GET("/login", authH.LoginForm)
	r.POST("/login", authH.Login)
	r.GET("/logout", authH.Logout)

	r.GET("/profile", mw.RequireAuth(), profileH.Show)
	r.POST("/profile", mw.RequireAuth(), profileH.Update)

	admin := r.Group("/", mw.RequireAuth(), mw.RequireRole(user.RoleAdmin))
	admin.GET("/admin_profile", usersH.List)
	admin.GET("/users", usersH.List)
	admin.POST("/users", usersH.Manage)

	r.GET("/uploads/:name", uploadsH.Serve)

	app.router = r
	return app
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postFile(t *testing.T, path string, fields map[string]string, fileField, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

var errBoom = errors.New("pq: connection reset by peer")

func assertContains(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(w.Body.String(), want) {
		t.Fatalf("body does not contain %q (status %d):\n%s", want, w.Code, w.Body.String())
	}
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}
