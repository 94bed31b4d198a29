package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	msgUsernameTaken  = "Username already exists"
	msgRegistered     = "User registered successfully!"
	msgInvalidCreds   = "Invalid credentials"
	msgLoginSuccess   = "Login successful!"
	msgLoggedOut      = "Logged out successfully"
	landingAdmin      = "/admin_profile"
	landingUser       = "/profile"
	authStoreDeadline = 3 * time.Second
)

type AuthHandler struct {
	pages
	users  UserStore
	hasher PasswordHasher
	prom   *observability.Prom
	log    *slog.Logger

	// verified against when the username is unknown so both failure paths cost the same
	dummyHash string
}

func NewAuthHandler(users UserStore, hasher PasswordHasher, sessions Sessions, prom *observability.Prom, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	dummy, err := hasher.Hash("userhub-dummy-password")
	if err != nil {
		log.Warn("dummy hash unavailable", "err", err)
	}

	return &AuthHandler{
		pages:     pages{sessions: sessions},
		users:     users,
		hasher:    hasher,
		prom:      prom,
		log:       log,
		dummyHash: dummy,
	}
}

func (h *AuthHandler) RegisterForm(ctx *gin.Context) {
	h.render(ctx, http.StatusOK, "register.html", views.Page{Title: "Register"})
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.CredentialsRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, fields[0].Message)
		h.render(ctx, http.StatusBadRequest, "register.html", views.Page{Title: "Register"})
		return
	}

	hash, err := h.hasher.Hash(req.Password)

	if err != nil {
		h.prom.CountRegistration("self", "error")
		h.RespondInternal(ctx, err)
		return
	}

	cctx, cancel := storeCtx(ctx, authStoreDeadline)
	defer cancel()

	// default role for new users
	_, err = h.users.Create(cctx, req.Username, hash, user.RoleUser)

	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			h.prom.CountRegistration("self", "conflict")
			h.flash(ctx, flashDanger, msgUsernameTaken)
			h.render(ctx, http.StatusOK, "register.html", views.Page{Title: "Register"})
			return
		}

		h.prom.CountRegistration("self", "error")
		h.RespondInternal(ctx, err)
		return
	}

	h.prom.CountRegistration("self", "created")
	h.flash(ctx, flashSuccess, msgRegistered)
	h.redirect(ctx, "/login")
}

func (h *AuthHandler) LoginForm(ctx *gin.Context) {
	h.render(ctx, http.StatusOK, "login.html", views.Page{Title: "Login"})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.CredentialsRequest

	// malformed input is reported exactly like a bad password
	if fields := BindForm(ctx, &req); fields != nil {
		h.loginFailed(ctx)
		return
	}

	cctx, cancel := storeCtx(ctx, authStoreDeadline)
	defer cancel()

	found, err := h.users.GetByUsername(cctx, req.Username)

	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.prom.CountLogin("error")
			h.RespondInternal(ctx, err)
			return
		}

		_ = h.hasher.Verify(h.dummyHash, req.Password)
		h.loginFailed(ctx)
		return
	}

	if !h.hasher.Verify(found.PasswordHash, req.Password) {
		h.loginFailed(ctx)
		return
	}

	if err := h.sessions.Login(ctx, found); err != nil {
		h.prom.CountLogin("error")
		h.RespondInternal(ctx, err)
		return
	}

	h.prom.CountLogin("success")
	h.log.InfoContext(ctx.Request.Context(), "user logged in", "user_id", found.ID, "role", found.Role)

	h.flash(ctx, flashSuccess, msgLoginSuccess)

	if found.IsAdmin() {
		h.redirect(ctx, landingAdmin)
		return
	}
	h.redirect(ctx, landingUser)
}

func (h *AuthHandler) loginFailed(ctx *gin.Context) {
	h.prom.CountLogin("invalid")
	h.flash(ctx, flashDanger, msgInvalidCreds)
	h.render(ctx, http.StatusOK, "login.html", views.Page{Title: "Login"})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	if err := h.sessions.Logout(ctx); err != nil {
		// the token is cleared regardless; a stale server entry just expires
		h.log.WarnContext(ctx.Request.Context(), "logout: session delete failed", "err", err)
	}

	h.flash(ctx, flashInfo, msgLoggedOut)
	h.redirect(ctx, "/")
}
