package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	msgUserDeleted     = "User deleted successfully"
	msgUserNotFound    = "User not found."
	msgNoSelfDelete    = "You cannot delete your own account."
	msgLastAdminDelete = "Cannot delete the last admin account."
	msgLastAdminDemote = "Cannot demote the last admin account."
	msgNoSelfRole      = "You cannot change your own role."
	msgRoleUpdated     = "Role updated successfully"

	adminStoreDeadline = 3 * time.Second
)

// UsersHandler serves the admin user-management view.
type UsersHandler struct {
	pages
	users   UserStore
	hasher  PasswordHasher
	uploads Uploads
	prom    *observability.Prom
	log     *slog.Logger
}

func NewUsersHandler(users UserStore, hasher PasswordHasher, sessions Sessions, uploads Uploads, prom *observability.Prom, log *slog.Logger) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{
		pages:   pages{sessions: sessions},
		users:   users,
		hasher:  hasher,
		uploads: uploads,
		prom:    prom,
		log:     log,
	}
}

// List backs both /admin_profile and GET /users.
func (h *UsersHandler) List(ctx *gin.Context) {
	if _, ok := h.actingAdmin(ctx); !ok {
		return
	}
	h.renderList(ctx)
}

func (h *UsersHandler) Manage(ctx *gin.Context) {
	admin, ok := h.actingAdmin(ctx)
	if !ok {
		return
	}

	var err error

	switch {
	case hasAll(ctx, "new_username", "new_password", "new_role"):
		err = h.create(ctx)
	case hasAll(ctx, "delete_user"):
		err = h.delete(ctx, admin)
	case hasAll(ctx, "update_role"):
		err = h.updateRole(ctx, admin)
	default:
		h.flash(ctx, flashDanger, msgUnknownAction)
	}

	if err != nil {
		h.RespondInternal(ctx, err)
		return
	}

	h.renderList(ctx)
}

func (h *UsersHandler) create(ctx *gin.Context) error {
	var req user.AdminCreateRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, fields[0].Message)
		return nil
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.prom.CountRegistration("admin", "error")
		return err
	}

	cctx, cancel := storeCtx(ctx, adminStoreDeadline)
	defer cancel()

	created, err := h.users.Create(cctx, req.Username, hash, req.Role)

	if errors.Is(err, user.ErrUsernameTaken) {
		h.prom.CountRegistration("admin", "conflict")
		h.flash(ctx, flashDanger, msgUsernameTaken)
		return nil
	}
	if err != nil {
		h.prom.CountRegistration("admin", "error")
		return err
	}

	h.prom.CountRegistration("admin", "created")
	h.log.InfoContext(ctx.Request.Context(), "admin created user", "target_id", created.ID, "role", created.Role)
	h.flash(ctx, flashSuccess, msgRegistered)
	return nil
}

func (h *UsersHandler) delete(ctx *gin.Context, admin user.User) error {
	var req user.AdminTargetRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, msgUserNotFound)
		return nil
	}

	if req.UserID == admin.ID {
		h.flash(ctx, flashDanger, msgNoSelfDelete)
		return nil
	}

	cctx, cancel := storeCtx(ctx, adminStoreDeadline)
	defer cancel()

	target, err := h.users.GetByID(cctx, req.UserID)
	if errors.Is(err, user.ErrNotFound) {
		h.flash(ctx, flashDanger, msgUserNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	// the store refuses to remove the last Admin atomically with the delete
	err = h.users.Delete(cctx, target.ID)
	if errors.Is(err, user.ErrLastAdmin) {
		h.flash(ctx, flashDanger, msgLastAdminDelete)
		return nil
	}
	if errors.Is(err, user.ErrNotFound) {
		h.flash(ctx, flashDanger, msgUserNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	if pic := target.PictureName(); pic != "" && h.uploads != nil {
		if err := h.uploads.Remove(cctx, pic); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "remove picture of deleted user", "target_id", target.ID, "err", err)
		}
	}

	h.log.InfoContext(ctx.Request.Context(), "admin deleted user", "target_id", target.ID)
	h.flash(ctx, flashSuccess, msgUserDeleted)
	return nil
}

func (h *UsersHandler) updateRole(ctx *gin.Context, admin user.User) error {
	var req user.AdminRoleRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, fields[0].Message)
		return nil
	}

	if req.UserID == admin.ID {
		h.flash(ctx, flashDanger, msgNoSelfRole)
		return nil
	}

	cctx, cancel := storeCtx(ctx, adminStoreDeadline)
	defer cancel()

	target, err := h.users.GetByID(cctx, req.UserID)
	if errors.Is(err, user.ErrNotFound) {
		h.flash(ctx, flashDanger, msgUserNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	err = h.users.UpdateRole(cctx, target.ID, req.Role)
	if errors.Is(err, user.ErrLastAdmin) {
		h.flash(ctx, flashDanger, msgLastAdminDemote)
		return nil
	}
	if errors.Is(err, user.ErrNotFound) {
		h.flash(ctx, flashDanger, msgUserNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx.Request.Context(), "admin changed role", "target_id", target.ID, "role", req.Role)
	h.flash(ctx, flashSuccess, msgRoleUpdated)
	return nil
}

// actingAdmin re-reads the caller so a demoted or deleted admin loses access
// immediately rather than when the session expires.
func (h *UsersHandler) actingAdmin(ctx *gin.Context) (user.User, bool) {
	uid, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		forbidden(ctx)
		return user.User{}, false
	}

	cctx, cancel := storeCtx(ctx, adminStoreDeadline)
	defer cancel()

	u, err := h.users.GetByID(cctx, uid)
	if errors.Is(err, user.ErrNotFound) || (err == nil && !u.IsAdmin()) {
		forbidden(ctx)
		return user.User{}, false
	}
	if err != nil {
		h.RespondInternal(ctx, err)
		return user.User{}, false
	}
	return u, true
}

func (h *UsersHandler) renderList(ctx *gin.Context) {
	cctx, cancel := storeCtx(ctx, adminStoreDeadline)
	defer cancel()

	all, err := h.users.List(cctx)
	if err != nil {
		h.RespondInternal(ctx, err)
		return
	}

	h.render(ctx, http.StatusOK, "users.html", views.Page{Title: "Users", Users: all})
}

func hasAll(ctx *gin.Context, keys ...string) bool {
	for _, k := range keys {
		if _, ok := ctx.GetPostForm(k); !ok {
			return false
		}
	}
	return true
}
