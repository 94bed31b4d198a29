package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgInfoUpdated      = "Profile information updated successfully!"
	msgPasswordChanged  = "Password changed successfully!"
	msgWrongPassword    = "Current password is incorrect."
	msgPasswordMismatch = "New passwords do not match."
	msgPasswordRequired = "New password is required."
	msgPictureUpdated   = "Profile picture updated successfully!"
	msgNoFile           = "No file selected."
	msgFileTooLarge     = "File is too large."
	msgUnsupportedType  = "Unsupported file type."
	msgUnknownAction    = "Unknown action."
	msgAccountGone      = "Your account no longer exists."
	msgInvalidForm      = "The form could not be read."

	profileStoreDeadline = 3 * time.Second
	uploadDeadline       = 10 * time.Second
)

// picture types accepted for profile uploads, by sniffed content
var allowedPictureTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

type ProfileHandler struct {
	pages
	users     UserStore
	hasher    PasswordHasher
	uploads   Uploads
	maxUpload int64
	prom      *observability.Prom
	log       *slog.Logger
}

func NewProfileHandler(users UserStore, hasher PasswordHasher, sessions Sessions, uploads Uploads, maxUpload int64, prom *observability.Prom, log *slog.Logger) *ProfileHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	return &ProfileHandler{
		pages:     pages{sessions: sessions},
		users:     users,
		hasher:    hasher,
		uploads:   uploads,
		maxUpload: maxUpload,
		prom:      prom,
		log:       log,
	}
}

func (h *ProfileHandler) Show(ctx *gin.Context) {
	h.renderProfile(ctx)
}

func (h *ProfileHandler) Update(ctx *gin.Context) {
	uid, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		forbidden(ctx)
		return
	}

	if err := h.parseForm(ctx); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.prom.CountUpload("too_large")
			h.flash(ctx, flashDanger, msgFileTooLarge)
		} else {
			h.flash(ctx, flashDanger, msgInvalidForm)
		}
		h.renderProfile(ctx)
		return
	}

	var err error

	switch ctx.PostForm("action") {
	case "update_info":
		err = h.updateInfo(ctx, uid)
	case "change_password":
		err = h.changePassword(ctx, uid)
	case "update_picture":
		err = h.updatePicture(ctx, uid)
	default:
		h.flash(ctx, flashDanger, msgUnknownAction)
	}

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.accountGone(ctx)
			return
		}
		h.RespondInternal(ctx, err)
		return
	}

	h.renderProfile(ctx)
}

// parseForm reads the body once so a too-large upload is reported as such
// instead of surfacing as a missing action field.
func (h *ProfileHandler) parseForm(ctx *gin.Context) error {
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		return ctx.Request.ParseMultipartForm(h.maxUpload)
	}
	return ctx.Request.ParseForm()
}

func (h *ProfileHandler) updateInfo(ctx *gin.Context, uid int64) error {
	var req user.UpdateInfoRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, fields[0].Message)
		return nil
	}

	cctx, cancel := storeCtx(ctx, profileStoreDeadline)
	defer cancel()

	err := h.users.UpdateUsername(cctx, uid, req.Username)

	if errors.Is(err, user.ErrUsernameTaken) {
		h.flash(ctx, flashDanger, msgUsernameTaken)
		return nil
	}
	if err != nil {
		return err
	}

	// refresh session info
	if err := h.sessions.SetUsername(ctx, req.Username); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "session username refresh failed", "err", err)
	}

	h.flash(ctx, flashSuccess, msgInfoUpdated)
	return nil
}

func (h *ProfileHandler) changePassword(ctx *gin.Context, uid int64) error {
	var req user.ChangePasswordRequest

	if fields := BindForm(ctx, &req); fields != nil {
		h.flash(ctx, flashDanger, fields[0].Message)
		return nil
	}

	cctx, cancel := storeCtx(ctx, profileStoreDeadline)
	defer cancel()

	current, err := h.users.GetByID(cctx, uid)
	if err != nil {
		return err
	}

	switch {
	case !h.hasher.Verify(current.PasswordHash, req.CurrentPassword):
		h.flash(ctx, flashDanger, msgWrongPassword)
		return nil
	case req.NewPassword != req.ConfirmPassword:
		h.flash(ctx, flashDanger, msgPasswordMismatch)
		return nil
	case req.NewPassword == "":
		h.flash(ctx, flashDanger, msgPasswordRequired)
		return nil
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	if err := h.users.UpdatePasswordHash(cctx, uid, hash); err != nil {
		return err
	}

	h.log.InfoContext(ctx.Request.Context(), "password changed", "user_id", uid)
	h.flash(ctx, flashSuccess, msgPasswordChanged)
	return nil
}

func (h *ProfileHandler) updatePicture(ctx *gin.Context, uid int64) error {
	fh, err := ctx.FormFile("profile_picture")

	if err != nil || fh.Filename == "" {
		h.prom.CountUpload("empty")
		h.flash(ctx, flashDanger, msgNoFile)
		return nil
	}

	base, err := storage.CleanName(fh.Filename)
	if err != nil {
		h.prom.CountUpload("empty")
		h.flash(ctx, flashDanger, msgNoFile)
		return nil
	}

	if fh.Size > h.maxUpload {
		h.prom.CountUpload("too_large")
		h.flash(ctx, flashDanger, msgFileTooLarge)
		return nil
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	if int64(len(data)) > h.maxUpload {
		h.prom.CountUpload("too_large")
		h.flash(ctx, flashDanger, msgFileTooLarge)
		return nil
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedPictureTypes...) {
		h.prom.CountUpload("unsupported")
		h.flash(ctx, flashDanger, msgUnsupportedType)
		return nil
	}

	filename := fmt.Sprintf("%d_%s", uid, base)

	uctx, cancel := storeCtx(ctx, uploadDeadline)
	defer cancel()

	current, err := h.users.GetByID(uctx, uid)
	if err != nil {
		return err
	}

	if err := h.uploads.Save(uctx, filename, data, mt.String()); err != nil {
		h.prom.CountUpload("error")
		return fmt.Errorf("save upload: %w", err)
	}

	if err := h.users.UpdateProfilePic(uctx, uid, filename); err != nil {
		h.prom.CountUpload("error")
		return err
	}

	// a same-named upload already overwrote the old file
	if prev := current.PictureName(); prev != "" && prev != filename {
		if err := h.uploads.Remove(uctx, prev); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "remove replaced picture", "user_id", uid, "file", prev, "err", err)
		}
	}

	h.prom.CountUpload("ok")
	h.flash(ctx, flashSuccess, msgPictureUpdated)
	return nil
}

// renderProfile shows the caller's fresh record.
func (h *ProfileHandler) renderProfile(ctx *gin.Context) {
	uid, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		forbidden(ctx)
		return
	}

	cctx, cancel := storeCtx(ctx, profileStoreDeadline)
	defer cancel()

	u, err := h.users.GetByID(cctx, uid)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.accountGone(ctx)
			return
		}
		h.RespondInternal(ctx, err)
		return
	}

	h.render(ctx, http.StatusOK, "profile.html", views.Page{Title: "Profile", User: &u})
}

// accountGone ends a session whose user row was deleted by an admin.
func (h *ProfileHandler) accountGone(ctx *gin.Context) {
	if err := h.sessions.Logout(ctx); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "logout of deleted account failed", "err", err)
	}
	h.flash(ctx, flashDanger, msgAccountGone)
	h.redirect(ctx, "/login")
}

func forbidden(ctx *gin.Context) {
	ctx.Abort()
	ctx.String(http.StatusForbidden, "Forbidden")
}
