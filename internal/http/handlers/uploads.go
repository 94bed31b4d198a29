package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/userhub/internal/storage"
	"github.com/gin-gonic/gin"
)

type UploadsHandler struct {
	uploads Uploads
}

func NewUploadsHandler(uploads Uploads) *UploadsHandler {
	return &UploadsHandler{uploads: uploads}
}

// Serve streams a stored profile picture. Pictures are public, like files
// under a static folder.
func (h *UploadsHandler) Serve(ctx *gin.Context) {
	name := ctx.Param("name")

	if clean, err := storage.CleanName(name); err != nil || clean != name {
		ctx.String(http.StatusNotFound, "Not Found")
		return
	}

	cctx, cancel := storeCtx(ctx, uploadDeadline)
	defer cancel()

	rc, info, err := h.uploads.Open(cctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			ctx.String(http.StatusNotFound, "Not Found")
			return
		}
		_ = ctx.Error(err)
		ctx.String(http.StatusInternalServerError, "Something went wrong.")
		return
	}
	defer rc.Close()

	ctx.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, map[string]string{
		"Cache-Control": "public, max-age=300",
	})
}
