package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/gin-gonic/gin"
)

const (
	flashSuccess = "success"
	flashDanger  = "danger"
	flashInfo    = "info"
)

// pages renders templates with the viewer and pending flashes filled in.
type pages struct {
	sessions Sessions
}

func (p pages) render(ctx *gin.Context, status int, name string, page views.Page) {
	if st, ok := p.sessions.Current(ctx); ok {
		page.Viewer = &st
	}
	page.Flashes = p.sessions.TakeFlashes(ctx)

	ctx.HTML(status, name, page)
}

// redirect persists queued flashes before sending the client elsewhere.
func (p pages) redirect(ctx *gin.Context, location string) {
	if err := p.sessions.CommitFlashes(ctx); err != nil {
		_ = ctx.Error(err)
	}
	ctx.Redirect(http.StatusSeeOther, location)
}

func (p pages) flash(ctx *gin.Context, category, message string) {
	p.sessions.AddFlash(ctx, category, message)
}

// RespondInternal records err for the request log and shows a generic page.
func (p pages) RespondInternal(ctx *gin.Context, err error) {
	if err != nil {
		_ = ctx.Error(err)
	}
	p.render(ctx, http.StatusInternalServerError, "error.html", views.Page{
		Title:     "Error",
		Message:   "Something went wrong.",
		RequestID: requestIDFrom(ctx),
	})
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// storeCtx bounds a store call by the request context.
func storeCtx(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}
