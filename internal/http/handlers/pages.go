package handlers

import (
	"net/http"

	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/gin-gonic/gin"
)

type PagesHandler struct {
	pages
}

func NewPagesHandler(sessions Sessions) *PagesHandler {
	return &PagesHandler{pages: pages{sessions: sessions}}
}

func (h *PagesHandler) Home(ctx *gin.Context) {
	h.render(ctx, http.StatusOK, "home.html", views.Page{})
}

// NotFound renders the 404 page for unmatched routes.
func (h *PagesHandler) NotFound(ctx *gin.Context) {
	h.render(ctx, http.StatusNotFound, "error.html", views.Page{
		Title:   "Not Found",
		Message: "The page you requested does not exist.",
	})
}
