package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func up() error { return nil }
func down() error { return errors.New("down") }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks []func() error
		path   string
		status int
	}{
		{"liveness ignores store", []func() error{down}, "/healthz", http.StatusOK},
		{"ready", []func() error{up}, "/readyz", http.StatusOK},
		{"not ready", []func() error{down}, "/readyz", http.StatusServiceUnavailable},
		{"no ping wired", []func() error{nil}, "/readyz", http.StatusOK},
		{"user store up, upload store down", []func() error{up, down}, "/readyz", http.StatusServiceUnavailable},
		{"both up", []func() error{up, up}, "/readyz", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.checks...)

			r := gin.New()
			r.GET("/healthz", h.Healthz)
			r.GET("/readyz", h.Readyz)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.status {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
			}
		})
	}
}
