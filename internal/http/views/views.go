// Package views holds the embedded HTML pages.
package views

import (
	"embed"
	"html/template"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/session"
)

//go:embed templates/*.html
var files embed.FS

// Page is the data every template receives.
type Page struct {
	Title   string
	Viewer  *session.State
	Flashes []session.Flash

	User      *user.User  // profile record
	Users     []user.User // admin listing
	Message   string      // error page text
	RequestID string
}

func (p Page) IsAdmin() bool {
	return p.Viewer != nil && p.Viewer.Role == user.RoleAdmin
}

var funcs = template.FuncMap{
	"alertClass": func(category string) string {
		switch category {
		case "success", "danger", "info", "warning":
			return "alert alert-" + category
		default:
			return "alert alert-info"
		}
	},
	"lower": strings.ToLower,
}

// Templates parses every page. Names match the file names.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.html")
}
