package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Transport carries the signed token between server and client.
type Transport interface {
	Read(c *gin.Context) string
	Write(c *gin.Context, token string, ttl time.Duration)
	Clear(c *gin.Context)
}

const (
	DefaultCookieName = "session_id"
	DefaultHeaderName = "X-Session-Token"
)

// TransportFor builds the transport named by kind ("cookie" or "header").
// Empty names fall back to the defaults.
func TransportFor(kind, cookieName, headerName string, secure bool) (Transport, error) {
	switch kind {
	case "cookie", "":
		if cookieName == "" {
			cookieName = DefaultCookieName
		}
		return CookieTransport{Name: cookieName, Secure: secure}, nil
	case "header":
		if headerName == "" {
			headerName = DefaultHeaderName
		}
		return HeaderTransport{Name: headerName}, nil
	default:
		return nil, fmt.Errorf("unknown session transport %q", kind)
	}
}

type CookieTransport struct {
	Name   string
	Secure bool
}

func (t CookieTransport) Read(c *gin.Context) string {
	v, err := c.Cookie(t.Name)
	if err != nil {
		return ""
	}
	return v
}

func (t CookieTransport) Write(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(t.Name, token, int(ttl/time.Second), "/", "", t.Secure, true)
}

func (t CookieTransport) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(t.Name, "", -1, "/", "", t.Secure, true)
}

// HeaderTransport is for non-browser clients: the token comes back in a
// response header and is presented in the same request header.
type HeaderTransport struct {
	Name string
}

func (t HeaderTransport) Read(c *gin.Context) string {
	return c.GetHeader(t.Name)
}

func (t HeaderTransport) Write(c *gin.Context, token string, _ time.Duration) {
	c.Header(t.Name, token)
}

func (t HeaderTransport) Clear(c *gin.Context) {
	c.Header(t.Name, "")
}
