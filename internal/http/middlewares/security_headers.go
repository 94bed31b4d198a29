package middlewares

import (
	"github.com/gin-gonic/gin"
)

// pages are self-contained: own stylesheet block, images from /uploads or data URIs
const defaultCSP = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; base-uri 'none'; frame-ancestors 'none'; object-src 'none'; form-action 'self'"

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("X-XSS-Protection", "0")
		c.Header("Content-Security-Policy", defaultCSP)
		c.Next()
	}
}
