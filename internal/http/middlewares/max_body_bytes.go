package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps request bodies at max bytes. Reads past the cap fail with
// *http.MaxBytesError, which the profile handler reports as an oversize upload.
func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Body != nil && ctx.Request.Body != http.NoBody {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)
		}

		ctx.Next()
	}
}
