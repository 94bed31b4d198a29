package middlewares

import (
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		// Get the request header
		id := ctx.GetHeader(requestIDHeader)

		// reject absurd client ids instead of logging them
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(requestIDHeader, id)

		ctx.Set(CtxRequestID, id)
		ctx.Request = ctx.Request.WithContext(observability.WithRequestID(ctx.Request.Context(), id))

		ctx.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path // fallback (e.g. 404)
		}

		method := ctx.Request.Method

		ctx.Next()

		lat := time.Since(start)
		status := ctx.Writer.Status()

		reqID, _ := ctx.Get(CtxRequestID)

		logAttrs := []any{
			"method", method,
			"route", route,
			"status", status,
			"latency_ms", lat.Milliseconds(),
			"request_id", reqID,
		}

		if userID, ok := UserIDFromContext(ctx); ok {
			logAttrs = append(logAttrs, "user_id", userID)
		}

		if len(ctx.Errors) > 0 {
			logAttrs = append(logAttrs, "errors", ctx.Errors.String())
		}

		log.InfoContext(ctx.Request.Context(), "http_request", logAttrs...)
	}
}
