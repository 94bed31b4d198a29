package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/http/views"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/session"
	"github.com/geocoder89/userhub/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "userhub"

// multipart framing on top of the picture itself
const formOverhead = 1 << 20

type Deps struct {
	Store    handlers.UserStore
	Hasher   handlers.PasswordHasher
	Sessions *session.Manager
	Uploads  handlers.Uploads
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Ping     func() error
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) (*gin.Engine, error) {
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = slog.Default()
	}

	handlers.RegisterValidators()

	tmpl, err := views.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	// middleware

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "panic recovered", "panic", recovered, "route", c.FullPath())
		c.String(http.StatusInternalServerError, "Something went wrong.")
	}))
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(cfg.MaxUploadBytes + formOverhead))
	r.Use(deps.Sessions.Middleware())

	authMW := middlewares.NewAuthMiddleware(deps.Sessions)
	r.Use(authMW.LoadIdentity())

	// health
	h := handlers.NewHealthHandler(deps.Ping, uploadsReady(deps.Uploads))
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// wire up handlers
	pagesHandler := handlers.NewPagesHandler(deps.Sessions)
	authHandler := handlers.NewAuthHandler(deps.Store, deps.Hasher, deps.Sessions, deps.Prom, log)
	profileHandler := handlers.NewProfileHandler(deps.Store, deps.Hasher, deps.Sessions, deps.Uploads, cfg.MaxUploadBytes, deps.Prom, log)
	usersHandler := handlers.NewUsersHandler(deps.Store, deps.Hasher, deps.Sessions, deps.Uploads, deps.Prom, log)
	uploadsHandler := handlers.NewUploadsHandler(deps.Uploads)

	r.NoRoute(pagesHandler.NotFound)

	r.GET("/", pagesHandler.Home)

	// credential endpoints are throttled per client on submit only
	limiter := middlewares.NewRateLimiter(cfg.LoginRatePerMin, cfg.LoginRateBurst)
	throttle := limiter.RateLimiterMiddleware(middlewares.KeyByIP, http.MethodPost)

	r.GET("/register", authHandler.RegisterForm)
	r.POST("/register", throttle, authHandler.Register)
	r.GET("/login", authHandler.LoginForm)
	r.POST("/login", throttle, authHandler.Login)
	r.GET("/logout", authHandler.Logout)

	authed := r.Group("/", authMW.RequireAuth())
	authed.GET("/profile", profileHandler.Show)
	authed.POST("/profile", profileHandler.Update)

	admin := r.Group("/", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))
	admin.GET("/admin_profile", usersHandler.List)
	admin.GET("/users", usersHandler.List)
	admin.POST("/users", usersHandler.Manage)

	r.GET("/uploads/:name", uploadsHandler.Serve)

	return r, nil
}

// uploadsReady turns an upload backend that can ping into a readiness check.
func uploadsReady(u handlers.Uploads) func() error {
	p, ok := u.(storage.Pinger)
	if !ok {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}
