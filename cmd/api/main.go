package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	"github.com/geocoder89/userhub/internal/domain/user"
	httpx "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/session"
	"github.com/geocoder89/userhub/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	shutdownTracer, err := observability.InitTracer(startCtx, observability.TracerConfig{
		ServiceName: "userhub",
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	// user store (postgres, sqlite or memory)
	store, closeStore, err := db.OpenStore(startCtx, cfg, prom)
	if err != nil {
		log.Error("user store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	hasher := security.NewHasher(security.DefaultParams)

	created, err := db.EnsureAdminUser(startCtx, store, hasher, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("seeded admin account", "username", cfg.AdminUsername)
	}

	if admins, err := store.CountByRole(startCtx, user.RoleAdmin); err != nil {
		log.Warn("admin count failed", "err", err)
	} else if admins == 0 {
		log.Warn("no admin account exists; set ADMIN_USERNAME and ADMIN_PASSWORD to seed one")
	}

	sessions, closeSessions, err := buildSessions(startCtx, cfg, log)
	if err != nil {
		log.Error("session store init failed", "backend", cfg.SessionBackend, "err", err)
		os.Exit(1)
	}
	defer closeSessions()

	uploads, err := buildUploads(startCtx, cfg)
	if err != nil {
		log.Error("upload store init failed", "backend", cfg.UploadBackend, "err", err)
		os.Exit(1)
	}

	// set up routers with the log
	router, err := httpx.NewRouter(log, cfg, httpx.Deps{
		Store:    store,
		Hasher:   hasher,
		Sessions: sessions,
		Uploads:  uploads,
		Prom:     prom,
		Gatherer: reg,
		Ping: func() error {
			ctx, cancel := config.WithTimeout(time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
	})
	if err != nil {
		log.Error("router init failed", "err", err)
		os.Exit(1)
	}

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver, "sessions", cfg.SessionBackend, "uploads", cfg.UploadBackend)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Warn("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func buildSessions(ctx context.Context, cfg config.Config, log *slog.Logger) (*session.Manager, func(), error) {
	var (
		store session.Store
		done  = func() {}
	)

	switch cfg.SessionBackend {
	case "redis":
		rdb, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store = session.NewRedisStore(rdb)
		done = func() { _ = rdb.Close() }
	case "memory", "":
		store = session.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}

	transport, err := session.TransportFor(cfg.SessionTransport, cfg.SessionCookie, cfg.SessionHeader, cfg.IsProd())
	if err != nil {
		done()
		return nil, nil, err
	}

	m := session.NewManager(store, session.Config{
		Secret:    cfg.SessionSecret,
		TTL:       cfg.SessionTTL,
		Transport: transport,
	}, log)

	return m, done, nil
}

func buildUploads(ctx context.Context, cfg config.Config) (handlers.Uploads, error) {
	switch cfg.UploadBackend {
	case "minio":
		s, err := storage.NewMinioStore(ctx, storage.MinioConfig(cfg.Minio))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local", "":
		s, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}
