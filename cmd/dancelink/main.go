// Command dancelink runs the DanceLink marketplace API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/cache"
	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/middleware"
	"github.com/dancelink/platform/internal/objectstore"
	"github.com/dancelink/platform/services/accounts"
	"github.com/dancelink/platform/services/applications"
	commonservice "github.com/dancelink/platform/services/common/service"
	"github.com/dancelink/platform/services/events"
	"github.com/dancelink/platform/services/messaging"
	"github.com/dancelink/platform/services/profiles"
)

const (
	serviceID   = "dancelink"
	serviceName = "DanceLink API"
	version     = "1.0.0"
)

// publicPaths bypass token validation.
var publicPaths = []string{
	"/health",
	"/info",
	"/metrics",
	"/catalog",
	"/auth/sign-in",
	"/auth/sign-up",
	mediaPrefix + "/",
}

// mediaPrefix is where the memory object store serves uploads.
const mediaPrefix = "/media"

// mountMedia serves uploaded files when the object store keeps them itself.
func mountMedia(router *mux.Router, objects objectstore.Store) bool {
	h, ok := objects.(http.Handler)
	if !ok {
		return false
	}
	router.PathPrefix(mediaPrefix + "/").Handler(http.StripPrefix(mediaPrefix, h)).Methods(http.MethodGet, http.MethodHead)
	return true
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Getenv("ENV_FILE"), ".env")
	if err != nil {
		logging.Default(serviceID).WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(serviceID, cfg.LogLevel, cfg.LogFormat)

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load catalog")
	}

	m := metrics.New()
	b, err := buildBackends(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize backends")
	}
	defer b.Close()

	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      serviceID,
		Name:    serviceName,
		Version: version,
		Store:   b.health,
		Logger:  logger,
		Metrics: m,
	})
	router := base.Router()

	roles := cache.NewRoles(b.store, b.cache, cfg.RoleCacheTTL, m, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	auth := middleware.NewAuthMiddleware(cfg.SupabaseJWTSecret, roles, logger, publicPaths)

	router.Use(middleware.MetricsMiddleware(serviceID, m))
	router.Use(limiter.Handler)
	router.Use(auth.Handler)

	base.RegisterStandardRoutes()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	mountMedia(router, b.objects)

	lifecycle := applications.NewLifecycle(b.store, b.sender, logger, m)
	applications.New(applications.Config{Backend: b.store, Lifecycle: lifecycle, Logger: logger}).RegisterRoutes(router)
	events.New(events.Config{Backend: b.store, Catalog: catalog, Logger: logger}).RegisterRoutes(router)
	profiles.New(profiles.Config{
		Backend:  b.store,
		Uploader: objectstore.NewUploader(b.objects, m),
		Catalog:  catalog,
		Logger:   logger,
	}).RegisterRoutes(router)

	controller := messaging.NewController(b.store, b.feed, logger, m)
	messaging.New(messaging.Config{
		Controller:  controller,
		Logger:      logger,
		CheckOrigin: originChecker(cfg.AllowedOrigins()),
	}).RegisterRoutes(router)

	if b.supabase != nil {
		accounts.New(accounts.Config{
			Auth:    b.supabase.Auth(),
			Backend: b.store,
			Roles:   roles,
			Logger:  logger,
		}).RegisterRoutes(router)
	} else {
		logger.Warn("Supabase not configured; sign-in routes disabled")
	}

	if b.listener != nil {
		listener := b.listener
		base.AddWorker(func(ctx context.Context) {
			if err := listener.Run(ctx); err != nil {
				logger.WithError(err).Error("postgres change listener stopped")
			}
		})
	}
	if err := scheduleMaintenance(base, cfg.MaintenanceSchedule, limiter, b.cache); err != nil {
		logger.WithError(err).Fatal("Failed to schedule maintenance")
	}

	if err := base.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}

	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins())
	tracing := middleware.NewTracingMiddleware(logger)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      tracing.Handler(cors.Handler(router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr()).Info("DanceLink API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Shutdown error")
	}
	cancel()
	_ = base.Stop()
	logger.Info("Server stopped")
}

// scheduleMaintenance registers the periodic housekeeping jobs.
func scheduleMaintenance(base *commonservice.BaseService, spec string, limiter *middleware.RateLimiter, c cache.Cache) error {
	if err := base.AddCronJob("ratelimit-cleanup", spec, func(context.Context) error {
		limiter.Cleanup()
		return nil
	}); err != nil {
		return err
	}
	if mem, ok := c.(*cache.Memory); ok {
		if err := base.AddCronJob("role-cache-sweep", spec, func(context.Context) error {
			mem.Sweep()
			return nil
		}); err != nil {
			return err
		}
	}
	return base.AddCronJob("store-health", spec, base.CheckHealth)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
