// Command notifier serves the application status email function over HTTP.
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

	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/middleware"
	"github.com/dancelink/platform/internal/notify"
)

func main() {
	cfg, err := config.LoadNotifier(os.Getenv("ENV_FILE"), ".env")
	if err != nil {
		logging.Default("notifier").WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New("notifier", cfg.LogLevel, cfg.LogFormat)
	m := metrics.New()

	handler := notify.NewHandler(notify.NewResend(cfg.ResendAPIKey, cfg.ResendFrom, cfg.ResendURL), logger, m)

	router := mux.NewRouter()
	router.Use(middleware.MetricsMiddleware("notifier", m))
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	// Same path as the hosted edge function so clients need no change.
	router.Handle("/functions/v1/send-application-notification", handler)
	router.Handle("/", handler)

	tracing := middleware.NewTracingMiddleware(logger)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      tracing.Handler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr()).Info("Notifier listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Shutdown error")
	}
}
