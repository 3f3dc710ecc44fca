// Package service provides the shared service skeleton: router, standard
// routes, health tracking, background workers and scheduled jobs.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is a dependency whose reachability decides health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	// Store is probed by the health check. Nil means always healthy.
	Store   Pinger
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	// Router defaults to a fresh mux.Router.
	Router *mux.Router
}

// BaseService holds what every DanceLink service shares:
//   - a router with /health and /info
//   - background workers started with the service
//   - cron jobs for periodic maintenance
//   - stop handling that is safe to call twice
type BaseService struct {
	id      string
	name    string
	version string
	router  *mux.Router
	store   Pinger
	logger  *logging.Logger
	metrics *metrics.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once

	statsFn func() map[string]any
	workers []func(context.Context)
	cron    *cron.Cron
	jobs    int

	healthMu        sync.RWMutex
	storeHealthy    bool
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	router := cfg.Router
	if router == nil {
		router = mux.NewRouter()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard(cfg.ID)
	}
	return &BaseService{
		id:           cfg.ID,
		name:         cfg.Name,
		version:      cfg.Version,
		router:       router,
		store:        cfg.Store,
		logger:       logger,
		metrics:      cfg.Metrics,
		stopCh:       make(chan struct{}),
		cron:         cron.New(),
		storeHealthy: true,
	}
}

func (b *BaseService) ID() string              { return b.id }
func (b *BaseService) Name() string            { return b.name }
func (b *BaseService) Version() string         { return b.version }
func (b *BaseService) Router() *mux.Router     { return b.router }
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// WithStats sets a statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started by Start. Workers must
// return when ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers fn to run every interval until Stop.
func (b *BaseService) AddTickerWorker(name string, interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.runJob(ctx, name, fn)
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// AddCronJob schedules fn with a cron spec ("@every 1h", "0 3 * * *").
// Jobs run with a timeout-free background context and stop with the service.
func (b *BaseService) AddCronJob(name, spec string, fn func(context.Context) error) error {
	_, err := b.cron.AddFunc(spec, func() {
		b.runJob(context.Background(), name, fn)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	b.jobs++
	return nil
}

func (b *BaseService) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	err := fn(ctx)
	if b.metrics != nil {
		b.metrics.RecordJobRun(name, err == nil)
	}
	if err != nil {
		b.logger.WithError(err).WithField("job", name).Warn("background job failed")
	}
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start probes health once, launches the workers and starts the scheduler.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	b.CheckHealth(ctx)

	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	b.cron.Start()

	b.logger.WithFields(map[string]interface{}{
		"workers": len(b.workers),
		"jobs":    b.jobs,
	}).Info("service started")
	return nil
}

// Stop signals workers and waits for running cron jobs. It is idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.cron.Stop().Done()
	})
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// JobCount returns the number of scheduled cron jobs.
func (b *BaseService) JobCount() int {
	return b.jobs
}

// CheckHealth refreshes the cached health state by pinging the store.
func (b *BaseService) CheckHealth(ctx context.Context) error {
	var err error
	if b.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err = b.store.Ping(pingCtx)
		cancel()
	}

	b.healthMu.Lock()
	b.storeHealthy = err == nil
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()

	if err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

// HealthStatus returns "healthy" or "unhealthy" from the last check.
func (b *BaseService) HealthStatus() string {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if !b.storeHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails describes the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{
		"store_connected": b.storeHealthy,
		"last_check":      "",
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()
	return details
}
