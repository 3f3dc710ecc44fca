package main

import (
	"context"
	"fmt"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/app/storage/memory"
	"github.com/dancelink/platform/internal/app/storage/postgres"
	supabasestore "github.com/dancelink/platform/internal/app/storage/supabase"
	"github.com/dancelink/platform/internal/cache"
	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/notify"
	"github.com/dancelink/platform/internal/objectstore"
	"github.com/dancelink/platform/internal/platform/migrations"
	"github.com/dancelink/platform/internal/realtime"
	"github.com/dancelink/platform/supabase/client"
)

// backends holds the wired infrastructure the services share.
type backends struct {
	supabase *client.Client
	store    storage.Backend
	health   storage.Store
	feed     realtime.Feed
	objects  objectstore.Store
	cache    cache.Cache
	sender   notify.Sender

	listener *realtime.PostgresListener
	closers  []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func newSupabaseClient(cfg *config.Config) (*client.Client, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		return nil, nil
	}
	return client.New(client.Config{
		URL:     cfg.SupabaseURL,
		APIKey:  cfg.SupabaseAnonKey,
		Breaker: client.NewCircuitBreaker(client.DefaultCircuitBreakerConfig()),
	})
}

func buildBackends(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*backends, error) {
	b := &backends{}

	sb, err := newSupabaseClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	b.supabase = sb

	switch cfg.StoreBackend {
	case config.StoreSupabase:
		b.store = supabasestore.NewBackend(sb)
		b.health = supabasestore.New(sb)
		b.feed = realtime.NewSupabaseFeed(cfg.SupabaseURL, cfg.SupabaseAnonKey, logger, m)

	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		if err := migrations.Apply(ctx, pg.DB().DB); err != nil {
			b.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		hub := realtime.NewHub(m)
		b.store = storage.Static{Store: pg}
		b.health = pg
		b.feed = hub
		b.listener = realtime.NewPostgresListener(cfg.DatabaseURL, hub, logger)

	case config.StoreMemory:
		hub := realtime.NewHub(m)
		mem := memory.New().WithPublisher(hub)
		b.store = storage.Static{Store: mem}
		b.health = mem
		b.feed = hub
		logger.Warn("using in-memory store; data is lost on restart")
	}

	switch cfg.StorageBackend {
	case config.StorageSupabase:
		if sb == nil {
			b.Close()
			return nil, fmt.Errorf("supabase storage needs SUPABASE_URL and SUPABASE_ANON_KEY")
		}
		b.objects = objectstore.NewSupabaseStore(sb)
	case config.StorageS3:
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			BucketPrefix:    cfg.S3BucketPrefix,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.objects = s3Store
	case config.StorageMemory:
		b.objects = objectstore.NewMemoryStore(fmt.Sprintf("http://localhost:%d%s", cfg.Port, mediaPrefix))
	}

	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, "dancelink:")
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.closers = append(b.closers, redisCache.Close)
		b.cache = redisCache
	} else {
		b.cache = cache.NewMemory()
	}

	if cfg.NotifyURL != "" {
		b.sender = notify.NewFunctionClient(cfg.NotifyURL, cfg.SupabaseAnonKey, m)
	} else {
		logger.Warn("NOTIFY_URL not set; status emails are logged only")
		b.sender = notify.LogSender{Logger: logger}
	}
	return b, nil
}
