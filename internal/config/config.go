// Package config loads DanceLink runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Object storage backends.
const (
	StorageSupabase = "supabase"
	StorageS3       = "s3"
	StorageMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	Port            int           `env:"PORT,default=8080"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`

	StoreBackend string `env:"STORE_BACKEND,default=supabase"`
	DatabaseURL  string `env:"DATABASE_URL"`

	StorageBackend  string `env:"STORAGE_BACKEND,default=supabase"`
	S3BucketPrefix  string `env:"S3_BUCKET_PREFIX"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION,default=us-east-1"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	S3AccessKeyID   string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string `env:"S3_SECRET_ACCESS_KEY"`

	RedisURL     string        `env:"REDIS_URL"`
	RoleCacheTTL time.Duration `env:"ROLE_CACHE_TTL,default=5m"`

	NotifyURL    string `env:"NOTIFY_URL"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendFrom   string `env:"RESEND_FROM,default=DanceLink <onboarding@resend.dev>"`

	CORSAllowedOrigins string  `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST,default=40"`

	MaintenanceSchedule string `env:"MAINTENANCE_SCHEDULE,default=@every 1h"`
	CatalogPath         string `env:"CATALOG_PATH"`
}

// Load reads the optional env files and decodes the environment.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		// A missing .env file is fine; the process environment still applies.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.SupabaseURL = strings.TrimSuffix(strings.TrimSpace(c.SupabaseURL), "/")
	if c.NotifyURL == "" && c.SupabaseURL != "" {
		c.NotifyURL = c.SupabaseURL + "/functions/v1/send-application-notification"
	}
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}

	switch c.StoreBackend {
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("config: SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.StorageBackend {
	case StorageSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("config: SUPABASE_URL is required for supabase storage")
		}
	case StorageS3:
		if c.S3PublicBaseURL == "" {
			return fmt.Errorf("config: S3_PUBLIC_BASE_URL is required for s3 storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.SupabaseJWTSecret == "" && c.StoreBackend != StoreMemory {
		return fmt.Errorf("config: SUPABASE_JWT_SECRET is required")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limit values must not be negative")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// NotifierConfig configures the standalone notification function.
type NotifierConfig struct {
	Port      int    `env:"PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendFrom   string `env:"RESEND_FROM,default=DanceLink <onboarding@resend.dev>"`
	ResendURL    string `env:"RESEND_API_URL,default=https://api.resend.com"`
}

// LoadNotifier reads the optional env files and decodes NotifierConfig.
func LoadNotifier(envFiles ...string) (*NotifierConfig, error) {
	for _, f := range envFiles {
		if f != "" {
			_ = godotenv.Load(f)
		}
	}

	var cfg NotifierConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("config: RESEND_API_KEY is required")
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *NotifierConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
