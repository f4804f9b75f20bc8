package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// debug, release or test
		GinMode string `env:"GIN_MODE" envDefault:"release"`

		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

		// Origins allowed to call the JSON API from the static site
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Data struct {
		// Origin serving /data/{section}/{category}/index.json. When empty the
		// tree is read from Dir instead.
		BaseURL string `env:"DATA_BASE_URL"`

		Dir string `env:"DATA_DIR" envDefault:"."`

		// Prefix for links to detail pages
		SiteURL string `env:"SITE_URL" envDefault:""`
	}

	Fetch struct {
		Timeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`

		// Maximum record files fetched at the same time for one category
		MaxConcurrency int `env:"FETCH_MAX_CONCURRENCY" envDefault:"8"`

		// Extra attempts for a failing index file
		IndexRetries int `env:"FETCH_INDEX_RETRIES" envDefault:"2"`

		RetryDelay time.Duration `env:"FETCH_RETRY_DELAY" envDefault:"1s"`
	}

	Cache struct {
		// How long a loaded category is served without refetching
		Freshness time.Duration `env:"CACHE_FRESHNESS" envDefault:"5m"`
	}

	Contact struct {
		WhatsApp string `env:"CONTACT_WHATSAPP" envDefault:"201147758857"`
		LogoURL  string `env:"CONTACT_LOGO_URL" envDefault:"https://i.postimg.cc/Vk8Nn1xZ/me.jpg"`
		SiteName string `env:"CONTACT_SITE_NAME" envDefault:"سمسار طلبك"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"database/samsar.db"`
	}

	// BatchProcessing configures the visitor preference writer
	BatchProcessing struct {
		// Buffered batches before pushes are rejected
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"1s"`
	}

	Scheduler struct {
		Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

		// How often every catalog category is reloaded into the cache
		WarmInterval time.Duration `env:"SCHEDULER_WARM_INTERVAL" envDefault:"5m"`

		// Visitor sessions untouched for this long are dropped
		SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

		// Stored visitor preferences older than this are deleted. Zero keeps them forever.
		PreferenceRetention time.Duration `env:"PREFERENCE_RETENTION" envDefault:"2160h"`
	}

	Featured struct {
		// Index entries sampled from the end of each source
		SampleSize int `env:"FEATURED_SAMPLE_SIZE" envDefault:"6"`
		Offers     int `env:"FEATURED_OFFERS" envDefault:"2"`
		Requests   int `env:"FEATURED_REQUESTS" envDefault:"1"`
	}
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig(envPath ...string) (*Config, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.MaxConcurrency <= 0 {
		return fmt.Errorf("FETCH_MAX_CONCURRENCY must be positive, got %d", c.Fetch.MaxConcurrency)
	}
	if c.Fetch.IndexRetries < 0 {
		return fmt.Errorf("FETCH_INDEX_RETRIES must not be negative, got %d", c.Fetch.IndexRetries)
	}
	if c.Cache.Freshness < 0 {
		return fmt.Errorf("CACHE_FRESHNESS must not be negative, got %s", c.Cache.Freshness)
	}
	if c.BatchProcessing.MaxBatchSize <= 0 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive, got %d", c.BatchProcessing.MaxBatchSize)
	}
	if c.Scheduler.PreferenceRetention < 0 {
		return fmt.Errorf("PREFERENCE_RETENTION must not be negative, got %s", c.Scheduler.PreferenceRetention)
	}
	if c.Scheduler.Enabled && c.Scheduler.WarmInterval <= 0 {
		return fmt.Errorf("SCHEDULER_WARM_INTERVAL must be positive, got %s", c.Scheduler.WarmInterval)
	}
	return nil
}
