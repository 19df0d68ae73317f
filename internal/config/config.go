package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultSessionTTL           = 7 * 24 * time.Hour
	defaultSessionCleanInterval = 8 * time.Hour
	defaultMaxUploadSize        = 10 << 20 // 10 MiB
	defaultMaxImageDimension    = 1920
	defaultContentCacheSize     = 32 << 20
	defaultContentCacheTTL      = time.Hour
)

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`
	AutoMigrate    bool   `toml:"auto_migrate"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// admin sessions
	SessionTTL           time.Duration `toml:"session_ttl"`
	SessionCleanInterval time.Duration `toml:"session_clean_interval"`
	CookieSecure         bool          `toml:"cookie_secure"`

	AllowedOrigins                []string `toml:"allowed_origins"`
	LoginRateLimitAllowedPerMin   int      `toml:"login_rate_limit_allowed_per_min"`
	ContactRateLimitAllowedPerMin int      `toml:"contact_rate_limit_allowed_per_min"`

	// object storage
	StorageBackend       string `toml:"storage_backend"` // bucket | disk
	StorageURL           string `toml:"storage_url"`
	DiskStorageRoot      string `toml:"disk_storage_root"`
	DiskStoragePublicURL string `toml:"disk_storage_public_url"`
	ProjectImagesBucket  string `toml:"project_images_bucket"`
	CVBucket             string `toml:"cv_bucket"`
	MaxUploadSize        int64  `toml:"max_upload_size"`
	MaxImageDimension    int    `toml:"max_image_dimension"`

	// content cache
	ContentCacheSize int           `toml:"content_cache_size"`
	ContentCacheTTL  time.Duration `toml:"content_cache_ttl"`

	// email notifications
	SMTPHost     string `toml:"smtp_host"`
	SMTPPort     string `toml:"smtp_port"`
	SMTPUsername string `toml:"smtp_username"`
	SMTPFromName string `toml:"smtp_from_name"`
	AdminEmail   string `toml:"admin_email"`
	SiteURL      string `toml:"site_url"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] missing", env)
	}
	return cfg, nil
}

// Load reads the TOML config file and returns the config of the given environment.
func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode toml config [%s]: %w", path, err)
	}
	return fromToml(&tomlConfig, env)
}

// Parse is Load for an in-memory TOML document.
func Parse(env, tomlContent string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.Decode(tomlContent, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode toml config: %w", err)
	}
	return fromToml(&tomlConfig, env)
}

func fromToml(tomlConfig *Toml, env string) (*Config, error) {
	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}

	cfg.Environment = strings.ToLower(env)
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.SessionCleanInterval == 0 {
		c.SessionCleanInterval = defaultSessionCleanInterval
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = defaultMaxUploadSize
	}
	if c.MaxImageDimension == 0 {
		c.MaxImageDimension = defaultMaxImageDimension
	}
	if c.ContentCacheSize == 0 {
		c.ContentCacheSize = defaultContentCacheSize
	}
	if c.ContentCacheTTL == 0 {
		c.ContentCacheTTL = defaultContentCacheTTL
	}
	if c.StorageBackend == "" {
		c.StorageBackend = "disk"
	}
	if c.ProjectImagesBucket == "" {
		c.ProjectImagesBucket = "project-images"
	}
	if c.CVBucket == "" {
		c.CVBucket = "cv"
	}
	if c.PostgresUser == "" {
		c.PostgresUser = "postgres"
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return errors.New("port must be set")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.SessionCleanInterval <= 0 {
		return fmt.Errorf("session_clean_interval must be positive, got %s", c.SessionCleanInterval)
	}
	if c.ContentCacheTTL < 0 {
		return fmt.Errorf("content_cache_ttl must not be negative, got %s", c.ContentCacheTTL)
	}
	switch c.StorageBackend {
	case "bucket":
		if c.StorageURL == "" {
			return errors.New("storage_url required for bucket storage backend")
		}
	case "disk":
		if c.DiskStorageRoot == "" {
			return errors.New("disk_storage_root required for disk storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}
