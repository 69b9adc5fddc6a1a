package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/mediapool"
	"gopkg.in/yaml.v3"
)

// Config is the mediafeed configuration file.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Feed     FeedConfig     `yaml:"feed"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// UpstreamConfig selects and configures the origin media is fetched from.
type UpstreamConfig struct {
	// Type is one of "http", "s3", "minio" or "memory".
	Type     string `yaml:"type"`
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`

	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`

	// Table is a DynamoDB table mapping content ids to object versions.
	// Only used with the s3 upstream.
	Table string `yaml:"table"`

	// ObjectBytes is the size of the synthetic objects served by the memory upstream.
	ObjectBytes int `yaml:"object_bytes"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig configures the byte cache.
type CacheConfig struct {
	Dir          string `yaml:"dir"`
	Capacity     int64  `yaml:"capacity"`
	Compression  string `yaml:"compression"`
	MinFreeBytes int64  `yaml:"min_free_bytes"`
}

// FeedConfig configures the window and the feed contents.
type FeedConfig struct {
	Radius        int      `yaml:"radius"`
	PrefetchBytes int64    `yaml:"prefetch_bytes"`
	Workers       int64    `yaml:"workers"`
	IOLimit       int64    `yaml:"io_limit"`
	ContentIDs    []string `yaml:"content_ids"`
}

// RetryConfig configures upstream retries.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address /metrics is served on. Empty disables it.
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the configuration used for fields the file omits.
func DefaultConfig() Config {
	return Config{
		Upstream: UpstreamConfig{
			Type:        "memory",
			Region:      "us-east-1",
			ObjectBytes: 64 << 10,
			Timeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			Capacity:    mediapool.DefaultCacheCapacity,
			Compression: "none",
		},
		Feed: FeedConfig{
			Radius: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	var errs []error
	switch c.Upstream.Type {
	case "memory":
	case "http":
		if c.Upstream.Endpoint == "" {
			errs = append(errs, errors.New("upstream.endpoint is required for http"))
		}
	case "s3":
		if c.Upstream.Bucket == "" {
			errs = append(errs, errors.New("upstream.bucket is required for s3"))
		}
	case "minio":
		if c.Upstream.Endpoint == "" || c.Upstream.Bucket == "" {
			errs = append(errs, errors.New("upstream.endpoint and upstream.bucket are required for minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported upstream type: %q", c.Upstream.Type))
	}
	if c.Upstream.Table != "" && c.Upstream.Type != "s3" {
		errs = append(errs, errors.New("upstream.table is only supported with s3"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	if _, err := mediapool.ParseCompression(c.Cache.Compression); err != nil {
		errs = append(errs, fmt.Errorf("cache.compression: %w", err))
	}
	if c.Feed.Radius < 1 {
		errs = append(errs, fmt.Errorf("feed.radius must be at least 1, got %d", c.Feed.Radius))
	}
	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Options translates the configuration into feed options.
func (c Config) Options(logger *mediapool.Logger) []mediapool.Option {
	compression, _ := mediapool.ParseCompression(c.Cache.Compression)
	opts := []mediapool.Option{
		mediapool.WithCacheCapacity(c.Cache.Capacity),
		mediapool.WithCompression(compression),
		mediapool.WithMinFreeBytes(c.Cache.MinFreeBytes),
		mediapool.WithRadius(c.Feed.Radius),
		mediapool.WithPrefetchBytes(c.Feed.PrefetchBytes),
		mediapool.WithWorkers(c.Feed.Workers),
		mediapool.WithIOLimit(c.Feed.IOLimit),
		mediapool.WithRetry(c.Retry.MaxAttempts, c.Retry.InitialBackoff, c.Retry.MaxBackoff),
		mediapool.WithLogger(logger),
	}
	if c.Cache.Dir != "" {
		opts = append(opts, mediapool.WithCacheDir(c.Cache.Dir))
	}
	return opts
}

// Logger builds the configured logger.
func (c LoggingConfig) Logger() (*mediapool.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	if c.Format == "json" {
		return mediapool.NewJSONLogger(level), nil
	}
	return mediapool.NewTextLogger(level), nil
}

func (c LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// parsePages parses a comma separated list of page indices.
func parsePages(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pages := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q: %w", p, err)
		}
		pages = append(pages, n)
	}
	return pages, nil
}
