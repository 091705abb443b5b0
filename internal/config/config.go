package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultUserAgent identifies the service to the USGS API.
const DefaultUserAgent = "QuakeEdge/1.0 (+https://github.com/watkajtys/earthquake-sub007)"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream feed configuration.
	USGSFeedBaseURL string
	USGSQueryURL    string
	USGSTimeout     time.Duration
	USGSUserAgent   string

	// Edge cache configuration. CacheTTL is kept raw; the proxy resolves it
	// and falls back to its default with a warning when invalid.
	CacheTTL        string
	CacheBackend    string
	CacheMaxEntries int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Record store configuration.
	DatabaseDriver  string
	DatabaseDSN     string
	UpsertBatchSize int
	DetachedTimeout time.Duration

	// Optional Kafka change feed of persisted records.
	KafkaBrokers []string
	KafkaTopic   string

	// Merge engine configuration.
	MonitorEnabled      bool
	RefreshInterval     time.Duration
	MajorQuakeThreshold float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	usgsTimeout, err := parsePositiveDuration("USGS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	detachedTimeout, err := parsePositiveDuration("DETACHED_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	threshold, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAJOR_QUAKE_THRESHOLD", "4.5"), 64)
	if err != nil || threshold <= 0 {
		return nil, errors.New("invalid MAJOR_QUAKE_THRESHOLD")
	}

	upsertBatchSize, err := parseNonNegativeInt("UPSERT_BATCH_SIZE", 0)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		USGSFeedBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("USGS_FEED_BASE_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"), "/"),
		USGSQueryURL:    sharedcfg.EnvOrDefault("USGS_QUERY_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
		USGSTimeout:     usgsTimeout,
		USGSUserAgent:   sharedcfg.EnvOrDefault("USGS_USER_AGENT", DefaultUserAgent),

		CacheTTL:        os.Getenv("CACHE_TTL_SECONDS"),
		CacheBackend:    strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", "memory")),
		CacheMaxEntries: parseCacheMaxEntries(),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,

		DatabaseDriver:  strings.ToLower(sharedcfg.EnvOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseDSN:     sharedcfg.EnvOrDefault("DATABASE_DSN", "file:data/earthquakes.db?_pragma=busy_timeout(5000)"),
		UpsertBatchSize: upsertBatchSize,
		DetachedTimeout: detachedTimeout,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-records"),

		MonitorEnabled:      sharedcfg.EnvOrDefault("MONITOR_ENABLED", "true") == "true",
		RefreshInterval:     refreshInterval,
		MajorQuakeThreshold: threshold,
	}

	switch cfg.CacheBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("CACHE_BACKEND is redis but REDIS_ADDR is not set")
		}
	default:
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.CacheBackend)
	}

	switch cfg.DatabaseDriver {
	case "none":
	case "sqlite", "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, errors.New("DATABASE_DSN is required")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if len(brokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseCacheMaxEntries() int {
	if s := os.Getenv("CACHE_MAX_ENTRIES"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
