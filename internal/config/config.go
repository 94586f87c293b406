package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv                 = "development"
	defaultLogLevel            = "info"
	defaultHTTPHost            = "0.0.0.0"
	defaultHTTPPort            = 8080
	defaultRedisDB             = 0
	defaultCacheTTLSeconds     = 30
	defaultSubmissionsExchange = "positions.submissions"
	defaultSubmissionsQueue    = "positions.submissions.engine"
	defaultEventsExchange      = "positions.transactions"
	defaultPrefetch            = 1
	defaultBatchSize           = 50
	defaultBatchTimeoutMS      = 200
	defaultStoreTimeoutMS      = 2000
	defaultShards              = 64
	defaultSnapshotInterval    = 60
	defaultSnapshotEveryN      = 1000
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env      string
	LogLevel string
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	RabbitMQ RabbitMQConfig
	Engine   EngineConfig
	Snapshot SnapshotConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters. An empty DSN runs
// the ledger in memory.
type PostgresConfig struct {
	DSN string
}

// RedisConfig stores Redis connection parameters. An empty Addr disables
// the response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// RabbitMQConfig stores broker settings. An empty URL disables messaging.
type RabbitMQConfig struct {
	URL                 string
	SubmissionsExchange string
	SubmissionsQueue    string
	EventsExchange      string
	Prefetch            int
	BatchSize           int
	BatchTimeout        time.Duration
}

// EngineConfig tunes the position aggregator.
type EngineConfig struct {
	StoreTimeout time.Duration
	Shards       int
}

// SnapshotConfig controls persisted aggregate snapshots.
type SnapshotConfig struct {
	Interval time.Duration
	EveryN   int
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}
	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}
	prefetch, err := getInt("RABBITMQ_PREFETCH", defaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_PREFETCH: %w", err)
	}
	batchSize, err := getInt("RABBITMQ_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_BATCH_SIZE: %w", err)
	}
	batchTimeoutMS, err := getInt("RABBITMQ_BATCH_TIMEOUT_MS", defaultBatchTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_BATCH_TIMEOUT_MS: %w", err)
	}
	storeTimeoutMS, err := getInt("ENGINE_STORE_TIMEOUT_MS", defaultStoreTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("parse ENGINE_STORE_TIMEOUT_MS: %w", err)
	}
	if storeTimeoutMS <= 0 {
		return nil, fmt.Errorf("ENGINE_STORE_TIMEOUT_MS must be positive, got %d", storeTimeoutMS)
	}
	shards, err := getInt("ENGINE_SHARDS", defaultShards)
	if err != nil {
		return nil, fmt.Errorf("parse ENGINE_SHARDS: %w", err)
	}
	if shards <= 0 {
		return nil, fmt.Errorf("ENGINE_SHARDS must be positive, got %d", shards)
	}
	snapshotInterval, err := getInt("SNAPSHOT_INTERVAL_SECONDS", defaultSnapshotInterval)
	if err != nil {
		return nil, fmt.Errorf("parse SNAPSHOT_INTERVAL_SECONDS: %w", err)
	}
	snapshotEveryN, err := getInt("SNAPSHOT_EVERY_N", defaultSnapshotEveryN)
	if err != nil {
		return nil, fmt.Errorf("parse SNAPSHOT_EVERY_N: %w", err)
	}

	return &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: port,
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 os.Getenv("RABBITMQ_URL"),
			SubmissionsExchange: getString("RABBITMQ_SUBMISSIONS_EXCHANGE", defaultSubmissionsExchange),
			SubmissionsQueue:    getString("RABBITMQ_SUBMISSIONS_QUEUE", defaultSubmissionsQueue),
			EventsExchange:      getString("RABBITMQ_EVENTS_EXCHANGE", defaultEventsExchange),
			Prefetch:            prefetch,
			BatchSize:           batchSize,
			BatchTimeout:        time.Duration(batchTimeoutMS) * time.Millisecond,
		},
		Engine: EngineConfig{
			StoreTimeout: time.Duration(storeTimeoutMS) * time.Millisecond,
			Shards:       shards,
		},
		Snapshot: SnapshotConfig{
			Interval: time.Duration(snapshotInterval) * time.Second,
			EveryN:   snapshotEveryN,
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}
