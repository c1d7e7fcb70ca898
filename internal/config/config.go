// Package config provides configuration management for the shielded scanner service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Indexer  IndexerConfig
	Jobs     JobsConfig
	Alerts   AlertsConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds chain node RPC configuration
type ChainConfig struct {
	RPCHost     string
	RPCUser     string
	RPCPassword string
	RPCTimeout  time.Duration
	// MaxRequestsPerSecond caps outbound RPC calls to the node
	MaxRequestsPerSecond int
}

// IndexerConfig holds block indexer and sync loop configuration
type IndexerConfig struct {
	// PollInterval is the idle sleep between chain-tip checks (default 10s)
	PollInterval time.Duration
	// BatchSize is the batched synchronizer's blocks-per-round (default 50)
	BatchSize int
	// ReindexInterval is the period of the trailing re-index job (default 24h)
	ReindexInterval time.Duration
	// ReindexDepth is how many trailing blocks the periodic re-index heals (default 100)
	ReindexDepth int64
	// ReorgRewindLimit bounds how far a fork rewind may walk back (default 20)
	ReorgRewindLimit int64
	// StartHeight is where indexing begins when no cursor exists yet
	StartHeight int64
}

// JobsConfig holds job queue configuration
type JobsConfig struct {
	Workers     int
	MaxAttempts int
	// BackoffBase is multiplied by the attempt number for retry delays
	BackoffBase time.Duration
	// HistoryLimit bounds the retained completed/failed job history
	HistoryLimit int
}

// AlertsConfig holds alert evaluation configuration
type AlertsConfig struct {
	// CheckInterval is the period of the timer-driven alert sweep (default 5m)
	CheckInterval time.Duration
}

// NotifyConfig holds notification delivery configuration
type NotifyConfig struct {
	// WebhookTimeout bounds a single webhook POST (default 5s)
	WebhookTimeout time.Duration
	// DispatchWorkers bounds concurrent deliveries so a slow webhook
	// cannot block the evaluation loop
	DispatchWorkers int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "shielded_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 25),
			},
		},
		Chain: ChainConfig{
			RPCHost:              getEnv("CHAIN_RPC_HOST", "localhost:8232"),
			RPCUser:              getEnv("CHAIN_RPC_USER", ""),
			RPCPassword:          getEnv("CHAIN_RPC_PASSWORD", ""),
			RPCTimeout:           getEnvAsDuration("CHAIN_RPC_TIMEOUT", 30*time.Second),
			MaxRequestsPerSecond: getEnvAsInt("CHAIN_RPC_MAX_RPS", 20),
		},
		Indexer: IndexerConfig{
			PollInterval:     getEnvAsDuration("SYNC_POLL_INTERVAL", 10*time.Second),
			BatchSize:        getEnvAsInt("SYNC_BATCH_SIZE", 50),
			ReindexInterval:  getEnvAsDuration("REINDEX_INTERVAL", 24*time.Hour),
			ReindexDepth:     int64(getEnvAsInt("REINDEX_DEPTH", 100)),
			ReorgRewindLimit: int64(getEnvAsInt("REORG_REWIND_LIMIT", 20)),
			StartHeight:      int64(getEnvAsInt("INDEXER_START_HEIGHT", 0)),
		},
		Jobs: JobsConfig{
			Workers:      getEnvAsInt("JOB_WORKERS", 5),
			MaxAttempts:  getEnvAsInt("JOB_MAX_ATTEMPTS", 3),
			BackoffBase:  getEnvAsDuration("JOB_BACKOFF_BASE", 5*time.Second),
			HistoryLimit: getEnvAsInt("JOB_HISTORY_LIMIT", 100),
		},
		Alerts: AlertsConfig{
			CheckInterval: getEnvAsDuration("ALERT_CHECK_INTERVAL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			WebhookTimeout:  getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
			DispatchWorkers: getEnvAsInt("NOTIFY_DISPATCH_WORKERS", 4),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
