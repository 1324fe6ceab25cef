package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds settings for the realtime core.
type Config struct {
	SocketURL      string        // event server WebSocket endpoint
	APIBaseURL     string        // dashboard REST API base
	BackoffBase    time.Duration // first reconnect delay
	BackoffCap     time.Duration // upper bound on reconnect delay
	MaxAttempts    int           // reconnect budget before giving up
	PollInterval   time.Duration // reconciliation pull interval
	PollLimit      int           // page size for reconciliation pulls
	RequestTimeout time.Duration // API request timeout
}

// DefaultConfig returns the default realtime configuration.
func DefaultConfig() *Config {
	return &Config{
		SocketURL:      "ws://localhost:8090/ws",
		APIBaseURL:     "http://localhost:8090",
		BackoffBase:    time.Second,
		BackoffCap:     30 * time.Second,
		MaxAttempts:    5,
		PollInterval:   30 * time.Second,
		PollLimit:      100,
		RequestTimeout: 10 * time.Second,
	}
}

// FromEnv loads configuration from environment variables.
// Falls back to defaults for any missing values.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if u := os.Getenv("REALTIME_SOCKET_URL"); u != "" {
		cfg.SocketURL = u
	}
	if u := os.Getenv("REALTIME_API_URL"); u != "" {
		cfg.APIBaseURL = u
	}
	if v := os.Getenv("REALTIME_BACKOFF_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackoffBase = d
		}
	}
	if v := os.Getenv("REALTIME_BACKOFF_CAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackoffCap = d
		}
	}
	if v := os.Getenv("REALTIME_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("REALTIME_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("REALTIME_POLL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollLimit = n
		}
	}
	return cfg
}

// RelayConfig holds connection settings for the Redis event relay.
type RelayConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "monetiq:rt:"
}

// DefaultRelayConfig returns a RelayConfig with sensible defaults.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Addr:   "localhost:6379",
		Prefix: "monetiq:rt:",
	}
}

// RelayConfigFromEnv loads relay configuration from environment variables.
func RelayConfigFromEnv() *RelayConfig {
	cfg := DefaultRelayConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_RT_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}
