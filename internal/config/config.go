// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config holding every default.
//   - Load layers an optional YAML file and PADDLE_* environment variables on top.
//   - Validate reports ErrInvalidConfig for values the service cannot run with.
package config

import (
	"fmt"
	"strings"
)

// Supported ledger store drivers.
const (
	DriverMemory   = "memory"
	DriverCSV      = "csv"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the ledger store backend.
	StoreDriver string `koanf:"store_driver"`

	// StorePath is the directory (csv) or file (bolt, sqlite) holding the ledger.
	StorePath string `koanf:"store_path"`

	// StoreDSN is the postgres connection string.
	StoreDSN string `koanf:"store_dsn"`

	// RedisAddr and RedisKey locate the ledger document in redis.
	RedisAddr string `koanf:"redis_addr"`
	RedisKey  string `koanf:"redis_key"`

	// CommandQueueSize bounds the write-command queue.
	CommandQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ledger writers. One keeps writes serialized.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the number of submission ids remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// SaveRetries is how many times a write is retried after a revision conflict.
	SaveRetries int `koanf:"save_retries"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// RecentGames is the number of games shown on the home page.
	RecentGames int `koanf:"recent_games"`

	// LeaderboardMetrics lists the metrics averaged into the composite score.
	LeaderboardMetrics string `koanf:"leaderboard_metrics"`

	// MCPEnabled mounts the MCP tool endpoint at /mcp.
	MCPEnabled bool `koanf:"mcp_enabled"`

	// SiteEnabled mounts the HTML pages.
	SiteEnabled bool `koanf:"site_enabled"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		StoreDriver:         DriverMemory,
		StorePath:           "data",
		RedisAddr:           "localhost:6379",
		RedisKey:            "paddle:ledger",
		CommandQueueSize:    1024,
		WorkerCount:         1,
		DedupeSize:          50_000,
		SaveRetries:         3,
		MaxLeaderboardLimit: 500,
		RecentGames:         10,
		LeaderboardMetrics:  "rating,avg_opponent_rating,win_pct",
		MCPEnabled:          true,
		SiteEnabled:         true,
	}
}

// Metrics returns LeaderboardMetrics split into trimmed, non-empty names.
func (c *Config) Metrics() []string {
	var out []string
	for _, m := range strings.Split(c.LeaderboardMetrics, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Validate checks values the service depends on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CommandQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.SaveRetries < 0:
		return fmt.Errorf("%w: save_retries must not be negative", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.RecentGames < 1:
		return fmt.Errorf("%w: recent_games must be positive", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverCSV, DriverBolt, DriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("%w: store_path is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	case DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for postgres", ErrInvalidConfig)
		}
	case DriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" || strings.TrimSpace(c.RedisKey) == "" {
			return fmt.Errorf("%w: redis_addr and redis_key are required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	metrics := c.Metrics()
	if len(metrics) == 0 {
		return fmt.Errorf("%w: leaderboard_metrics must name at least one metric", ErrInvalidConfig)
	}
	for _, m := range metrics {
		switch m {
		case "rating", "avg_opponent_rating", "win_pct":
		default:
			return fmt.Errorf("%w: unknown leaderboard metric %q", ErrInvalidConfig, m)
		}
	}
	return nil
}
