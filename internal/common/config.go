package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Worker      WorkerConfig    `toml:"worker"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig wraps the SQLite connection settings. This module has a
// single relational store (no separate KV/badger tier).
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path            string `toml:"path"`              // Database file path
	ResetOnStartup  bool   `toml:"reset_on_startup"`  // Delete database on startup (development only)
	Environment     string `toml:"environment"`       // Mirrors Config.Environment, used to gate ResetOnStartup
	WALMode         bool   `toml:"wal_mode"`          // Enable WAL journal mode
	BusyTimeoutMS   int    `toml:"busy_timeout_ms"`   // SQLITE_BUSY retry window
	CacheSizeMB     int    `toml:"cache_size_mb"`     // Page cache size
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// CrawlerConfig controls the bounded BFS crawl engine.
type CrawlerConfig struct {
	UserAgent              string        `toml:"user_agent"`
	MaxConcurrency         int           `toml:"max_concurrency"`          // Concurrent fetch workers per crawl
	RequestTimeout         time.Duration `toml:"request_timeout"`          // Per-request HTTP timeout
	RenderTimeout          time.Duration `toml:"render_timeout"`           // Per-request headless render timeout
	DefaultMaxDepth         int          `toml:"default_max_depth"`
	DefaultMaxPages         int          `toml:"default_max_pages"`
	MaxCrawlDuration        time.Duration `toml:"max_crawl_duration"`
	FollowRobotsTxt         bool         `toml:"follow_robots_txt"`
	BrowserPoolMaxPages     int          `toml:"browser_pool_max_pages"` // Semaphore size for the shared headless browser
	TimeoutStreakThreshold  int          `toml:"timeout_streak_threshold"`
	TimeoutRateThreshold    float64      `toml:"timeout_rate_threshold"`
	TimeoutRateMinSamples   int          `toml:"timeout_rate_min_samples"`
	StallThreshold          int          `toml:"stall_threshold"` // Not read by the crawl engine, which uses its own 30s stall window
	JSProbeMinLinks         int          `toml:"js_probe_min_links"`
	JSProbeMinTextLength    int          `toml:"js_probe_min_text_length"`
}

// WorkerConfig controls the queue worker process.
type WorkerConfig struct {
	PollInterval   time.Duration `toml:"poll_interval"`   // How often an idle worker polls for claimable tasks
	LeaseDuration  time.Duration `toml:"lease_duration"`  // Claim lease window renewed by heartbeats
	HeartbeatEvery time.Duration `toml:"heartbeat_every"`
	Concurrency    int           `toml:"concurrency"` // Number of worker goroutines per process
}

// SchedulerConfig controls the cron bridge.
type SchedulerConfig struct {
	Enabled      bool          `toml:"enabled"`
	PollInterval time.Duration `toml:"poll_interval"` // How often to re-read monitoring_schedules for changes
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in llmstxt.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:           "./data/llmstxt.db",
				ResetOnStartup: false,
				Environment:    "development",
				WALMode:        true,
				BusyTimeoutMS:  5000,
				CacheSizeMB:    32,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Crawler: CrawlerConfig{
			UserAgent:              "Mozilla/5.0 (compatible; llmstxt-generator/1.0; +https://example.com/bot)",
			MaxConcurrency:         5,
			RequestTimeout:         15 * time.Second,
			RenderTimeout:          20 * time.Second,
			DefaultMaxDepth:        3,
			DefaultMaxPages:        200,
			MaxCrawlDuration:       10 * time.Minute,
			FollowRobotsTxt:        true,
			BrowserPoolMaxPages:    2,
			TimeoutStreakThreshold: 5,
			TimeoutRateThreshold:   0.5,
			TimeoutRateMinSamples:  10,
			StallThreshold:         3,
			JSProbeMinLinks:        4,
			JSProbeMinTextLength:   500,
		},
		Worker: WorkerConfig{
			PollInterval:   2 * time.Second,
			LeaseDuration:  5 * time.Minute,
			HeartbeatEvery: 30 * time.Second,
			Concurrency:    2,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: 1 * time.Minute,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration starting from defaults and merging each
// path's TOML in order, so a later file overrides fields set by an earlier
// one; this backs the CLI's repeatable -config flag.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	config.Storage.SQLite.Environment = config.Environment

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LLMSTXT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("LLMSTXT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LLMSTXT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if dbPath := os.Getenv("LLMSTXT_DB_PATH"); dbPath != "" {
		config.Storage.SQLite.Path = dbPath
	}

	if level := os.Getenv("LLMSTXT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LLMSTXT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if maxDepth := os.Getenv("LLMSTXT_CRAWLER_MAX_DEPTH"); maxDepth != "" {
		if md, err := strconv.Atoi(maxDepth); err == nil {
			config.Crawler.DefaultMaxDepth = md
		}
	}
	if maxPages := os.Getenv("LLMSTXT_CRAWLER_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawler.DefaultMaxPages = mp
		}
	}
	if concurrency := os.Getenv("LLMSTXT_CRAWLER_MAX_CONCURRENCY"); concurrency != "" {
		if mc, err := strconv.Atoi(concurrency); err == nil {
			config.Crawler.MaxConcurrency = mc
		}
	}
	if followRobots := os.Getenv("LLMSTXT_CRAWLER_FOLLOW_ROBOTS_TXT"); followRobots != "" {
		if frt, err := strconv.ParseBool(followRobots); err == nil {
			config.Crawler.FollowRobotsTxt = frt
		}
	}

	if workerConcurrency := os.Getenv("LLMSTXT_WORKER_CONCURRENCY"); workerConcurrency != "" {
		if wc, err := strconv.Atoi(workerConcurrency); err == nil {
			config.Worker.Concurrency = wc
		}
	}

	if schedulerEnabled := os.Getenv("LLMSTXT_SCHEDULER_ENABLED"); schedulerEnabled != "" {
		if se, err := strconv.ParseBool(schedulerEnabled); err == nil {
			config.Scheduler.Enabled = se
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
