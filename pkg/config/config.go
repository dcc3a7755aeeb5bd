package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Upstream producing service (scores, evidence, envelopes)
	Producer ProducerConfig

	// Live update streams
	Stream StreamConfig

	// Feed polling
	Feed FeedConfig

	// Watchlist scope
	WatchlistID string

	// Signal policy (weights, threshold, verified sources)
	PolicyFile string

	// Redis
	Redis RedisConfig

	// Database (optional signal archive)
	Database DatabaseConfig

	// Alerts
	Alert AlertConfig

	// API protection
	APIRateLimit  int
	APIRateWindow time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// ProducerConfig holds settings for the producing service
type ProducerConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	MaxRetries int
}

// StreamConfig holds push stream settings
type StreamConfig struct {
	SignalsPath  string
	InsightsPath string
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	HistoryLen   int
}

// FeedConfig holds feed poller settings
type FeedConfig struct {
	PollInterval time.Duration
	Limit        int
	CacheTTL     time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether the archive database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// AlertConfig holds webhook alert settings
type AlertConfig struct {
	WebhookURL    string
	MinConfidence float64
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Producer: ProducerConfig{
			BaseURL:    strings.TrimRight(getEnv("PRODUCER_BASE_URL", "http://localhost:8000"), "/"),
			Timeout:    getEnvAsDuration("PRODUCER_TIMEOUT", "15s"),
			RatePerSec: getEnvAsFloat("PRODUCER_RATE_PER_SEC", 5),
			MaxRetries: getEnvAsInt("PRODUCER_MAX_RETRIES", 2),
		},

		Stream: StreamConfig{
			SignalsPath:  getEnv("STREAM_SIGNALS_PATH", "/ws/signals"),
			InsightsPath: getEnv("STREAM_INSIGHTS_PATH", "/ws/insights"),
			BackoffBase:  getEnvAsDuration("STREAM_BACKOFF_BASE", "1s"),
			BackoffMax:   getEnvAsDuration("STREAM_BACKOFF_MAX", "30s"),
			HistoryLen:   getEnvAsInt("STREAM_HISTORY_LEN", 20),
		},

		Feed: FeedConfig{
			PollInterval: getEnvAsDuration("FEED_POLL_INTERVAL", "20s"),
			Limit:        getEnvAsInt("FEED_LIMIT", 30),
			CacheTTL:     getEnvAsDuration("FEED_CACHE_TTL", "60s"),
		},

		WatchlistID: getEnv("WATCHLIST_ID", "demo"),
		PolicyFile:  getEnv("POLICY_FILE", ""),

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Alert: AlertConfig{
			WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
			MinConfidence: getEnvAsFloat("ALERT_MIN_CONFIDENCE", 0.7),
		},

		APIRateLimit:  getEnvAsInt("API_RATE_LIMIT", 100),
		APIRateWindow: getEnvAsDuration("API_RATE_WINDOW", "60s"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Producer.BaseURL == "" {
		return fmt.Errorf("PRODUCER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Producer.BaseURL, "http://") && !strings.HasPrefix(c.Producer.BaseURL, "https://") {
		return fmt.Errorf("PRODUCER_BASE_URL must start with http:// or https://")
	}
	if c.Producer.Timeout <= 0 {
		return fmt.Errorf("PRODUCER_TIMEOUT must be positive")
	}

	if c.Stream.BackoffBase <= 0 || c.Stream.BackoffMax < c.Stream.BackoffBase {
		return fmt.Errorf("STREAM_BACKOFF_BASE must be positive and not above STREAM_BACKOFF_MAX")
	}

	if c.Feed.PollInterval < time.Second {
		return fmt.Errorf("FEED_POLL_INTERVAL must be at least 1s")
	}

	if c.Alert.MinConfidence < 0 || c.Alert.MinConfidence > 1 {
		return fmt.Errorf("ALERT_MIN_CONFIDENCE must be in [0,1]")
	}

	return nil
}

// StreamURL converts the producer base URL into a ws(s) URL for the given path
func (c *Config) StreamURL(path string) string {
	base := c.Producer.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
