package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment        string   `toml:"environment"`
	ServerPort         int      `toml:"server_port"`
	LogLevel           string   `toml:"log_level"`
	RedisURL           string   `toml:"redis_url"`
	JWTSecret          string   `toml:"jwt_secret"`
	JWTIssuer          string   `toml:"jwt_issuer"`
	TokenTTLMinutes    int      `toml:"token_ttl_minutes"`
	SessionTTLMinutes  int      `toml:"session_ttl_minutes"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	// RateLimit is requests per minute per actor on the API
	RateLimit int `toml:"rate_limit"`
	// LoginRateLimit is attempts per minute per client address
	LoginRateLimit       int            `toml:"login_rate_limit"`
	StatsIntervalSeconds int            `toml:"stats_interval_seconds"`
	OTLPEndpoint         string         `toml:"otlp_endpoint"`
	Database             DatabaseConfig `toml:"database"`
}

// DatabaseConfig is the [database] table of the config file
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
	MaxOpen  int    `toml:"max_open_conns"`
	MaxIdle  int    `toml:"max_idle_conns"`
}

// TokenTTL returns the API token lifetime
func (c *Config) TokenTTL() time.Duration { return time.Duration(c.TokenTTLMinutes) * time.Minute }

// SessionTTL returns the console session lifetime
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// StatsInterval returns how often task statistics are refreshed
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool { return c.Environment == "production" }

func defaults() *Config {
	return &Config{
		Environment:       "development",
		ServerPort:        8080,
		LogLevel:          "info",
		RedisURL:          "redis://localhost:6379",
		JWTIssuer:         "taskdesk",
		TokenTTLMinutes:   60 * 24,
		SessionTTLMinutes: 60 * 8,
		CORSAllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
		RateLimit:            100,
		LoginRateLimit:       10,
		StatsIntervalSeconds: 60,
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "taskdesk",
			Name:    "taskdesk",
			SSLMode: "disable",
			MaxOpen: 25,
			MaxIdle: 5,
		},
	}
}

// Load reads configuration in increasing precedence: built-in defaults, the
// TOML file named by CONFIG_FILE, then environment variables (a .env file in
// the working directory is loaded into the environment first).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.CORSAllowedOrigins = parseCSVEnv("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &cfg.ServerPort},
		{"TOKEN_TTL_MINUTES", &cfg.TokenTTLMinutes},
		{"SESSION_TTL_MINUTES", &cfg.SessionTTLMinutes},
		{"RATE_LIMIT", &cfg.RateLimit},
		{"LOGIN_RATE_LIMIT", &cfg.LoginRateLimit},
		{"STATS_INTERVAL_SECONDS", &cfg.StatsIntervalSeconds},
		{"DB_PORT", &cfg.Database.Port},
		{"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpen},
		{"DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdle},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if c.TokenTTLMinutes <= 0 || c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("token and session ttl must be positive")
	}
	if c.StatsIntervalSeconds <= 0 {
		return fmt.Errorf("stats interval must be positive")
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
