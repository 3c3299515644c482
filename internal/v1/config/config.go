package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Chat listener
	ListenAddr string

	// Ops HTTP server (metrics, health)
	OpsPort string

	// Durable JSON state root (users.json, rooms.json, vault/)
	DataDir string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool

	// Redis (events publisher + shared rate-limit store)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Per-IP connection rate limit, ulule/limiter format (e.g. "30-M")
	ConnRateLimit string

	// Session-timeout sweep cadence in seconds
	SweepIntervalSeconds int

	// Ops router CORS
	AllowedOrigins string

	// Optional OTLP collector; tracing disabled when empty
	OTELCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// LISTEN_ADDR (format: host:port, host may be empty for all interfaces)
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":7000")
	if !isValidListenAddr(cfg.ListenAddr) {
		errors = append(errors, fmt.Sprintf("LISTEN_ADDR must be in format 'host:port' (got '%s')", cfg.ListenAddr))
	}

	// OPS_PORT (valid port number)
	cfg.OpsPort = getEnvOrDefault("OPS_PORT", "8080")
	if port, err := strconv.Atoi(cfg.OpsPort); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.OpsPort))
	}

	// DATA_DIR (defaults to "data")
	cfg.DataDir = getEnvOrDefault("DATA_DIR", "data")
	if cfg.DataDir == "" {
		errors = append(errors, "DATA_DIR must not be empty")
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// CONN_RATE_LIMIT (ulule/limiter formatted rate)
	cfg.ConnRateLimit = getEnvOrDefault("CONN_RATE_LIMIT", "30-M")

	// SWEEP_INTERVAL_SECONDS (1..30, defaults to the ceiling)
	sweepRaw := getEnvOrDefault("SWEEP_INTERVAL_SECONDS", "30")
	sweep, err := strconv.Atoi(sweepRaw)
	if err != nil || sweep < 1 || sweep > 30 {
		errors = append(errors, fmt.Sprintf("SWEEP_INTERVAL_SECONDS must be between 1 and 30 (got '%s')", sweepRaw))
	} else {
		cfg.SweepIntervalSeconds = sweep
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.OTELCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// isValidListenAddr is isValidHostPort with an empty host allowed (all interfaces)
func isValidListenAddr(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"listen_addr", cfg.ListenAddr,
		"ops_port", cfg.OpsPort,
		"data_dir", cfg.DataDir,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"redis_password", redactSecret(cfg.RedisPassword),
		"conn_rate_limit", cfg.ConnRateLimit,
		"sweep_interval_seconds", cfg.SweepIntervalSeconds,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only whether it is set
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
