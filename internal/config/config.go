package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	ServerPort      int
	DBDriver        string
	PostgresHost    string
	PostgresPort    string
	PostgresUser    string
	PostgresPass    string
	PostgresDB      string
	SQLitePath      string
	JWTSecret       string
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	RedisURL     string
	RedisChannel string

	AllowedOrigins     []string
	TrustedProxies     []string
	LoginRateLimit     int
	LoginRateWindow    time.Duration
	WSRateLimit        int
	WSRateWindow       time.Duration
	TransitionAttempts int
}

// Load reads an optional .env file and then builds the config from the
// environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadConfig()
}

// LoadConfig builds the config from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnvInt("SERVER_PORT", 8080),
		DBDriver:           getEnvString("DB_DRIVER", "postgres"),
		PostgresHost:       getEnvString("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnvString("POSTGRES_PORT", "5432"),
		PostgresUser:       os.Getenv("POSTGRES_USER"),
		PostgresPass:       os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:         os.Getenv("POSTGRES_DB"),
		SQLitePath:         getEnvString("SQLITE_PATH", "charity.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogLevel:           getEnvString("LOG_LEVEL", "INFO"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		RedisURL:           os.Getenv("REDIS_URL"),
		RedisChannel:       getEnvString("REDIS_CHANNEL", "task_events"),
		AllowedOrigins:     splitList(os.Getenv("ALLOWED_ORIGINS")),
		TrustedProxies:     splitList(os.Getenv("TRUSTED_PROXIES")),
		LoginRateLimit:     getEnvInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:    getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		WSRateLimit:        getEnvInt("WS_RATE_LIMIT", 30),
		WSRateWindow:       getEnvDuration("WS_RATE_WINDOW", time.Minute),
		TransitionAttempts: getEnvInt("TRANSITION_ATTEMPTS", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite3" {
		return c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresPort)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d: must be between 1 and 65535", c.ServerPort)
	}

	switch c.DBDriver {
	case "postgres":
		required := []struct{ name, value string }{
			{"POSTGRES_USER", c.PostgresUser},
			{"POSTGRES_PASSWORD", c.PostgresPass},
			{"POSTGRES_DB", c.PostgresDB},
		}
		for _, env := range required {
			if env.value == "" {
				return fmt.Errorf("environment variable %s must be set", env.name)
			}
		}
	case "sqlite3":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be postgres or sqlite3", c.DBDriver)
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	upperLevel := strings.ToUpper(strings.TrimSpace(c.LogLevel))
	switch upperLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level '%s': must be DEBUG, INFO, WARN, or ERROR", c.LogLevel)
	}
	c.LogLevel = upperLevel

	if c.ShutdownTimeout <= 0 || c.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("invalid shutdown timeout %v: must be in (0, 5m]", c.ShutdownTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout %v: must be positive", c.RequestTimeout)
	}
	if c.LoginRateLimit < 1 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be at least 1")
	}
	if c.LoginRateWindow <= 0 {
		return fmt.Errorf("invalid login rate window %v: must be positive", c.LoginRateWindow)
	}
	if c.WSRateLimit < 1 {
		return fmt.Errorf("WS_RATE_LIMIT must be at least 1")
	}
	if c.WSRateWindow <= 0 {
		return fmt.Errorf("invalid websocket rate window %v: must be positive", c.WSRateWindow)
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q: must be an IP or CIDR", proxy)
		}
	}
	if c.TransitionAttempts < 1 {
		return fmt.Errorf("TRANSITION_ATTEMPTS must be at least 1")
	}
	if c.RedisURL != "" && strings.TrimSpace(c.RedisChannel) == "" {
		return fmt.Errorf("redis channel cannot be empty when REDIS_URL is set")
	}
	return nil
}
