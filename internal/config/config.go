package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Support backend (tickets, messages, profile, auth)
	API APIConfig

	// E-commerce backend (customers, orders)
	Commerce CommerceConfig

	// Realtime gateway configuration
	Socket SocketConfig

	// Local persisted state
	Session SessionConfig

	// Local status endpoint
	Status StatusConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// APIConfig holds REST client configuration
type APIConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// CommerceConfig holds the e-commerce client configuration
type CommerceConfig struct {
	BaseURL          string
	CustomerCacheTTL time.Duration
}

// SocketConfig holds realtime connection configuration
type SocketConfig struct {
	URL               string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
	ReconcileWindow   time.Duration
}

// SessionConfig holds the session store configuration
type SessionConfig struct {
	DBPath string
}

// StatusConfig holds the local status server configuration
type StatusConfig struct {
	Addr           string
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables, reading envFiles first
// when given and falling back to a .env in the working directory.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	apiURL := NormalizeURL(os.Getenv("SUPPORT_API_URL"))

	cfg := &Config{
		API: APIConfig{
			BaseURL:        apiURL,
			Timeout:        getDurationOrDefault("HTTP_TIMEOUT", 15*time.Second),
			RateLimitRPS:   getFloatOrDefault("HTTP_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getIntOrDefault("HTTP_RATE_LIMIT_BURST", 20),
		},
		Commerce: CommerceConfig{
			BaseURL:          NormalizeURL(os.Getenv("ECOMMERCE_API_URL")),
			CustomerCacheTTL: getDurationOrDefault("CUSTOMER_CACHE_TTL", 5*time.Minute),
		},
		Socket: SocketConfig{
			URL:               NormalizeURL(getEnvOrDefault("SOCKET_URL", SocketURLFromAPI(apiURL))),
			ConnectTimeout:    getDurationOrDefault("SOCKET_CONNECT_TIMEOUT", 10*time.Second),
			ReconnectAttempts: getIntOrDefault("SOCKET_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    getDurationOrDefault("SOCKET_RECONNECT_DELAY", 2*time.Second),
			PingInterval:      getDurationOrDefault("SOCKET_PING_INTERVAL", 25*time.Second),
			PongWait:          getDurationOrDefault("SOCKET_PONG_WAIT", 60*time.Second),
			ReconcileWindow:   getDurationOrDefault("SOCKET_RECONCILE_WINDOW", 2*time.Minute),
		},
		Session: SessionConfig{
			DBPath: getEnvOrDefault("SESSION_DB_PATH", "agent-console.db"),
		},
		Status: StatusConfig{
			Addr:           getEnvOrDefault("STATUS_ADDR", ""),
			AllowedOrigins: getStringSliceOrDefault("STATUS_ALLOWED_ORIGINS", []string{}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "agent-console"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.API.BaseURL == "" {
		errs = append(errs, "SUPPORT_API_URL is required")
	} else if !isHTTPURL(c.API.BaseURL) {
		errs = append(errs, "SUPPORT_API_URL must be an http(s) URL")
	}

	if c.Commerce.BaseURL != "" && !isHTTPURL(c.Commerce.BaseURL) {
		errs = append(errs, "ECOMMERCE_API_URL must be an http(s) URL")
	}

	if c.Socket.URL == "" {
		errs = append(errs, "SOCKET_URL is required")
	} else if u, err := url.Parse(c.Socket.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, "SOCKET_URL must be a ws(s) URL")
	}

	if c.Session.DBPath == "" {
		errs = append(errs, "SESSION_DB_PATH cannot be empty")
	}

	// Logical validations
	if c.Socket.ConnectTimeout <= 0 {
		errs = append(errs, "SOCKET_CONNECT_TIMEOUT must be greater than 0")
	}

	if c.Socket.ReconnectAttempts < 0 {
		errs = append(errs, "SOCKET_RECONNECT_ATTEMPTS cannot be negative")
	}

	if c.Socket.ReconnectDelay < 0 {
		errs = append(errs, "SOCKET_RECONNECT_DELAY cannot be negative")
	}

	if c.Socket.PingInterval >= c.Socket.PongWait {
		errs = append(errs, "SOCKET_PING_INTERVAL must be less than SOCKET_PONG_WAIT")
	}

	if c.API.RateLimitRPS <= 0 {
		errs = append(errs, "HTTP_RATE_LIMIT_RPS must be greater than 0")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// NormalizeURL strips trailing slashes so paths can be appended directly.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// SocketURLFromAPI derives the gateway URL from the REST base URL; the
// gateway is served by the support backend on the same host.
func SocketURLFromAPI(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return ""
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{API: %s, Commerce: %s, Socket: %s, Session: %s, Environment: %s}",
		c.API.BaseURL,
		c.Commerce.BaseURL,
		redactQuery(c.Socket.URL),
		c.Session.DBPath,
		c.App.Environment,
	)
}

// redactQuery drops any query string, which may carry a token
func redactQuery(raw string) string {
	if idx := strings.Index(raw, "?"); idx >= 0 {
		return raw[:idx] + "?[REDACTED]"
	}
	return raw
}
