package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
)

type Config struct {
	Env  string // Environment (dev, staging, prod) (default: dev)
	Port int    // HTTP server port (default: 5000)

	AccessSecret  string        // Required in prod: HMAC key for access tokens
	RefreshSecret string        // Required in prod: HMAC key for refresh tokens, distinct from AccessSecret
	AccessTTL     time.Duration // Access token lifetime (default: 15m)
	RefreshTTL    time.Duration // Refresh token lifetime (default: 7d)
	Issuer        string        // Issuer claim for tokens (default: sessionauth)

	ClientURL string // Web client origin; used for CORS and email links (default: http://localhost:3000)

	EmailHost        string // SMTP relay; empty writes emails to EmailDir instead
	EmailPort        int    // SMTP port (default: 587)
	EmailSecure      bool   // Implicit TLS (default: false)
	EmailUser        string
	EmailPassword    string
	EmailFromName    string // Display name of the sender (default: Auth Service)
	EmailFromAddress string // Sender address (default: noreply@example.com)
	EmailDir         string // Where emails are written without a relay (default: ./emails)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database file (default: ./auth.db)
	DatabaseURL    string // PostgreSQL DSN, required for the postgres driver
	PepperFile     string // File containing the password pepper (default: ./pepper)

	RedisURL   string // Optional: share rate limit counters through Redis
	TrustProxy int    // Reverse proxy hops whose X-Forwarded-For entries are trusted (default: 0)

	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	RequestTimeout       time.Duration // Per-request deadline (default: 10s)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Env:  getEnvOrDefault("ENV", getEnvOrDefault("NODE_ENV", "dev")),
		Port: getEnvIntOrDefault("PORT", 5000),

		AccessSecret:  os.Getenv("JWT_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessTTL:     getEnvDurationOrDefault("JWT_EXPIRES_IN", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("REFRESH_TOKEN_EXPIRES_IN", jwtx.DefaultRefreshTokenTTL),
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "sessionauth"),

		ClientURL: getEnvOrDefault("CLIENT_URL", "http://localhost:3000"),

		EmailHost:        os.Getenv("EMAIL_HOST"),
		EmailPort:        getEnvIntOrDefault("EMAIL_PORT", 587),
		EmailSecure:      getEnvBoolOrDefault("EMAIL_SECURE", false),
		EmailUser:        os.Getenv("EMAIL_USER"),
		EmailPassword:    os.Getenv("EMAIL_PASSWORD"),
		EmailFromName:    getEnvOrDefault("EMAIL_FROM_NAME", "Auth Service"),
		EmailFromAddress: getEnvOrDefault("EMAIL_FROM_ADDRESS", "noreply@example.com"),
		EmailDir:         getEnvOrDefault("EMAIL_DIR", "emails"),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "auth.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		RedisURL:   os.Getenv("RATE_LIMIT_REDIS_URL"),
		TrustProxy: getEnvIntOrDefault("TRUST_PROXY", 0),

		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		RequestTimeout:       getEnvDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.IsProduction() {
		if c.AccessSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.RefreshSecret == "" {
			errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required in production"))
		}
		if c.EmailHost == "" {
			errs = append(errs, errors.New("EMAIL_HOST is required in production"))
		}
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if (c.AccessSecret == "") != (c.RefreshSecret == "") {
		errs = append(errs, errors.New("JWT_SECRET and REFRESH_TOKEN_SECRET must be set together"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}

	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if c.TrustProxy < 0 {
		errs = append(errs, fmt.Errorf("invalid TRUST_PROXY %d", c.TrustProxy))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if d, ok := parseDuration(os.Getenv(key)); ok {
		return d
	}
	return defaultValue
}

// parseDuration accepts Go durations ("15m", "1h30m"), whole days ("7d") and,
// for backwards compatibility, bare integers as minutes.
func parseDuration(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration, true
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, true
		}
	}

	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute, true
	}

	return 0, false
}
