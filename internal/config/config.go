package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Addr     string
	LogLevel string

	StoreBackend  string
	RedisURL      string
	DatabaseURL   string
	EncryptionKey string

	// Default credential for the hosted provider. GeminiAPIKeySecret names a
	// Secrets Manager entry and takes precedence over GeminiAPIKey.
	GeminiAPIKey       string
	GeminiAPIKeySecret string

	AWSRegion        string
	ModelCatalogPath string
	OTLPEndpoint     string
	AlertTopicARN    string

	// RequestsPerMinute caps model requests per user. Zero disables the limit.
	RequestsPerMinute int

	ProviderTimeout time.Duration
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:               getEnv("ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiAPIKeySecret: getEnv("GEMINI_API_KEY_SECRET", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		ModelCatalogPath:   getEnv("MODEL_CATALOG_PATH", ""),
		OTLPEndpoint:       getEnv("OTLP_ENDPOINT", ""),
		AlertTopicARN:      getEnv("ALERT_TOPIC_ARN", ""),
		RequestsPerMinute:  getIntEnv("REQUESTS_PER_MINUTE", 0),
		ProviderTimeout:    getDurationEnv("PROVIDER_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if (c.GeminiAPIKeySecret != "" || c.AlertTopicARN != "") && c.AWSRegion == "" {
		errs = append(errs, errors.New("AWS_REGION is required for GEMINI_API_KEY_SECRET and ALERT_TOPIC_ARN"))
	}

	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}

	if c.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("REQUESTS_PER_MINUTE must not be negative"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s", "2m") or bare seconds ("90").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
