// Package config loads all runtime tunables from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP       HTTPConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Registries RegistriesConfig
	Validation ValidationConfig
	Tokens     TokenConfig
}

// HTTPConfig captures HTTP server level configuration.
type HTTPConfig struct {
	Addr           string
	RequestTimeout time.Duration
}

// PostgresConfig holds the database connection settings. An empty URL selects
// the in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig holds Redis connection settings. An empty URL selects the
// in-memory cache and token stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit sink settings. No brokers means no sink; audit
// events still land in the store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuthConfig holds reviewer authentication settings.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
}

// RegistriesConfig points at the two external registries.
type RegistriesConfig struct {
	CompanyBaseURL  string
	TaxBaseURL      string
	RateLimit       int
	RateLimitWindow time.Duration
}

// ValidationConfig carries the validation cache tunables.
type ValidationConfig struct {
	CompanyTTL        time.Duration
	TaxTTL            time.Duration
	RegistryTimeout   time.Duration
	MaxBatchSize      int
	LookupConcurrency int
	SweepInterval     time.Duration
}

// TokenConfig carries the confirmation-token tunables.
type TokenConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// FromEnv builds the configuration from environment variables, with dev
// defaults for everything but secrets used in production.
func FromEnv() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           envString("VERIFLOW_ADDR", ":8080"),
			RequestTimeout: envDuration("VERIFLOW_REQUEST_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("VERIFLOW_POSTGRES_URL"),
			MaxOpenConns: envInt("VERIFLOW_POSTGRES_MAX_OPEN_CONNS", 25),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("VERIFLOW_REDIS_URL"),
			PoolSize:     envInt("VERIFLOW_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VERIFLOW_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("VERIFLOW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VERIFLOW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VERIFLOW_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("VERIFLOW_KAFKA_BROKERS"),
			Topic:   os.Getenv("VERIFLOW_KAFKA_AUDIT_TOPIC"),
		},
		Auth: AuthConfig{
			// Override in production.
			JWTSigningKey: envString("VERIFLOW_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envString("VERIFLOW_JWT_ISSUER", "veriflow"),
		},
		Registries: RegistriesConfig{
			CompanyBaseURL:  envString("VERIFLOW_COMPANY_REGISTRY_URL", "https://api.kvk.nl/test/api/v1/basisprofielen"),
			TaxBaseURL:      envString("VERIFLOW_TAX_REGISTRY_URL", "https://ec.europa.eu/taxation_customs/vies/rest-api/check-vat-number"),
			RateLimit:       envInt("VERIFLOW_REGISTRY_RATE_LIMIT", 100),
			RateLimitWindow: envDuration("VERIFLOW_REGISTRY_RATE_WINDOW", time.Minute),
		},
		Validation: ValidationConfig{
			CompanyTTL:        envDuration("VERIFLOW_COMPANY_CACHE_TTL", 15*time.Minute),
			TaxTTL:            envDuration("VERIFLOW_TAX_CACHE_TTL", time.Hour),
			RegistryTimeout:   envDuration("VERIFLOW_REGISTRY_TIMEOUT", 5*time.Second),
			MaxBatchSize:      envInt("VERIFLOW_MAX_BATCH_SIZE", 50),
			LookupConcurrency: envInt("VERIFLOW_LOOKUP_CONCURRENCY", 8),
			SweepInterval:     envDuration("VERIFLOW_CACHE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Tokens: TokenConfig{
			TTL:           envDuration("VERIFLOW_TOKEN_TTL", 24*time.Hour),
			SweepInterval: envDuration("VERIFLOW_TOKEN_SWEEP_INTERVAL", time.Hour),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
