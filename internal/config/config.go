package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/logger"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

const devJWTSecret = "dev-only-secret-change-me"

// Config holds all configuration for the clinic review service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"REVIEW_HTTP_PORT" envDefault:"8010"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"dentaltrip"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"dentaltrip_secret"`
	PostgresDB   string `env:"REVIEW_DB_NAME" envDefault:"clinic_reviews"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// MongoDB
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"clinic_reviews"`

	// Redis backs the cross-instance recompute lock and the breakdown cache.
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// The recompute lock lease. Holders renew it every third of the TTL, so
	// it only bounds how long a crashed instance blocks its clinic.
	LockTTLSeconds      int `env:"LOCK_TTL_SECONDS" envDefault:"10"`
	ViewCacheTTLSeconds int `env:"VIEW_CACHE_TTL_SECONDS" envDefault:"300"`

	// Kafka
	KafkaEnabled             bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers             []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	RecomputeConsumerEnabled bool     `env:"RECOMPUTE_CONSUMER_ENABLED" envDefault:"false"`

	// Authentication and authorization
	JWTSecret      string   `env:"JWT_SECRET" envDefault:"dev-only-secret-change-me"`
	AdminAllowlist []string `env:"ADMIN_ALLOWLIST" envSeparator:","`

	// Review submission
	SubmitRatePerMinute int `env:"SUBMIT_RATE_PER_MINUTE" envDefault:"5"`
	SubmitBurst         int `env:"SUBMIT_BURST" envDefault:"3"`
	MinReviewTextLength int `env:"MIN_REVIEW_TEXT_LENGTH" envDefault:"30"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	PprofAllowedCIDRs    []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
	SlowQueryThresholdMs int      `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	cfg.AdminAllowlist = normalizeList(cfg.AdminAllowlist)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.StoreDriver)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.RecomputeConsumerEnabled && !c.KafkaEnabled {
		return fmt.Errorf("RECOMPUTE_CONSUMER_ENABLED requires KAFKA_ENABLED")
	}
	if c.Environment == "production" && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.SubmitRatePerMinute < 1 || c.SubmitBurst < 1 {
		return fmt.Errorf("SUBMIT_RATE_PER_MINUTE and SUBMIT_BURST must be positive")
	}
	if c.MinReviewTextLength < 1 {
		return fmt.Errorf("MIN_REVIEW_TEXT_LENGTH must be positive, got %d", c.MinReviewTextLength)
	}
	if c.LockTTLSeconds < 1 {
		return fmt.Errorf("LOCK_TTL_SECONDS must be positive, got %d", c.LockTTLSeconds)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	pg := c.Postgres()
	return pg.DSN()
}

// Mongo returns the MongoDB client configuration.
func (c *Config) Mongo() database.MongoConfig {
	m := database.DefaultMongoConfig()
	m.URI = c.MongoURI
	m.Database = c.MongoDatabase
	return m
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// LockTTL is the lease of a recompute lock.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ViewCacheTTL is how long a cached category breakdown lives.
func (c *Config) ViewCacheTTL() time.Duration {
	return time.Duration(c.ViewCacheTTLSeconds) * time.Second
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
