package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Environment   string
	ServerPort    int
	LogLevel      string
	StorageDriver string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int

	RedisURL        string // empty disables Redis
	ProfileCacheTTL time.Duration

	KafkaBrokers     []string // empty means events are logged instead
	KafkaTopicPrefix string
	OutboxInterval   time.Duration
	OutboxBatchSize  int

	SessionSecret       string
	SessionCookieName   string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	BcryptCost          int

	RateLimitPerMinute      int
	LoginRateLimitPerMinute int
	CORSAllowedOrigins      []string

	DefaultPageSize int
	MaxPageSize     int

	OTLPEndpoint string // empty disables tracing export
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	dbMaxOpen, err := getEnvInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvInt("PROFILE_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	outboxInterval, err := getEnvInt("OUTBOX_INTERVAL_SECONDS", 2)
	if err != nil {
		return nil, err
	}
	outboxBatch, err := getEnvInt("OUTBOX_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getEnvInt("SESSION_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cookieSecure, err := getEnvBool("SESSION_COOKIE_SECURE", false)
	if err != nil {
		return nil, err
	}
	bcryptCost, err := getEnvInt("BCRYPT_COST", 10)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}
	loginRateLimit, err := getEnvInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	defaultPageSize, err := getEnvInt("DEFAULT_PAGE_SIZE", 10)
	if err != nil {
		return nil, err
	}
	maxPageSize, err := getEnvInt("MAX_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	storage := strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres))
	if storage != StoragePostgres && storage != StorageMemory {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER: %q", storage)
	}
	if outboxInterval <= 0 {
		return nil, fmt.Errorf("invalid OUTBOX_INTERVAL_SECONDS: %d, must be positive", outboxInterval)
	}
	if outboxBatch <= 0 {
		return nil, fmt.Errorf("invalid OUTBOX_BATCH_SIZE: %d, must be positive", outboxBatch)
	}
	if defaultPageSize <= 0 || maxPageSize < defaultPageSize {
		return nil, fmt.Errorf("invalid page sizes: default %d, max %d", defaultPageSize, maxPageSize)
	}

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: storage,

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         dbPort,
		DBUser:         getEnv("DB_USER", "datingapp"),
		DBPassword:     getEnv("DB_PASSWORD", "dev"),
		DBName:         getEnv("DB_NAME", "datingapp"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: dbMaxOpen,

		RedisURL:        os.Getenv("REDIS_URL"),
		ProfileCacheTTL: time.Duration(cacheTTL) * time.Second,

		KafkaBrokers:     parseCSVEnv("KAFKA_BROKERS", nil),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "datingapp."),
		OutboxInterval:   time.Duration(outboxInterval) * time.Second,
		OutboxBatchSize:  outboxBatch,

		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "profileId"),
		SessionTTL:          time.Duration(sessionTTL) * time.Hour,
		SessionCookieSecure: cookieSecure,
		BcryptCost:          bcryptCost,

		RateLimitPerMinute:      rateLimit,
		LoginRateLimitPerMinute: loginRateLimit,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),

		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.SessionSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("SESSION_SECRET is required in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
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
