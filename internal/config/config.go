package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PushTransportNATS = "nats"
	PushTransportFCM  = "fcm"
	PushTransportLog  = "log"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration

	// NATSURL enables the JetStream change stream. Empty runs the fan-out
	// in-process.
	NATSURL            string
	PushTransport      string
	FCMProjectID       string
	FCMCredentialsFile string

	FanoutBatchSize   int
	FanoutParallelism int
	PushRatePerSec    float64
	StatusCacheTTL    time.Duration
	LogLevel          slog.Level
}

// LoadConfig reads the server configuration from the environment, after
// loading a .env file if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}
	cacheTTL, err := time.ParseDuration(getEnv("STATUS_CACHE_TTL", "24h"))
	if err != nil {
		return nil, errors.New("invalid STATUS_CACHE_TTL format")
	}
	batchSize, err := strconv.Atoi(getEnv("FANOUT_BATCH_SIZE", "500"))
	if err != nil {
		return nil, errors.New("invalid FANOUT_BATCH_SIZE")
	}
	parallelism, err := strconv.Atoi(getEnv("FANOUT_PARALLELISM", "4"))
	if err != nil {
		return nil, errors.New("invalid FANOUT_PARALLELISM")
	}
	pushRate, err := strconv.ParseFloat(getEnv("PUSH_RATE_PER_SEC", "100"), 64)
	if err != nil {
		return nil, errors.New("invalid PUSH_RATE_PER_SEC")
	}
	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          expiry,
		NATSURL:            os.Getenv("NATS_URL"),
		PushTransport:      strings.ToLower(os.Getenv("PUSH_TRANSPORT")),
		FCMProjectID:       os.Getenv("FCM_PROJECT_ID"),
		FCMCredentialsFile: os.Getenv("FCM_CREDENTIALS_FILE"),
		FanoutBatchSize:    batchSize,
		FanoutParallelism:  parallelism,
		PushRatePerSec:     pushRate,
		StatusCacheTTL:     cacheTTL,
		LogLevel:           level,
	}
	if cfg.PushTransport == "" {
		cfg.PushTransport = PushTransportLog
		if cfg.NATSURL != "" {
			cfg.PushTransport = PushTransportNATS
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.PushTransport {
	case PushTransportNATS:
		if c.NATSURL == "" {
			return errors.New("PUSH_TRANSPORT=nats requires NATS_URL")
		}
	case PushTransportFCM:
		if c.FCMProjectID == "" && c.FCMCredentialsFile == "" {
			return errors.New("PUSH_TRANSPORT=fcm requires FCM_PROJECT_ID or FCM_CREDENTIALS_FILE")
		}
	case PushTransportLog:
	default:
		return fmt.Errorf("unknown PUSH_TRANSPORT %q", c.PushTransport)
	}
	if c.FanoutBatchSize < 1 || c.FanoutBatchSize > 500 {
		return errors.New("FANOUT_BATCH_SIZE must be between 1 and 500")
	}
	if c.FanoutParallelism < 1 {
		return errors.New("FANOUT_PARALLELISM must be positive")
	}
	if c.PushRatePerSec <= 0 {
		return errors.New("PUSH_RATE_PER_SEC must be positive")
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
