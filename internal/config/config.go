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

type Config struct {
	ListenAddr           string
	BackendURL           string
	HealthPath           string
	CacheTTLSeconds      int
	HTTPTimeoutSeconds   int
	HealthTimeoutSeconds int
	RetryMax             int
	RedisAddr            string
	RedisDB              int
	RedisPassword        string
	RedisChannel         string
	S3Endpoint           string
	S3Region             string
	S3Bucket             string
	S3AccessKey          string
	S3SecretKey          string
	S3Prefix             string
	LogLevel             slog.Level
	LogFile              string
}

// Load reads the configuration from the environment.
// Variables from a .env file in the working directory are loaded first, without overriding the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	level, err := ParseLevel(getenv("PAINEL_LOG_LEVEL", "INFO"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ListenAddr:           getenv("PAINEL_LISTEN_ADDR", ":8080"),
		BackendURL:           getenv("PAINEL_BACKEND_URL", ""),
		HealthPath:           getenv("PAINEL_HEALTH_PATH", "/api/health"),
		CacheTTLSeconds:      getenvInt("PAINEL_CACHE_TTL_SECONDS", 300),
		HTTPTimeoutSeconds:   getenvInt("PAINEL_HTTP_TIMEOUT_SECONDS", 10),
		HealthTimeoutSeconds: getenvInt("PAINEL_HEALTH_TIMEOUT_SECONDS", 3),
		RetryMax:             getenvInt("PAINEL_RETRY_MAX", 0),
		RedisAddr:            getenv("PAINEL_REDIS_ADDR", ""),
		RedisDB:              getenvInt("PAINEL_REDIS_DB", 0),
		RedisPassword:        os.Getenv("PAINEL_REDIS_PASSWORD"),
		RedisChannel:         getenv("PAINEL_REDIS_CHANNEL", "painel:invalidate"),
		S3Endpoint:           getenv("PAINEL_S3_ENDPOINT", ""),
		S3Region:             getenv("PAINEL_S3_REGION", "us-east-1"),
		S3Bucket:             getenv("PAINEL_S3_BUCKET", ""),
		S3AccessKey:          os.Getenv("PAINEL_S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("PAINEL_S3_SECRET_KEY"),
		S3Prefix:             getenv("PAINEL_S3_PREFIX", "audit"),
		LogLevel:             level,
		LogFile:              getenv("PAINEL_LOG_FILE", ""),
	}

	if cfg.BackendURL == "" {
		return cfg, errors.New("PAINEL_BACKEND_URL is required")
	}
	if cfg.CacheTTLSeconds <= 0 {
		return cfg, errors.New("PAINEL_CACHE_TTL_SECONDS must be positive")
	}
	if cfg.AuditEnabled() && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return cfg, errors.New("S3 access/secret are required when PAINEL_S3_BUCKET is set")
	}
	return cfg, nil
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

func (c Config) BusEnabled() bool {
	return c.RedisAddr != ""
}

func (c Config) AuditEnabled() bool {
	return c.S3Bucket != ""
}

func ParseLevel(value string) (slog.Level, error) {
	m := map[string]slog.Level{"DEBUG": slog.LevelDebug, "INFO": slog.LevelInfo, "WARN": slog.LevelWarn, "ERROR": slog.LevelError}
	v, ok := m[strings.ToUpper(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("unknown log level: %q", value)
	}
	return v, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
