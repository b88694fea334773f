package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when CONFIG_PATH is unset.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	ProxyURL        string `yaml:"proxyURL"`
	ProxyTimeout    string `yaml:"proxyTimeout"`
	HistoryLimit    int    `yaml:"historyLimit"`
	MaxExplanations int    `yaml:"maxExplanations"`
	MaxWorkspaces   int    `yaml:"maxWorkspaces"`

	// ExplanationFallbacks maps a selected term to canned text used when the
	// completion call fails. Keys match case-insensitively.
	ExplanationFallbacks map[string]string `yaml:"explanationFallbacks"`

	StoreBackend  string `yaml:"storeBackend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisPrefix   string `yaml:"redisPrefix"`
	BoltPath      string `yaml:"boltPath"`
	DatabaseURL   string `yaml:"databaseURL"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	SendRateLimitPerMinute int      `yaml:"sendRateLimitPerMinute"`
	TrustedProxyCIDRs      []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins         []string `yaml:"allowedOrigins"`

	AMQPURL           string `yaml:"amqpURL"`
	AMQPExchange      string `yaml:"amqpExchange"`
	EventStream       string `yaml:"eventStream"`
	EventStreamMaxLen int64  `yaml:"eventStreamMaxLen"`

	MinioEndpoint    string `yaml:"minioEndpoint"`
	MinioAccessKey   string `yaml:"minioAccessKey"`
	MinioSecretKey   string `yaml:"minioSecretKey"`
	MinioBucket      string `yaml:"minioBucket"`
	MinioUseSSL      bool   `yaml:"minioUseSSL"`
	ExportLinkExpiry string `yaml:"exportLinkExpiry"`
}

// Path resolves the config file location.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path. A missing file leaves the defaults in place
// so the service can run from environment variables alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:             "8080",
		LogLevel:         "info",
		ProxyURL:         "http://localhost:8081",
		ProxyTimeout:     "90s",
		HistoryLimit:     10,
		MaxExplanations:  8,
		MaxWorkspaces:    1024,
		StoreBackend:     "memory",
		AMQPExchange:     "assistant.events",
		ExportLinkExpiry: "15m",
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("WORKSPACE_PROXY_URL"); v != "" {
		cfg.ProxyURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("WORKSPACE_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("WORKSPACE_MAX_RESIDENT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxWorkspaces = n
		}
	}
	if v := os.Getenv("WORKSPACE_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("WORKSPACE_BOLT_PATH"); v != "" {
		cfg.BoltPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("WORKSPACE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("WORKSPACE_JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("WORKSPACE_JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("WORKSPACE_SEND_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SendRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("WORKSPACE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("WORKSPACE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("WORKSPACE_EVENT_STREAM"); v != "" {
		cfg.EventStream = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.ProxyURL) == "" {
		return errors.New("config: proxyURL is required (set in config.yaml or WORKSPACE_PROXY_URL)")
	}
	if cfg.HistoryLimit <= 0 {
		return errors.New("config: historyLimit must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis store backend")
		}
	case "bolt":
		if strings.TrimSpace(cfg.BoltPath) == "" {
			return errors.New("config: boltPath is required for the bolt store backend")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("config: unknown storeBackend %q", cfg.StoreBackend)
	}
	if cfg.SendRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when sendRateLimitPerMinute is set")
	}
	if strings.TrimSpace(cfg.EventStream) != "" && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when eventStream is set")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" && strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	if _, err := ParseDuration(cfg.ProxyTimeout, 90*time.Second); err != nil {
		return fmt.Errorf("config: proxyTimeout: %w", err)
	}
	if _, err := ParseDuration(cfg.JWTLeeway, 0); err != nil {
		return fmt.Errorf("config: jwtLeeway: %w", err)
	}
	if _, err := ParseDuration(cfg.ExportLinkExpiry, 15*time.Minute); err != nil {
		return fmt.Errorf("config: exportLinkExpiry: %w", err)
	}
	return nil
}

// ParseDuration parses a Go duration string, returning def when value is
// blank. Negative durations are rejected.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0, got %s", value)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
