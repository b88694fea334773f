package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when CONFIG_PATH is unset.
const ConfigPath = "config.yaml"

// Completion providers.
const (
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port               string   `yaml:"port"`
	LogLevel           string   `yaml:"logLevel"`
	LogsDir            string   `yaml:"logsDir"`
	Provider           string   `yaml:"provider"`
	GroqAPIKey         string   `yaml:"groqAPIKey"`
	GroqBaseURL        string   `yaml:"groqBaseURL"`
	Model              string   `yaml:"model"`
	OllamaBaseURL      string   `yaml:"ollamaBaseURL"`
	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins     []string `yaml:"allowedOrigins"`
}

// Path resolves the config file location.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path. A missing file is not an error: the service
// can be configured from the environment alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:               "8081",
		LogLevel:           "info",
		Provider:           ProviderGroq,
		RateLimitPerMinute: 20,
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
	if v := os.Getenv("PROXY_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.GroqAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("GROQ_BASE_URL"); v != "" {
		cfg.GroqBaseURL = v
	}
	if v := os.Getenv("GROQ_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("PROXY_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("PROXY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("PROXY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// A missing API key is deliberately not rejected here: requests report it
// as a config_error instead.
func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.Provider {
	case ProviderGroq, ProviderOllama:
	default:
		return fmt.Errorf("config: unknown provider %q (groq or ollama)", cfg.Provider)
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	return nil
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
