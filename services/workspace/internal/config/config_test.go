package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.HistoryLimit != 10 || cfg.StoreBackend != "memory" || cfg.MaxExplanations != 8 || cfg.MaxWorkspaces != 1024 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFileWithFallbacks(t *testing.T) {
	path := writeConfig(t, `
storeBackend: bolt
boltPath: /tmp/ws.db
historyLimit: 6
explanationFallbacks:
  API: An API is a contract between programs.
`)
	t.Setenv("WORKSPACE_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != "bolt" || cfg.HistoryLimit != 6 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ExplanationFallbacks["API"] == "" {
		t.Fatalf("fallbacks = %v", cfg.ExplanationFallbacks)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WORKSPACE_STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("WORKSPACE_JWT_SECRET", "s3cret")
	t.Setenv("MINIO_USE_SSL", "true")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != "redis" || cfg.JWTSecret != "s3cret" || !cfg.MinioUseSSL {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]string{
		"redis without addr":     "storeBackend: redis",
		"bolt without path":      "storeBackend: bolt",
		"postgres without dsn":   "storeBackend: postgres",
		"unknown backend":        "storeBackend: sqlite",
		"history limit":          "historyLimit: -1",
		"rate limit needs redis": "sendRateLimitPerMinute: 5",
		"stream needs redis":     "eventStream: assistant-events",
		"minio needs bucket":     "minioEndpoint: localhost:9000",
		"bad leeway":             "jwtLeeway: soon",
		"negative expiry":        "exportLinkExpiry: -1m",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = ParseDuration(" 30s ", time.Minute)
	if err != nil || d != 30*time.Second {
		t.Fatalf("parse: %v %v", d, err)
	}
}
