package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aiassistant/internal/ratelimit"
	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
	"aiassistant/services/proxy/internal/app"
	"aiassistant/services/proxy/internal/config"
	"aiassistant/services/proxy/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "proxy", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	var completer ai.Completer
	var model string
	switch cfg.Provider {
	case config.ProviderOllama:
		ollama := ai.NewOllamaClient(cfg.OllamaBaseURL, cfg.Model)
		completer, model = ollama, ollama.Model()
	default:
		groq := ai.NewGroqClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.Model)
		if !groq.Configured() {
			slog.Warn("GROQ_API_KEY not set; chat requests will fail with config_error")
		}
		completer, model = groq, groq.Model()
	}
	appCore, err := app.New(app.Config{Completer: completer, Model: model})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" && cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "assistant:ratelimit:proxy", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Limiter:        limiter,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("proxy server listening", "addr", addr, "provider", cfg.Provider, "model", model, "rate_limited", limiter != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
