package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aiassistant/internal/ratelimit"
	"aiassistant/internal/util"
	"aiassistant/internal/workspacetoken"
	"aiassistant/pkg/events"
	"aiassistant/pkg/storage"
	"aiassistant/pkg/store"
	"aiassistant/services/workspace/internal/app"
	"aiassistant/services/workspace/internal/chatclient"
	"aiassistant/services/workspace/internal/config"
	"aiassistant/services/workspace/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "workspace", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	ctx := context.Background()

	kv, err := store.Open(ctx, store.Config{
		Backend:       cfg.StoreBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisPrefix:   cfg.RedisPrefix,
		BoltPath:      cfg.BoltPath,
		PostgresDSN:   cfg.DatabaseURL,
	})
	if err != nil {
		util.Fatal("failed to open store", "backend", cfg.StoreBackend, "err", err)
	}
	defer kv.Close()

	proxyTimeout, _ := config.ParseDuration(cfg.ProxyTimeout, 90*time.Second)
	client := chatclient.NewClient(cfg.ProxyURL, proxyTimeout)

	hub := events.NewHub(64)
	publishers := events.Multi{hub}
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			util.Fatal("failed to init amqp publisher", "err", err)
		}
		publishers = append(publishers, amqpPub)
	}
	if strings.TrimSpace(cfg.EventStream) != "" {
		streamPub, err := events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventStream,
			MaxLen:   cfg.EventStreamMaxLen,
		})
		if err != nil {
			util.Fatal("failed to init event stream", "err", err)
		}
		publishers = append(publishers, streamPub)
	}
	defer publishers.Close()

	var exporter app.Exporter
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		bucket, err := storage.NewMinioBucket(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
		expiry, _ := config.ParseDuration(cfg.ExportLinkExpiry, 15*time.Minute)
		exporter = storage.NewCardExporter(bucket, expiry)
	}

	var tokens *workspacetoken.Codec
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		leeway, _ := config.ParseDuration(cfg.JWTLeeway, 0)
		tokens, err = workspacetoken.New(workspacetoken.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   leeway,
		})
		if err != nil {
			util.Fatal("failed to init workspace tokens", "err", err)
		}
	} else {
		slog.Warn("WORKSPACE_JWT_SECRET not set; workspaces are selected by the X-Workspace-Id header")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}

	var sendLimiter *ratelimit.FixedWindowLimiter
	if cfg.SendRateLimitPerMinute > 0 {
		sendLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "assistant:ratelimit:send", cfg.SendRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	manager, err := app.New(app.Config{
		KV:              kv,
		Completer:       client,
		Publisher:       publishers,
		Exporter:        exporter,
		HistoryLimit:    cfg.HistoryLimit,
		MaxExplanations: cfg.MaxExplanations,
		MaxWorkspaces:   cfg.MaxWorkspaces,
		Fallbacks:       cfg.ExplanationFallbacks,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer := server.New(server.Config{
		Manager:        manager,
		Hub:            hub,
		Tokens:         tokens,
		SendLimiter:    sendLimiter,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// No write timeout: /api/ws holds its connection open and sends wait on
	// the completion proxy.
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("workspace server listening",
		"addr", addr,
		"store", cfg.StoreBackend,
		"proxy", cfg.ProxyURL,
		"token_auth", tokens != nil,
		"export", exporter != nil,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
