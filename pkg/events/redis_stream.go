package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStreamConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

// RedisStreamPublisher appends events to a capped Redis stream.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewRedisStreamPublisherWithClient(
		redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		cfg.Stream, cfg.MaxLen,
	), nil
}

func NewRedisStreamPublisherWithClient(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamPublisher {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "assistant:events"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":            string(e.Type),
			"workspace_id":    e.WorkspaceID,
			"conversation_id": e.ConversationID,
			"message_id":      e.MessageID,
			"card_id":         e.CardID,
			"at":              e.At.UTC().Format(time.RFC3339Nano),
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", e.Type, err)
	}
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	return p.client.Close()
}
