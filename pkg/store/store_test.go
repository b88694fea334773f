package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// exerciseKV runs the shared contract every backend must satisfy.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "ws:missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "ws:ai-assistant-sidebar", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "ws:ai-assistant-sidebar")
	if err != nil || !ok || v != "true" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
	doc := `[{"id":"c1","title":"Explain recursion","messages":[]}]`
	if err := kv.Set(ctx, "ws:ai-assistant-conversations", doc); err != nil {
		t.Fatalf("set doc: %v", err)
	}
	if err := kv.Set(ctx, "ws:ai-assistant-sidebar", "false"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ := kv.Get(ctx, "ws:ai-assistant-sidebar"); v != "false" {
		t.Fatalf("overwrite lost, got %q", v)
	}
	if v, _, _ := kv.Get(ctx, "ws:ai-assistant-conversations"); v != doc {
		t.Fatalf("doc = %q", v)
	}
	if err := kv.Delete(ctx, "ws:ai-assistant-sidebar"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := kv.Delete(ctx, "ws:ai-assistant-sidebar"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "ws:ai-assistant-sidebar"); ok {
		t.Fatalf("expected key to be gone")
	}
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	exerciseKV(t, kv)
	_ = kv.Close()
	if _, _, err := kv.Get(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestRedisKV(t *testing.T) {
	srv := miniredis.RunT(t)
	kv := NewRedisKV(srv.Addr(), "", "test:")
	t.Cleanup(func() { _ = kv.Close() })
	exerciseKV(t, kv)

	if err := kv.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := srv.Get("test:k"); err != nil || got != "v" {
		t.Fatalf("prefixed key = %q %v", got, err)
	}
}

func TestRedisKVUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	kv := NewRedisKV(srv.Addr(), "", "")
	t.Cleanup(func() { _ = kv.Close() })
	srv.Close()
	if _, _, err := kv.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from stopped server")
	}
}

func TestBoltKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "workspace.db")
	kv, err := NewBoltKV(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseKV(t, kv)
	if err := kv.Set(context.Background(), "persist", "yes"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBoltKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if v, ok, err := reopened.Get(context.Background(), "persist"); err != nil || !ok || v != "yes" {
		t.Fatalf("value after reopen = %q %v %v", v, ok, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, Config{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := kv.(*MemoryKV); !ok {
		t.Fatalf("expected memory backend, got %T", kv)
	}

	srv := miniredis.RunT(t)
	kv, err = Open(ctx, Config{Backend: "Redis", RedisAddr: srv.Addr()})
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	_ = kv.Close()

	kv, err = Open(ctx, Config{Backend: BackendBolt, BoltPath: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatalf("bolt backend: %v", err)
	}
	_ = kv.Close()

	for _, bad := range []Config{
		{Backend: "cassandra"},
		{Backend: BackendRedis},
		{Backend: BackendBolt},
		{Backend: BackendPostgres},
	} {
		if _, err := Open(ctx, bad); err == nil {
			t.Fatalf("Open(%+v) should fail", bad)
		}
	}
}
