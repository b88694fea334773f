package store

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

// Runs against a real Postgres only when WORKSPACE_TEST_DATABASE_URL is set.
func openTestGormKV(t *testing.T) *GormKV {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("WORKSPACE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("WORKSPACE_TEST_DATABASE_URL not set")
	}
	kv, err := NewGormKV(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		kv.db.Where("key LIKE ?", "ws:%").Delete(&KVEntryModel{})
		_ = kv.Close()
	})
	return kv
}

func TestGormKV(t *testing.T) {
	exerciseKV(t, openTestGormKV(t))
}

func TestGormKVUpsertKeepsOneRow(t *testing.T) {
	kv := openTestGormKV(t)
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return first }
	// A bare id is not valid JSON on its own; it must round-trip as a string.
	if err := kv.Set(ctx, "ws:ai-assistant-active-conversation", "c-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	kv.now = func() time.Time { return first.Add(time.Hour) }
	if err := kv.Set(ctx, "ws:ai-assistant-active-conversation", "c-2"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var rows []KVEntryModel
	if err := kv.db.Where("key = ?", "ws:ai-assistant-active-conversation").Find(&rows).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	var stored string
	if err := json.Unmarshal(rows[0].Value, &stored); err != nil || stored != "c-2" {
		t.Fatalf("stored %s err=%v", rows[0].Value, err)
	}
	if !rows[0].UpdatedAt.Equal(first.Add(time.Hour)) {
		t.Fatalf("updated_at = %v", rows[0].UpdatedAt)
	}
	if v, ok, err := kv.Get(ctx, "ws:ai-assistant-active-conversation"); err != nil || !ok || v != "c-2" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
}
