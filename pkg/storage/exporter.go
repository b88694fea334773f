package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aiassistant/pkg/domain"
)

const DefaultLinkExpiry = 15 * time.Minute

// Export describes an uploaded card collection.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Cards     int       `json:"cards"`
}

type exportDocument struct {
	WorkspaceID string               `json:"workspaceId"`
	ExportedAt  time.Time            `json:"exportedAt"`
	Cards       []domain.ContentCard `json:"cards"`
}

// CardExporter writes a workspace's cards as a JSON document and hands back
// a time-limited download link.
type CardExporter struct {
	bucket ExportBucket
	expiry time.Duration
	now    func() time.Time
}

func NewCardExporter(bucket ExportBucket, expiry time.Duration) *CardExporter {
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	return &CardExporter{bucket: bucket, expiry: expiry, now: func() time.Time { return time.Now().UTC() }}
}

// Export uploads cards to exports/<workspace>/<timestamp>.json.
func (e *CardExporter) Export(ctx context.Context, workspaceID string, cards []domain.ContentCard) (Export, error) {
	now := e.now()
	if cards == nil {
		cards = []domain.ContentCard{}
	}
	body, err := json.MarshalIndent(exportDocument{WorkspaceID: workspaceID, ExportedAt: now, Cards: cards}, "", "  ")
	if err != nil {
		return Export{}, fmt.Errorf("encode export: %w", err)
	}
	key := fmt.Sprintf("exports/%s/%s.json", workspaceID, now.Format("20060102T150405.000Z"))
	if err := e.bucket.Upload(ctx, key, body); err != nil {
		return Export{}, err
	}
	url, err := e.bucket.Link(ctx, key, e.expiry)
	if err != nil {
		// An export nobody can download is garbage.
		_ = e.bucket.Discard(ctx, key)
		return Export{}, err
	}
	return Export{Key: key, URL: url, ExpiresAt: now.Add(e.expiry), Cards: len(cards)}, nil
}
