package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const exportContentType = "application/json"

// ExportBucket holds exported card documents until their links expire.
type ExportBucket interface {
	Upload(ctx context.Context, key string, doc []byte) error
	// Link returns a download URL for key that stops working after ttl.
	Link(ctx context.Context, key string, ttl time.Duration) (string, error)
	Discard(ctx context.Context, key string) error
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBucket keeps exports in a MinIO or S3 compatible bucket.
type MinioBucket struct {
	client *minio.Client
	bucket string
}

// NewMinioBucket connects and creates the bucket when it is missing.
func NewMinioBucket(ctx context.Context, cfg MinioConfig) (*MinioBucket, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio endpoint and bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	b := &MinioBucket{client: client, bucket: cfg.Bucket}
	if err := b.ensure(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MinioBucket) ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check export bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create export bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *MinioBucket) Upload(ctx context.Context, key string, doc []byte) error {
	opts := minio.PutObjectOptions{
		ContentType:        exportContentType,
		ContentDisposition: attachment(key),
	}
	if _, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(doc), int64(len(doc)), opts); err != nil {
		return fmt.Errorf("upload export %s: %w", key, err)
	}
	return nil
}

func (b *MinioBucket) Link(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", attachment(key))
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("sign export link %s: %w", key, err)
	}
	return u.String(), nil
}

func (b *MinioBucket) Discard(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("discard export %s: %w", key, err)
	}
	return nil
}

// attachment names the download after the last key segment.
func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}
