package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

const maxPresignExpiry = 7 * 24 * time.Hour

// MinIOPublisher uploads downloads as objects and hands out presigned
// GET URLs.
type MinIOPublisher struct {
	db       *minio.Client
	bucket   string
	basePath string
}

func NewMinIOPublisher(client *minio.Client, bucket, basePath string) (*MinIOPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("nil MinIO client")
	}
	if bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}

	basePath = strings.Trim(basePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &MinIOPublisher{db: client, bucket: bucket, basePath: basePath}, nil
}

func (p *MinIOPublisher) Publish(ctx context.Context, src, name string) error {
	objectName, err := p.objectName(name)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	_, err = p.db.PutObject(ctx, p.bucket, objectName, f, info.Size(), minio.PutObjectOptions{
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (p *MinIOPublisher) Exists(ctx context.Context, name string) (bool, error) {
	objectName, err := p.objectName(name)
	if err != nil {
		return false, err
	}

	_, err = p.db.StatObject(ctx, p.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func (p *MinIOPublisher) Remove(ctx context.Context, name string) error {
	objectName, err := p.objectName(name)
	if err != nil {
		return err
	}
	if err := p.db.RemoveObject(ctx, p.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (p *MinIOPublisher) URL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	objectName, err := p.objectName(name)
	if err != nil {
		return "", err
	}

	expiry := min(max(ttl, time.Second), maxPresignExpiry)
	u, err := p.db.PresignedGetObject(ctx, p.bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func (p *MinIOPublisher) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []minio.ObjectInfo
	for obj := range p.db.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    p.basePath,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return 0, fmt.Errorf("list objects: %w", obj.Err)
		}
		if obj.LastModified.Before(cutoff) {
			stale = append(stale, obj)
		}
	}

	batch := make(chan minio.ObjectInfo, len(stale))
	for _, obj := range stale {
		batch <- obj
	}
	close(batch)

	failed := 0
	for rerr := range p.db.RemoveObjects(ctx, p.bucket, batch, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			failed++
		}
	}

	removed := len(stale) - failed
	if failed > 0 {
		return removed, fmt.Errorf("remove objects: %d failed", failed)
	}
	return removed, nil
}

// Retryable treats transient network failures and throttling as worth
// another try; a missing object is gone already.
func (p *MinIOPublisher) Retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return true
	}
	return false
}

func (p *MinIOPublisher) objectName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty filename")
	}

	clean := path.Clean(name)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}

	return p.basePath + strings.TrimLeft(clean, "/"), nil
}
