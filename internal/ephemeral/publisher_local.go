package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/you-humble/crudkit/internal/retry"
)

const tmpMarker = ".tmp-"

// LocalPublisher copies downloads into a directory served by an
// http.FileServer mounted at urlPrefix.
type LocalPublisher struct {
	dir       string
	urlPrefix string
}

func NewLocalPublisher(dir, urlPrefix string) (*LocalPublisher, error) {
	if dir == "" {
		return nil, fmt.Errorf("downloads dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}

	return &LocalPublisher{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

func (p *LocalPublisher) Dir() string { return p.dir }

func (p *LocalPublisher) URLPrefix() string { return p.urlPrefix }

func (p *LocalPublisher) Publish(ctx context.Context, src, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dst, err := p.path(name)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tempPath := dst + tmpMarker + uuid.NewString()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := io.Copy(f, in); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tempPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func (p *LocalPublisher) Exists(_ context.Context, name string) (bool, error) {
	path, err := p.path(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (p *LocalPublisher) Remove(_ context.Context, name string) error {
	path, err := p.path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (p *LocalPublisher) URL(_ context.Context, name string, _ time.Duration) (string, error) {
	if _, err := p.path(name); err != nil {
		return "", err
	}
	return strings.TrimSuffix(p.urlPrefix, "/") + "/" + url.PathEscape(name), nil
}

// CleanupOlderThan also removes temp files an interrupted Publish left
// behind.
func (p *LocalPublisher) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, fmt.Errorf("read downloads dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(p.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("stale download not removed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	return removed, nil
}

func (p *LocalPublisher) Retryable(err error) bool { return retry.FSRetryable(err) }

func (p *LocalPublisher) path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty filename")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return filepath.Join(p.dir, name), nil
}
