package ephemeral

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/you-humble/crudkit/internal/clock"
	"github.com/you-humble/crudkit/internal/envelope"
)

const DefaultTTL = 60 * time.Second

// Downloads turns local files into time-limited public downloads.
type Downloads struct {
	pub        Publisher
	reaper     *Reaper
	clock      clock.Clock
	defaultTTL time.Duration
}

func NewDownloads(pub Publisher, reaper *Reaper, clk clock.Clock, defaultTTL time.Duration) *Downloads {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Downloads{pub: pub, reaper: reaper, clock: clk, defaultTTL: defaultTTL}
}

// Offer publishes a copy of src under a unique name derived from
// attachmentName (src's base name when empty) and schedules the copy's
// deletion after ttl. A zero ttl means the default.
func (d *Downloads) Offer(ctx context.Context, src, attachmentName string, ttl time.Duration) (envelope.Result, error) {
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return envelope.Result{}, envelope.Validationf("not a regular file: %s", src)
	}

	if attachmentName == "" {
		attachmentName = filepath.Base(src)
	}
	display := filepath.Base(attachmentName)
	if display == "." || display == ".." || display == string(filepath.Separator) {
		return envelope.Result{}, envelope.Validationf("invalid attachment name: %q", attachmentName)
	}
	if ttl <= 0 {
		ttl = d.defaultTTL
	}

	name := uniqueName(display)
	if err := d.pub.Publish(ctx, src, name); err != nil {
		return envelope.Result{}, envelope.Wrapf(err, envelope.KindIO, "publish download: %v", err)
	}

	url, err := d.pub.URL(ctx, name, ttl)
	if err != nil {
		_ = d.pub.Remove(ctx, name)
		return envelope.Result{}, envelope.Wrapf(err, envelope.KindIO, "download url: %v", err)
	}

	d.reaper.Schedule(name, ttl)
	slog.Debug("download offered",
		slog.String("name", name),
		slog.Duration("ttl", ttl),
	)

	return envelope.OK(map[string]any{
		"success":               true,
		"url":                   url,
		"attachment_name":       display,
		"available_for_seconds": int(ttl / time.Second),
	}), nil
}

// Sweep removes published artifacts older than maxAge, which catches
// deletions lost to a restart.
func (d *Downloads) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	return d.pub.CleanupOlderThan(ctx, d.clock.Now().Add(-maxAge))
}

// uniqueName inserts a random suffix before the extension:
// report.pdf becomes report_<hex>.pdf.
func uniqueName(display string) string {
	ext := filepath.Ext(display)
	stem := strings.TrimSuffix(display, ext)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return stem + "_" + suffix + ext
}
