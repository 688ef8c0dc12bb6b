package ephemeral

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/crudkit/internal/clock"
	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/retry"
)

type fixture struct {
	clk       *clock.FakeClock
	pub       *LocalPublisher
	reaper    *Reaper
	downloads *Downloads
	srcDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.Fake(epoch)
	pub, err := NewLocalPublisher(t.TempDir(), "/downloads")
	require.NoError(t, err)

	reaper := NewReaper(pub, clk, ReaperConfig{Workers: 2, Attempts: 5, Backoff: 2 * time.Second})
	reaper.Start(context.Background())
	t.Cleanup(func() { _ = reaper.Stop(context.Background()) })

	return &fixture{
		clk:       clk,
		pub:       pub,
		reaper:    reaper,
		downloads: NewDownloads(pub, reaper, clk, 0),
		srcDir:    t.TempDir(),
	}
}

func (f *fixture) source(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.srcDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func (f *fixture) published(t *testing.T, url string) string {
	t.Helper()
	name := strings.TrimPrefix(url, "/downloads/")
	return filepath.Join(f.pub.Dir(), name)
}

var uniqueReport = regexp.MustCompile(`^/downloads/report_[0-9a-f]{32}\.pdf$`)

func TestOffer_SameNameTwice(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "tmp.bin", "%PDF-1.7")

	first, err := f.downloads.Offer(context.Background(), src, "report.pdf", 0)
	require.NoError(t, err)
	second, err := f.downloads.Offer(context.Background(), src, "report.pdf", 0)
	require.NoError(t, err)

	v1 := first.Value.(map[string]any)
	v2 := second.Value.(map[string]any)

	assert.Equal(t, true, v1["success"])
	assert.Equal(t, "report.pdf", v1["attachment_name"])
	assert.Equal(t, 60, v1["available_for_seconds"])
	assert.Regexp(t, uniqueReport, v1["url"])
	assert.Regexp(t, uniqueReport, v2["url"])
	assert.NotEqual(t, v1["url"], v2["url"])

	for _, v := range []map[string]any{v1, v2} {
		path := f.published(t, v["url"].(string))
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.7", string(got))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o640), info.Mode().Perm())
	}
}

func TestOffer_RejectsNonRegularFiles(t *testing.T) {
	f := newFixture(t)

	for _, src := range []string{f.srcDir, filepath.Join(f.srcDir, "missing.txt")} {
		_, err := f.downloads.Offer(context.Background(), src, "", 0)
		require.Error(t, err)
		assert.True(t, envelope.IsValidation(err))
	}

	entries, err := os.ReadDir(f.pub.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOffer_DefaultsAttachmentNameToSource(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "notes.csv", "id,title\n")

	res, err := f.downloads.Offer(context.Background(), src, "", 5*time.Second)
	require.NoError(t, err)

	v := res.Value.(map[string]any)
	assert.Equal(t, "notes.csv", v["attachment_name"])
	assert.Equal(t, 5, v["available_for_seconds"])
	assert.Regexp(t, `^/downloads/notes_[0-9a-f]{32}\.csv$`, v["url"])
}

func TestOffer_RemovedAfterTTL(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "a.txt", "x")

	res, err := f.downloads.Offer(context.Background(), src, "a.txt", 30*time.Second)
	require.NoError(t, err)
	path := f.published(t, res.Value.(map[string]any)["url"].(string))

	f.clk.Advance(29 * time.Second)
	assert.FileExists(t, path)

	f.clk.Advance(time.Second)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)
}

// flakyRemover denies the first `failures` removals.
type flakyRemover struct {
	mu       sync.Mutex
	failures int
	calls    int
	removed  bool
	at       time.Time
	clk      clock.Clock
}

func (r *flakyRemover) Exists(context.Context, string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.removed, nil
}

func (r *flakyRemover) Remove(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return fs.ErrPermission
	}
	r.removed = true
	r.at = r.clk.Now()
	return nil
}

func (r *flakyRemover) Retryable(err error) bool { return retry.FSRetryable(err) }

func (r *flakyRemover) snapshot() (int, bool, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.removed, r.at
}

func TestReaper_PermissionDeniedClearsAfterThreeRetries(t *testing.T) {
	clk := clock.Fake(epoch)
	rm := &flakyRemover{failures: 3, clk: clk}
	reaper := NewReaper(rm, clk, ReaperConfig{Attempts: 5, Backoff: 2 * time.Second})
	reaper.Start(context.Background())
	defer reaper.Stop(context.Background())

	ttl := 60 * time.Second
	reaper.Schedule("report_x.pdf", ttl)

	clk.Advance(ttl - time.Second)
	calls, _, _ := rm.snapshot()
	assert.Zero(t, calls)

	clk.Advance(time.Second)
	for want := 1; want <= 3; want++ {
		require.Eventually(t, func() bool {
			c, _, _ := rm.snapshot()
			return c == want
		}, time.Second, time.Millisecond)
		clk.WaitForTimers(1)
		clk.Advance(2 * time.Second)
	}

	require.Eventually(t, func() bool {
		_, removed, _ := rm.snapshot()
		return removed
	}, time.Second, time.Millisecond)

	calls, _, at := rm.snapshot()
	assert.Equal(t, 4, calls)
	assert.False(t, at.Before(epoch.Add(ttl)))
	assert.False(t, at.After(epoch.Add(ttl+10*time.Second)))
}

func TestReaper_GivesUpAfterAttempts(t *testing.T) {
	clk := clock.Fake(epoch)
	rm := &flakyRemover{failures: 100, clk: clk}
	reaper := NewReaper(rm, clk, ReaperConfig{Attempts: 5, Backoff: 2 * time.Second})
	reaper.Start(context.Background())
	defer reaper.Stop(context.Background())

	reaper.Schedule("stuck.bin", time.Second)
	clk.Advance(time.Second)

	for want := 1; want <= 4; want++ {
		require.Eventually(t, func() bool {
			c, _, _ := rm.snapshot()
			return c == want
		}, time.Second, time.Millisecond)
		clk.WaitForTimers(1)
		clk.Advance(2 * time.Second)
	}

	require.Eventually(t, func() bool {
		c, _, _ := rm.snapshot()
		return c == 5
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return clk.PendingCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)

	old := filepath.Join(f.pub.Dir(), "old_1.txt")
	fresh := filepath.Join(f.pub.Dir(), "fresh_2.txt")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("f"), 0o644))

	f.clk.Advance(time.Hour)
	require.NoError(t, os.Chtimes(old, f.clk.Now().Add(-2*time.Hour), f.clk.Now().Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(fresh, f.clk.Now(), f.clk.Now()))

	n, err := f.downloads.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestLocalPublisher_RejectsPathNames(t *testing.T) {
	pub, err := NewLocalPublisher(t.TempDir(), "downloads/")
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../x", "a/b"} {
		_, err := pub.URL(context.Background(), name, time.Minute)
		assert.Error(t, err, name)
	}

	u, err := pub.URL(context.Background(), "my report_1.pdf", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/my%20report_1.pdf", u)
}
