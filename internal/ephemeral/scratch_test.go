package ephemeral

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/crudkit/internal/clock"
	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/retry"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newScratch(t *testing.T, clk clock.Clock) *Scratch {
	t.Helper()
	s, err := NewScratch(t.TempDir(), retry.Policy{Attempts: 5, Backoff: 2 * time.Second, Clock: clk})
	require.NoError(t, err)
	return s
}

func TestScratch_CreateIsIdempotentPerOwner(t *testing.T) {
	s := newScratch(t, clock.Fake(epoch))

	a1, err := s.Create("a")
	require.NoError(t, err)
	a2, err := s.Create("a")
	require.NoError(t, err)
	b, err := s.Create("b")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.DirExists(t, a1)

	s.Release("a")
	assert.NoDirExists(t, a1)
	assert.DirExists(t, b)

	s.Release("a")
	s.Release("never-created")
}

func TestScratch_ReleaseRetriesTransientErrors(t *testing.T) {
	clk := clock.Fake(epoch)
	s := newScratch(t, clk)

	dir, err := s.Create("req")
	require.NoError(t, err)

	var calls atomic.Int32
	s.removeAll = func(path string) error {
		if calls.Add(1) <= 3 {
			return &fs.PathError{Op: "unlinkat", Path: path, Err: fs.ErrPermission}
		}
		return os.RemoveAll(path)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Release("req")
	}()

	for range 3 {
		clk.WaitForTimers(1)
		clk.Advance(2 * time.Second)
	}
	<-done

	assert.EqualValues(t, 4, calls.Load())
	assert.NoDirExists(t, dir)
	assert.Equal(t, epoch.Add(6*time.Second), clk.Now())
}

func TestScratch_ReleaseGivesUpSilently(t *testing.T) {
	clk := clock.Fake(epoch)
	s := newScratch(t, clk)

	dir, err := s.Create("req")
	require.NoError(t, err)

	var calls atomic.Int32
	s.removeAll = func(string) error {
		calls.Add(1)
		return fs.ErrPermission
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Release("req")
	}()

	for range 4 {
		clk.WaitForTimers(1)
		clk.Advance(2 * time.Second)
	}
	<-done

	assert.EqualValues(t, 5, calls.Load())
	assert.DirExists(t, dir)
}

func TestScratch_Middleware(t *testing.T) {
	s := newScratch(t, clock.Fake(epoch))

	t.Run("directory is lazy and released after the request", func(t *testing.T) {
		var seen string
		h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dir, err := Dir(r.Context())
			require.NoError(t, err)
			again, err := Dir(r.Context())
			require.NoError(t, err)
			assert.Equal(t, dir, again)

			require.NoError(t, os.WriteFile(filepath.Join(dir, "out.csv"), []byte("a,b\n"), 0o644))
			seen = dir
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		assert.NoDirExists(t, seen)
	})

	t.Run("released when the handler panics", func(t *testing.T) {
		var seen string
		h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = Dir(r.Context())
			panic("boom")
		}))

		assert.Panics(t, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
		require.NotEmpty(t, seen)
		assert.NoDirExists(t, seen)
	})

	t.Run("no directory without the middleware", func(t *testing.T) {
		_, err := Dir(httptest.NewRequest(http.MethodGet, "/", nil).Context())
		assert.ErrorIs(t, err, ErrNoScratch)
		assert.True(t, envelope.IsKind(err, envelope.KindInternal))
	})
}
