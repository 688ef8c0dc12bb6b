package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/retry"
	"github.com/you-humble/crudkit/internal/transport"
)

// Scratch hands out one temporary directory per request owner and
// removes it when the owner is released.
type Scratch struct {
	root      string
	policy    retry.Policy
	removeAll func(string) error

	mu   sync.Mutex
	dirs map[string]string
}

// NewScratch creates scratch directories under root, or under the OS
// temp dir when root is empty. Release retries under policy, with
// retry.FSRetryable as the default predicate.
func NewScratch(root string, policy retry.Policy) (*Scratch, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	if policy.Retryable == nil {
		policy.Retryable = retry.FSRetryable
	}

	return &Scratch{
		root:      root,
		policy:    policy,
		removeAll: os.RemoveAll,
		dirs:      make(map[string]string),
	}, nil
}

// Create returns the owner's directory, creating it on first use.
func (s *Scratch) Create(owner string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir, ok := s.dirs[owner]; ok {
		return dir, nil
	}

	dir, err := os.MkdirTemp(s.root, "scratch-")
	if err != nil {
		return "", envelope.Wrapf(err, envelope.KindIO, "create scratch dir: %v", err)
	}
	s.dirs[owner] = dir

	slog.Debug("scratch dir created", slog.String("owner", owner), slog.String("dir", dir))
	return dir, nil
}

// Release removes the owner's directory tree, if one was created.
// Transient filesystem errors are retried; a directory that still
// cannot be removed is logged and left behind.
func (s *Scratch) Release(owner string) {
	s.mu.Lock()
	dir, ok := s.dirs[owner]
	delete(s.dirs, owner)
	s.mu.Unlock()

	if !ok {
		return
	}

	err := retry.Do(context.Background(), s.policy, func() error {
		return s.removeAll(dir)
	})
	if err != nil {
		slog.Warn("scratch dir not removed",
			slog.String("owner", owner),
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

type scratchKey struct{}

type scratchHandle struct {
	s     *Scratch
	owner string
}

// Middleware gives every request a lazily created scratch directory,
// reachable through Dir, and releases it when the handler returns or
// panics. The owner key carries the request id when WithRequestID ran
// first.
func (s *Scratch) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := uuid.NewString()
		if id := transport.RequestID(r.Context()); id != "" {
			owner = id + ":" + owner
		}
		h := &scratchHandle{s: s, owner: owner}
		defer s.Release(h.owner)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scratchKey{}, h)))
	})
}

var ErrNoScratch = errors.New("no scratch directory bound to request")

// Dir returns the request's scratch directory, creating it on the
// first call.
func Dir(ctx context.Context) (string, error) {
	h, ok := ctx.Value(scratchKey{}).(*scratchHandle)
	if !ok {
		return "", envelope.Wrap(ErrNoScratch, envelope.KindInternal)
	}
	return h.s.Create(h.owner)
}
