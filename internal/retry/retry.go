// Package retry runs an operation in a bounded loop with a fixed
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"io/fs"
	"syscall"
	"time"

	"github.com/you-humble/crudkit/internal/clock"
)

const (
	DefaultAttempts = 5
	DefaultBackoff  = 2 * time.Second
)

type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	Backoff  time.Duration
	// Retryable decides whether a failed attempt is worth repeating.
	// Nil means every error is retryable.
	Retryable func(error) bool
	Clock     clock.Clock
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Clock == nil {
		p.Clock = clock.Real()
	}
	return p
}

// Do calls op until it succeeds, returns a non-retryable error, the
// attempt budget is spent or ctx is done. It returns the last error
// seen, or nil.
func Do(ctx context.Context, p Policy, op func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-p.Clock.After(p.Backoff):
		}
	}
	return err
}

// FSRetryable matches the filesystem errors that tend to clear on
// their own: a file still held open elsewhere, an entry that vanished
// or was replaced mid-walk.
func FSRetryable(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR)
}
