// Package ephemeral manages short-lived files: request-scoped scratch
// directories and time-limited public download copies.
package ephemeral

import (
	"context"
	"time"
)

// Publisher is a public-serving location for offered downloads.
type Publisher interface {
	// Publish copies the regular file at src to name. A reader of name
	// never observes a partial copy.
	Publish(ctx context.Context, src, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	// URL returns where name can be fetched for at least ttl.
	URL(ctx context.Context, name string, ttl time.Duration) (string, error)
	// CleanupOlderThan removes artifacts published before cutoff and
	// reports how many went.
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Retryable reports whether a failed Remove is worth another try.
	Retryable(err error) bool
}
