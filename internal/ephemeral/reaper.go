package ephemeral

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/you-humble/crudkit/internal/clock"
	"github.com/you-humble/crudkit/internal/retry"
)

// Remover is what the Reaper deletes through.
type Remover interface {
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	Retryable(err error) bool
}

type ReaperConfig struct {
	QueueSize int
	Workers   int
	// Attempts is the total number of deletion attempts per artifact.
	Attempts int
	Backoff  time.Duration
}

type reapJob struct {
	Name    string
	Attempt int
}

// Reaper deletes expired downloads on a small worker pool. A failed
// retryable attempt is re-enqueued after Backoff; after Attempts the
// artifact is left for the sweep.
type Reaper struct {
	remover Remover
	clock   clock.Clock

	queue    chan reapJob
	workers  int
	attempts int
	backoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewReaper(remover Remover, clk clock.Clock, cfg ReaperConfig) *Reaper {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = retry.DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = retry.DefaultBackoff
	}
	if clk == nil {
		clk = clock.Real()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		remover:  remover,
		clock:    clk,
		queue:    make(chan reapJob, cfg.QueueSize),
		workers:  cfg.Workers,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(r.workers)
	for i := range r.workers {
		go r.worker(i)
	}
}

// Stop discards pending deletions; the sweep picks up what they leave.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.cancel()
	close(r.queue)
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
	}

	slog.Info("reaper: stopped")
	return nil
}

// Schedule deletes name once after has elapsed.
func (r *Reaper) Schedule(name string, after time.Duration) *clock.Timer {
	return r.clock.AfterFunc(after, func() {
		r.enqueue(reapJob{Name: name, Attempt: 1})
	})
}

// enqueue never drops a job while the reaper runs: with the queue full
// the attempt gets its own goroutine.
func (r *Reaper) enqueue(job reapJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		slog.Debug("reaper: stopped, deletion left for sweep", slog.String("name", job.Name))
		return
	}

	select {
	case r.queue <- job:
	default:
		slog.Warn("reaper: queue full, deleting inline", slog.String("name", job.Name))
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handleJob(r.ctx, job)
		}()
	}
}

func (r *Reaper) worker(int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.handleJob(r.ctx, job)
		}
	}
}

func (r *Reaper) handleJob(ctx context.Context, job reapJob) {
	l := slog.With(
		slog.String("name", job.Name),
		slog.Int("attempt", job.Attempt),
	)

	err := r.reapOnce(ctx, job)
	if err == nil {
		return
	}

	if job.Attempt >= r.attempts || !r.remover.Retryable(err) {
		l.Warn("download not removed, giving up", slog.String("error", err.Error()))
		return
	}

	job.Attempt++
	r.clock.AfterFunc(r.backoff, func() { r.enqueue(job) })
	l.Debug("download removal failed, retry scheduled", slog.String("error", err.Error()))
}

func (r *Reaper) reapOnce(ctx context.Context, job reapJob) error {
	exists, err := r.remover.Exists(ctx, job.Name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := r.remover.Remove(ctx, job.Name); err != nil {
		return err
	}

	slog.Debug("reaper: download removed", slog.String("name", job.Name))
	return nil
}
