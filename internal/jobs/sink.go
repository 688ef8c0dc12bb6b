package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

// JobIDHeader names the job a sink message belongs to.
const JobIDHeader = "Job-Id"

type SinkConfig struct {
	Stream  string
	Subject string
	Durable string
	Workers int
	// FetchWait bounds one pull request.
	FetchWait time.Duration
}

// Sink drains finished job results from a JetStream subject into a
// Store, so external workers never touch the job store directly.
type Sink struct {
	js    nats.JetStreamContext
	cfg   SinkConfig
	store Store
}

func NewSink(js nats.JetStreamContext, store Store, cfg SinkConfig) *Sink {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Durable == "" {
		cfg.Durable = "job-results-sink"
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	return &Sink{js: js, cfg: cfg, store: store}
}

// Run consumes until ctx is done.
func (s *Sink) Run(ctx context.Context) error {
	_, err := s.js.AddConsumer(s.cfg.Stream, &nats.ConsumerConfig{
		Durable:       s.cfg.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: s.cfg.Subject,
		MaxAckPending: s.cfg.Workers * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return err
	}

	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable, nats.Bind(s.cfg.Stream, s.cfg.Durable))
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Drain(); err != nil {
			slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
		}
	}()

	slog.Info("job sink is running",
		slog.Int("workers", s.cfg.Workers),
		slog.String("subject", s.cfg.Subject),
	)

	g, gctx := errgroup.WithContext(ctx)
	for range s.cfg.Workers {
		g.Go(func() error {
			s.runWorker(gctx, sub)
			return nil
		})
	}
	err = g.Wait()

	slog.Info("job sink stopped")
	return err
}

func (s *Sink) runWorker(ctx context.Context, sub *nats.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchWait)
		msgs, err := sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			s.settle(msg, s.process(ctx, msg.Header, msg.Data))
		}
	}
}

type verdict int

const (
	verdictAck verdict = iota
	// verdictNak asks for redelivery.
	verdictNak
	// verdictTerm drops a message that can never be stored.
	verdictTerm
)

func (s *Sink) process(ctx context.Context, header nats.Header, data []byte) verdict {
	id := header.Get(JobIDHeader)
	l := slog.With(slog.String("job_id", id))

	if err := ValidateID(id); err != nil {
		l.Error("job result rejected", slog.String("error", err.Error()))
		return verdictTerm
	}
	if !json.Valid(data) {
		l.Error("job result rejected", slog.String("error", "payload is not valid JSON"))
		return verdictTerm
	}

	if err := s.store.Put(ctx, id, data); err != nil {
		l.Error("job result not stored", slog.String("error", err.Error()))
		return verdictNak
	}

	l.Debug("job result stored")
	return verdictAck
}

func (s *Sink) settle(msg *nats.Msg, v verdict) {
	var err error
	switch v {
	case verdictAck:
		err = msg.Ack()
	case verdictNak:
		err = msg.Nak()
	case verdictTerm:
		err = msg.Term()
	}
	if err != nil {
		slog.Warn("NATS settle", slog.String("error", err.Error()))
	}
}
