package sinkapp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/you-humble/crudkit/internal/infra/config"
	"github.com/you-humble/crudkit/internal/jobs"
	natsq "github.com/you-humble/crudkit/internal/libs/nats"
	rediscli "github.com/you-humble/crudkit/internal/libs/redis"
)

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	redis    *redis.Client
	jobStore jobs.Store

	natsConn *nats.Conn
	js       nats.JetStreamContext

	sink *jobs.Sink
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		cfg := config.MustLoad(di.cfgPath)
		if cfg.NATS.Subject == "" {
			log.Fatalf("DI config: nats.subject is required for the job sink")
		}
		di.cfg = cfg
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: di.Config().Log.SlogLevel(),
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}, 0)
		if err != nil {
			log.Fatalf("DI redis: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) JobStore(ctx context.Context) jobs.Store {
	if di.jobStore == nil {
		cfg := di.Config()

		switch cfg.Jobs.Backend {
		case config.BackendRedis:
			di.jobStore = jobs.NewRedisStore(di.RedisClient(ctx), cfg.Jobs.KeyPrefix, cfg.Jobs.RecordTTL)
		default:
			store, err := jobs.NewFileStore(cfg.Jobs.Dir)
			if err != nil {
				log.Fatalf("DI job store: %+v", err)
			}
			di.jobStore = store
		}
	}
	return di.jobStore
}

func (di *dependencyInjector) NATSConnect(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("DI NATS: %+v", err)
		}

		di.natsConn = nc
		di.Logger().Info("connected to NATS", slog.String("url", nc.ConnectedUrl()))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConnect(ctx), &nats.StreamConfig{
			Name:     cfg.NATS.Stream,
			Subjects: []string{cfg.NATS.Subject},
			Storage:  nats.FileStorage,
			MaxAge:   cfg.Jobs.RecordTTL,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}
		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Sink(ctx context.Context) *jobs.Sink {
	if di.sink == nil {
		cfg := di.Config().NATS
		di.sink = jobs.NewSink(di.JetStream(ctx), di.JobStore(ctx), jobs.SinkConfig{
			Stream:  cfg.Stream,
			Subject: cfg.Subject,
			Durable: cfg.Durable,
			Workers: cfg.Workers,
		})
	}
	return di.sink
}

// Close releases connections opened so far.
func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}
