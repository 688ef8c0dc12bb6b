package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/you-humble/crudkit/internal/clock"
	"github.com/you-humble/crudkit/internal/domain"
	"github.com/you-humble/crudkit/internal/ephemeral"
	"github.com/you-humble/crudkit/internal/infra/config"
	"github.com/you-humble/crudkit/internal/infra/db"
	"github.com/you-humble/crudkit/internal/jobs"
	mio "github.com/you-humble/crudkit/internal/libs/minio"
	rediscli "github.com/you-humble/crudkit/internal/libs/redis"
	"github.com/you-humble/crudkit/internal/retry"
	"github.com/you-humble/crudkit/internal/transport"
)

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
	clock   clock.Clock

	db    *gorm.DB
	notes *db.Repository[domain.Note]
	tags  *db.Repository[domain.Tag]

	redis *redis.Client
	minio *minio.Client

	publisher ephemeral.Publisher
	local     *ephemeral.LocalPublisher
	reaper    *ephemeral.Reaper
	downloads *ephemeral.Downloads
	scratch   *ephemeral.Scratch

	jobStore jobs.Store

	router *transport.Router
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(di.cfgPath)
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

func (di *dependencyInjector) Clock() clock.Clock {
	if di.clock == nil {
		di.clock = clock.Real()
	}
	return di.clock
}

func (di *dependencyInjector) DB(ctx context.Context) *gorm.DB {
	if di.db == nil {
		cfg := di.Config().Postgres
		if cfg.DSN == "" {
			log.Fatalf("DI DB: postgres.dsn is empty")
		}

		opts := db.Options{
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			ConnMaxLife:  cfg.ConnMaxLife,
		}
		if cfg.AutoMigrate {
			opts.Models = domain.Models()
		}

		gdb, err := db.Open(cfg.DSN, opts)
		if err != nil {
			log.Fatalf("DI DB: %+v", err)
		}
		if cfg.AutoMigrate {
			seedTags(ctx, gdb)
		}

		di.db = gdb
		di.Logger().Info("connected to postgres", slog.Bool("auto_migrate", cfg.AutoMigrate))
	}
	return di.db
}

func seedTags(ctx context.Context, gdb *gorm.DB) {
	for _, name := range domain.DefaultTags {
		tag := domain.Tag{Name: name}
		if err := gdb.WithContext(ctx).Where(tag).FirstOrCreate(&tag).Error; err != nil {
			slog.Warn("seed tag", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}

func (di *dependencyInjector) NoteRepo(ctx context.Context) *db.Repository[domain.Note] {
	if di.notes == nil {
		di.notes = db.NewRepository[domain.Note](di.DB(ctx))
	}
	return di.notes
}

func (di *dependencyInjector) TagRepo(ctx context.Context) *db.Repository[domain.Tag] {
	if di.tags == nil {
		di.tags = db.NewRepository[domain.Tag](di.DB(ctx))
	}
	return di.tags
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

func (di *dependencyInjector) MinIOClient(ctx context.Context) *minio.Client {
	if di.minio == nil {
		cfg := di.Config().MinIO
		client, err := mio.NewClient(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
		})
		if err != nil {
			log.Fatalf("DI MinIO: %+v", err)
		}

		di.minio = client
		di.Logger().Info("connected to MinIO",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
		)
	}
	return di.minio
}

func (di *dependencyInjector) Publisher(ctx context.Context) ephemeral.Publisher {
	if di.publisher == nil {
		cfg := di.Config()

		switch cfg.Downloads.Backend {
		case config.BackendMinIO:
			pub, err := ephemeral.NewMinIOPublisher(di.MinIOClient(ctx), cfg.MinIO.Bucket, cfg.MinIO.BasePath)
			if err != nil {
				log.Fatalf("DI publisher: %+v", err)
			}
			di.publisher = pub
		default:
			pub, err := ephemeral.NewLocalPublisher(cfg.Downloads.Dir, cfg.Downloads.URLPrefix)
			if err != nil {
				log.Fatalf("DI publisher: %+v", err)
			}
			di.local = pub
			di.publisher = pub
		}

		di.Logger().Info("initialized download publisher", slog.String("backend", cfg.Downloads.Backend))
	}
	return di.publisher
}

// LocalPublisher is nil unless downloads are served from disk.
func (di *dependencyInjector) LocalPublisher(ctx context.Context) *ephemeral.LocalPublisher {
	di.Publisher(ctx)
	return di.local
}

func (di *dependencyInjector) Reaper(ctx context.Context) *ephemeral.Reaper {
	if di.reaper == nil {
		cfg := di.Config().Downloads
		di.reaper = ephemeral.NewReaper(di.Publisher(ctx), di.Clock(), ephemeral.ReaperConfig{
			QueueSize: cfg.QueueCapacity,
			Workers:   cfg.PoolSize,
			Attempts:  cfg.Attempts,
			Backoff:   cfg.Backoff,
		})
		di.reaper.Start(context.Background())
		di.Logger().Info("download reaper started",
			slog.Int("queue_size", cfg.QueueCapacity),
			slog.Int("worker_num", cfg.PoolSize),
			slog.Int("attempts", cfg.Attempts),
		)
	}
	return di.reaper
}

func (di *dependencyInjector) Downloads(ctx context.Context) *ephemeral.Downloads {
	if di.downloads == nil {
		di.downloads = ephemeral.NewDownloads(
			di.Publisher(ctx),
			di.Reaper(ctx),
			di.Clock(),
			di.Config().Downloads.TTL,
		)
	}
	return di.downloads
}

func (di *dependencyInjector) Scratch() *ephemeral.Scratch {
	if di.scratch == nil {
		cfg := di.Config().Scratch
		s, err := ephemeral.NewScratch(cfg.Root, retry.Policy{
			Attempts: cfg.Attempts,
			Backoff:  cfg.Backoff,
			Clock:    di.Clock(),
		})
		if err != nil {
			log.Fatalf("DI scratch: %+v", err)
		}
		di.scratch = s
	}
	return di.scratch
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

		di.Logger().Info("initialized job store", slog.String("backend", cfg.Jobs.Backend))
	}
	return di.jobStore
}

func (di *dependencyInjector) Router(ctx context.Context) *transport.Router {
	if di.router == nil {
		cfg := di.Config()
		router := transport.NewRouter(nil,
			transport.WithAPIPrefix(cfg.API.Prefix),
			transport.WithHiddenPrefixes(cfg.API.Hidden...),
		)

		rt := routes{
			notes:     di.NoteRepo(ctx),
			tags:      di.TagRepo(ctx),
			downloads: di.Downloads(ctx),
			exportTTL: cfg.Downloads.TTL,
			checker:   jobs.NewChecker(di.JobStore(ctx)),
			local:     di.LocalPublisher(ctx),
		}
		if err := rt.mount(router); err != nil {
			log.Fatalf("DI router: %+v", err)
		}

		di.router = router
	}
	return di.router
}

func (di *dependencyInjector) Handler(ctx context.Context) http.Handler {
	return transport.WithRecover(
		transport.WithRequestID(
			transport.LogMiddleware(
				di.Scratch().Middleware(di.Router(ctx)),
			),
		),
	)
}

// Close releases connections opened so far.
func (di *dependencyInjector) Close() {
	if di.db != nil {
		if err := db.Close(di.db); err != nil {
			slog.Warn("postgres close", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}
