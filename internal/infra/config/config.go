package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CRUDKIT_ADDR or
// CRUDKIT_DOWNLOADS_TTL.
const EnvPrefix = "CRUDKIT_"

const (
	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Log       Log       `yaml:"log" envPrefix:"LOG_"`
	API       API       `yaml:"api" envPrefix:"API_"`
	Scratch   Scratch   `yaml:"scratch" envPrefix:"SCRATCH_"`
	Downloads Downloads `yaml:"downloads" envPrefix:"DOWNLOADS_"`
	Jobs      Jobs      `yaml:"jobs" envPrefix:"JOBS_"`

	Postgres Postgres `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis    Redis    `yaml:"redis" envPrefix:"REDIS_"`
	MinIO    MinIO    `yaml:"minio" envPrefix:"MINIO_"`
	NATS     NATS     `yaml:"nats" envPrefix:"NATS_"`
}

type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// SlogLevel parses Level; anything unknown is info.
func (l Log) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type API struct {
	Prefix string   `yaml:"prefix" env:"PREFIX"`
	Hidden []string `yaml:"hidden_prefixes" env:"HIDDEN_PREFIXES" envSeparator:","`
}

type Scratch struct {
	Root     string        `yaml:"root" env:"ROOT"`
	Attempts int           `yaml:"attempts" env:"ATTEMPTS"`
	Backoff  time.Duration `yaml:"backoff" env:"BACKOFF"`
}

type Downloads struct {
	Backend       string        `yaml:"backend" env:"BACKEND"`
	Dir           string        `yaml:"dir" env:"DIR"`
	URLPrefix     string        `yaml:"url_prefix" env:"URL_PREFIX"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	PoolSize      int           `yaml:"pool_size" env:"POOL_SIZE"`
	QueueCapacity int           `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
	Attempts      int           `yaml:"attempts" env:"ATTEMPTS"`
	Backoff       time.Duration `yaml:"backoff" env:"BACKOFF"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// MaxAge is how old an artifact must be before the sweep removes it.
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

type Jobs struct {
	Backend   string        `yaml:"backend" env:"BACKEND"`
	Dir       string        `yaml:"dir" env:"DIR"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	RecordTTL time.Duration `yaml:"record_ttl" env:"RECORD_TTL"`
}

type Postgres struct {
	DSN          string        `yaml:"dsn" env:"DSN"`
	AutoMigrate  bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" env:"USE_SSL"`
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	BasePath        string `yaml:"base_path" env:"BASE_PATH"`
}

type NATS struct {
	URL           string `yaml:"url" env:"URL"`
	Name          string `yaml:"name" env:"NAME"`
	MaxReconnects int    `yaml:"max_reconnects" env:"MAX_RECONNECTS"`
	Stream        string `yaml:"stream" env:"STREAM"`
	Subject       string `yaml:"subject" env:"SUBJECT"`
	Durable       string `yaml:"durable" env:"DURABLE"`
	Workers       int    `yaml:"workers" env:"WORKERS"`
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies a .env file from the working directory if there is one, then
// CRUDKIT_* environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main: any failure is fatal.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.API.Prefix == "" {
		c.API.Prefix = "/api"
	}

	if c.Scratch.Attempts <= 0 {
		c.Scratch.Attempts = 5
	}
	if c.Scratch.Backoff <= 0 {
		c.Scratch.Backoff = 2 * time.Second
	}

	d := &c.Downloads
	if d.Backend == "" {
		d.Backend = BackendLocal
	}
	if d.Dir == "" {
		d.Dir = "./var/downloads"
	}
	if d.URLPrefix == "" {
		d.URLPrefix = "/downloads"
	}
	if d.TTL <= 0 {
		d.TTL = 60 * time.Second
	}
	if d.PoolSize <= 0 {
		d.PoolSize = 2
	}
	if d.QueueCapacity <= 0 {
		d.QueueCapacity = 100
	}
	if d.Attempts <= 0 {
		d.Attempts = 5
	}
	if d.Backoff <= 0 {
		d.Backoff = 2 * time.Second
	}
	if d.SweepInterval <= 0 {
		d.SweepInterval = 10 * time.Minute
	}
	if d.MaxAge <= 0 {
		d.MaxAge = 2 * d.TTL
	}

	if c.Jobs.Backend == "" {
		c.Jobs.Backend = BackendFile
	}
	if c.Jobs.Dir == "" {
		c.Jobs.Dir = "./var/jobs"
	}
	if c.Jobs.KeyPrefix == "" {
		c.Jobs.KeyPrefix = "job:"
	}

	if c.NATS.Stream == "" {
		c.NATS.Stream = "JOB_RESULTS"
	}
	if c.NATS.Durable == "" {
		c.NATS.Durable = "job-results-sink"
	}
	if c.NATS.Workers <= 0 {
		c.NATS.Workers = 1
	}
}

func (c *Config) validate() error {
	switch c.Downloads.Backend {
	case BackendLocal:
	case BackendMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("downloads.backend is minio but minio.endpoint or minio.bucket is empty")
		}
	default:
		return fmt.Errorf("downloads.backend must be %q or %q, got %q", BackendLocal, BackendMinIO, c.Downloads.Backend)
	}

	switch c.Jobs.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("jobs.backend is redis but redis.addr is empty")
		}
	default:
		return fmt.Errorf("jobs.backend must be %q or %q, got %q", BackendFile, BackendRedis, c.Jobs.Backend)
	}

	if c.Downloads.MaxAge < c.Downloads.TTL {
		return fmt.Errorf("downloads.max_age (%s) is shorter than downloads.ttl (%s)", c.Downloads.MaxAge, c.Downloads.TTL)
	}
	return nil
}
