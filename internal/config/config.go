package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every configuration variable name.
const EnvPrefix = "CARBONSVC_"

// State backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Engine kinds.
const (
	EngineStub   = "stub"
	EngineRemote = "remote"
)

// Config holds application configuration loaded from environment variables.
// See .env.example for the variable names.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"carbonsvc.db"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// StateBackend selects where session state blobs live: sqlite or redis.
	// Session records always live in SQLite.
	StateBackend string `env:"STATE_BACKEND" envDefault:"sqlite"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"carbonsvc:"`

	CacheSliding    time.Duration `env:"CACHE_SLIDING" envDefault:"60s"`
	BatchStaleAfter time.Duration `env:"BATCH_STALE_AFTER" envDefault:"20m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SessionMaxIdle  time.Duration `env:"SESSION_MAX_IDLE" envDefault:"168h"`

	// MaxParallelism caps per-batch parallelism. Zero means the CPU count.
	MaxParallelism int `env:"MAX_PARALLELISM" envDefault:"0"`

	Engine        string `env:"ENGINE" envDefault:"stub"`
	EngineURL     string `env:"ENGINE_URL"`
	EngineRetries int    `env:"ENGINE_RETRIES" envDefault:"3"`
}

// Load reads an optional .env file from the working directory, then parses
// CARBONSVC_* environment variables over the defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that have a closed set of values.
func (c Config) Validate() error {
	switch c.StateBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	if c.Engine == EngineRemote && c.EngineURL == "" {
		return fmt.Errorf("%sENGINE_URL is required for the remote engine", EnvPrefix)
	}
	if c.MaxParallelism < 0 {
		return fmt.Errorf("max parallelism must not be negative, got %d", c.MaxParallelism)
	}
	if c.CacheSliding <= 0 || c.BatchStaleAfter <= 0 || c.SweepInterval <= 0 {
		return errors.New("cache, stale and sweep durations must be positive")
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
