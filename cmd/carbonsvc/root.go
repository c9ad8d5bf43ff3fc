package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/redcentre/carbonsvc/internal/config"
	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/executor/remote"
	"github.com/redcentre/carbonsvc/internal/executor/stub"
	"github.com/redcentre/carbonsvc/internal/session"
	"github.com/redcentre/carbonsvc/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "carbonsvc",
	Short:         "Report batch orchestrator and session state service",
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// app holds the components shared by the commands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *store.SQLiteStore
	state    store.StateStore
	cache    *session.Cache
	sessions *session.Manager
	engines  *executor.Registry
}

// newApp loads configuration and opens the stores. Close releases them.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(os.Stdout, cfg.Level())

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var state store.StateStore = db
	if cfg.StateBackend == config.BackendRedis {
		rs, err := store.OpenRedisStateStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			db.Close()
			return nil, err
		}
		state = rs
	}

	cache := session.NewCache(state, cfg.CacheSliding, logger)
	sessions, err := session.NewManager(ctx, db, cache, logger)
	if err != nil {
		closeStores(db, state)
		return nil, err
	}

	engines := executor.NewRegistry()
	engines.Register(config.EngineStub, stub.NewFactory(stub.Config{}))
	if cfg.EngineURL != "" {
		client := remote.NewClient(remote.Config{BaseURL: cfg.EngineURL, MaxRetries: cfg.EngineRetries})
		engines.Register(config.EngineRemote, client.Factory())
	}

	logger.Info("carbonsvc: configured",
		"db_path", cfg.DBPath,
		"state_backend", cfg.StateBackend,
		"engine", cfg.Engine,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		state:    state,
		cache:    cache,
		sessions: sessions,
		engines:  engines,
	}, nil
}

func (a *app) Close() {
	closeStores(a.db, a.state)
}

func closeStores(db *store.SQLiteStore, state store.StateStore) {
	if state != store.StateStore(db) {
		state.Close()
	}
	db.Close()
}
