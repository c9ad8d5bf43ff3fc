// testserver starts a carbonsvc API server with stub engines and in-memory
// storage for manual and end-to-end testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/redcentre/carbonsvc/internal/api"
	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/executor/stub"
	"github.com/redcentre/carbonsvc/internal/session"
	"github.com/redcentre/carbonsvc/internal/store"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("CARBONSVC_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	engines := executor.NewRegistry()
	engines.Register("stub", stub.NewFactory(stub.Config{
		Delay:    500 * time.Millisecond,
		Failures: map[string]error{"Broken": errors.New("report definition is corrupt")},
	}))
	factory, err := engines.Resolve("stub")
	if err != nil {
		log.Fatalf("resolve engine: %v", err)
	}

	ctx := context.Background()
	cache := session.NewCache(db, session.DefaultSliding, logger)
	go cache.Start()
	defer cache.Stop()

	sessions, err := session.NewManager(ctx, db, cache, logger)
	if err != nil {
		log.Fatalf("load sessions: %v", err)
	}
	batches := batch.NewService(session.NewLender(cache, factory), logger)

	srv := api.NewServer(addr, batches, sessions, cache, engines, logger, api.WithActiveEngine("stub"))

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	batches.Wait()
}
