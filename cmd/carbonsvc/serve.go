package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/redcentre/carbonsvc/internal/api"
	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		factory, err := a.engines.Resolve(a.cfg.Engine)
		if err != nil {
			return err
		}

		go a.cache.Start()
		defer a.cache.Stop()

		opts := []batch.Option{batch.WithStaleAfter(a.cfg.BatchStaleAfter)}
		if a.cfg.MaxParallelism > 0 {
			opts = append(opts, batch.WithMaxParallelism(a.cfg.MaxParallelism))
		}
		batches := batch.NewService(session.NewLender(a.cache, factory), a.logger, opts...)
		defer batches.Wait()
		defer cancel()

		go batches.RunSweeper(ctx, a.cfg.SweepInterval)

		srv := api.NewServer(a.cfg.ListenAddr, batches, a.sessions, a.cache, a.engines, a.logger,
			api.WithActiveEngine(a.cfg.Engine),
			api.WithSessionMaxIdle(a.cfg.SessionMaxIdle),
		)
		return srv.Run(ctx)
	},
}
