package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phobologic/pytutor/internal/cache"
	"github.com/phobologic/pytutor/internal/querylog"
	"github.com/phobologic/pytutor/internal/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr     string
		cacheDir string
		queryLog string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve traces over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("cache-dir") {
				cfg.Server.CacheDir = cacheDir
			}
			if flags.Changed("query-log") {
				cfg.Server.QueryLog = queryLog
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := server.Options{Config: cfg, Logger: log}
			if cfg.Server.CacheDir != "" {
				if opts.Cache, err = cache.Open(cfg.Server.CacheDir); err != nil {
					return err
				}
			}
			if cfg.Server.QueryLog != "" {
				qlog, err := querylog.Open(ctx, cfg.Server.QueryLog, log)
				if err != nil {
					return err
				}
				defer func() { _ = qlog.Close() }()
				opts.QueryLog = qlog
			}
			return server.New(opts).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory of cached traces")
	cmd.Flags().StringVar(&queryLog, "query-log", "", "SQLite file recording submitted programs")
	return cmd
}

