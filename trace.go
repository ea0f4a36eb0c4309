package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phobologic/pytutor/internal/cache"
	"github.com/phobologic/pytutor/internal/config"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/sandbox"
	"github.com/phobologic/pytutor/internal/toon"
)

func newTraceCmd(g *globalFlags) *cobra.Command {
	var (
		format   string
		indent   bool
		cacheDir string
	)
	cmd := &cobra.Command{
		Use:   "trace [file|-]",
		Short: "Print the execution trace of a program as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "toon" {
				return fmt.Errorf("unknown format %q (want json or toon)", format)
			}
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cache-dir") {
				cfg.Server.CacheDir = cacheDir
			}
			name, source, err := readProgram(cmd, args)
			if err != nil {
				return err
			}

			trace, err := cachedTrace(cmd.Context(), cfg, source, sandboxConfig(cfg, log))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "toon" {
				_, err = fmt.Fprintln(out, toon.Encode(name, trace))
				return err
			}
			var data []byte
			if indent {
				data, err = json.MarshalIndent(trace, "", "  ")
			} else {
				data, err = json.Marshal(trace)
			}
			if err != nil {
				return fmt.Errorf("encoding trace: %w", err)
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or toon")
	cmd.Flags().BoolVar(&indent, "indent", false, "indent JSON output")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory of cached traces")
	return cmd
}

// cachedTrace runs source, reusing a trace from the configured cache
// directory when one exists.
func cachedTrace(ctx context.Context, cfg config.Config, source string, sc sandbox.Config) (model.Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Server.CacheDir == "" {
		return sandbox.Run(ctx, source, sc), nil
	}
	c, err := cache.Open(cfg.Server.CacheDir)
	if err != nil {
		return nil, err
	}
	key, err := cache.Key(source, cache.Params{MaxSteps: sc.MaxSteps, StableIDs: sc.StableIDs, MaxDepth: sc.MaxDepth})
	if err != nil {
		return nil, err
	}
	trace, err := c.Get(key)
	if err == nil {
		sc.Logger.Debug().Str("key", key).Msg("cache hit")
		return trace, nil
	}
	if !errors.Is(err, cache.ErrNotCached) {
		sc.Logger.Warn().Err(err).Msg("ignoring unreadable cache entry")
	}
	trace = sandbox.Run(ctx, source, sc)
	if err := c.Put(key, trace); err != nil {
		sc.Logger.Warn().Err(err).Msg("cache write")
	}
	return trace, nil
}
