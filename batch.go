package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/pytutor/internal/discover"
	"github.com/phobologic/pytutor/internal/sandbox"
)

const defaultMaxFileSize = 100_000

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		check       bool
		ids         bool
		maxFileSize int64
		jobs        int
	)
	cmd := &cobra.Command{
		Use:   "batch [dir]",
		Short: "Write a regression trace next to every program under dir",
		Long: `Trace every .py file under dir (default ".") and write <name>.trace.json
beside it. Object ids are reported as 0 unless --ids is given, so the files
are stable across runs; the stable_ids config key does not apply here and
--ids cannot be combined with --no-ids. With --check, nothing is written and the command
fails if any trace differs from the file on disk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			if ids && cmd.Flags().Changed("no-ids") {
				return errors.New("--ids and --no-ids cannot be used together")
			}
			cfg.StableIDs = ids

			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			root, err = filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("root path: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s: not a directory", root)
			}

			progs, err := discover.Programs(root)
			if err != nil {
				return fmt.Errorf("discovering programs: %w", err)
			}
			if len(progs) == 0 {
				return fmt.Errorf("no programs found under %s", root)
			}

			stderr := cmd.ErrOrStderr()
			var (
				mu      sync.Mutex
				changed []string
			)
			report := func(format string, a ...any) {
				mu.Lock()
				defer mu.Unlock()
				_, _ = fmt.Fprintf(stderr, format, a...)
			}

			eg, ctx := errgroup.WithContext(cmd.Context())
			if jobs <= 0 {
				jobs = runtime.GOMAXPROCS(0)
			}
			eg.SetLimit(jobs)
			traced := 0
			for _, p := range progs {
				p := p
				if p.Size > maxFileSize {
					report("Warning: %s: skipped (>%d bytes)\n", p.Path, maxFileSize)
					continue
				}
				traced++
				eg.Go(func() error {
					source, err := os.ReadFile(filepath.Join(root, p.Path))
					if err != nil {
						return fmt.Errorf("%s: %w", p.Path, err)
					}
					trace := sandbox.Run(ctx, string(source), sandboxConfig(cfg, log.With().Str("program", p.Path).Logger()))
					data, err := json.MarshalIndent(trace, "", "  ")
					if err != nil {
						return fmt.Errorf("%s: encoding trace: %w", p.Path, err)
					}
					data = append(data, '\n')

					out := filepath.Join(root, discover.TracePath(p.Path))
					if check {
						old, err := os.ReadFile(out)
						if err != nil || !bytes.Equal(old, data) {
							mu.Lock()
							changed = append(changed, p.Path)
							mu.Unlock()
						}
						return nil
					}
					if err := os.WriteFile(out, data, 0o644); err != nil {
						return fmt.Errorf("%s: %w", p.Path, err)
					}
					log.Debug().Str("program", p.Path).Int("records", len(trace)).Msg("wrote trace")
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}

			if check {
				if len(changed) > 0 {
					slices.Sort(changed)
					for _, p := range changed {
						report("%s: trace differs\n", p)
					}
					return fmt.Errorf("%d of %d traces differ", len(changed), traced)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d traces match\n", traced)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d traces\n", traced)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "compare with the trace files instead of writing them")
	cmd.Flags().BoolVar(&ids, "ids", false, "report object ids")
	cmd.Flags().Int64Var(&maxFileSize, "max-file-size", defaultMaxFileSize, "skip programs larger than this many bytes")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "programs traced at once (default: number of CPUs)")
	return cmd
}
