// pytutor records step-by-step execution traces of small Python programs.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phobologic/pytutor/internal/config"
	"github.com/phobologic/pytutor/internal/logging"
	"github.com/phobologic/pytutor/internal/sandbox"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

// globalFlags are the settings every subcommand accepts.
type globalFlags struct {
	configPath string
	logLevel   string
	maxSteps   int
	maxDepth   int
	noIDs      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pytutor",
		Short:         "Step-by-step execution traces of Python programs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(os.Stdin)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default: pytutor.toml or pytutor.yaml in the current directory)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.IntVar(&g.maxSteps, "max-steps", 0, "steps recorded before a run is stopped")
	pf.IntVar(&g.maxDepth, "max-depth", 0, "recursion limit of traced programs")
	pf.BoolVar(&g.noIDs, "no-ids", false, "report every object id as 0")

	root.AddCommand(
		newTraceCmd(g),
		newShowCmd(g),
		newStepCmd(g),
		newBatchCmd(g),
		newServeCmd(g),
		newInitCmd(),
	)
	return root
}

// load resolves the configuration of cmd: defaults, then the config file,
// then any flag the user set.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path := g.configPath
	if path == "" {
		path = config.Find(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = g.maxSteps
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = g.maxDepth
	}
	if flags.Changed("no-ids") {
		cfg.StableIDs = !g.noIDs
	}
	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), err
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func sandboxConfig(cfg config.Config, log zerolog.Logger) sandbox.Config {
	return sandbox.Config{
		MaxSteps:  cfg.MaxSteps,
		StableIDs: cfg.StableIDs,
		MaxDepth:  cfg.MaxDepth,
		Logger:    log,
	}
}

// readProgram returns the program named by args, reading standard input
// when there is no argument or it is "-". The name is used in output.
func readProgram(cmd *cobra.Command, args []string) (name, source string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("reading standard input: %w", err)
		}
		return "<stdin>", string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("%s: no such file", args[0])
		}
		return "", "", fmt.Errorf("reading program: %w", err)
	}
	return filepath.Base(args[0]), string(data), nil
}
