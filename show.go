package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phobologic/pytutor/internal/logging"
	"github.com/phobologic/pytutor/internal/sandbox"
	"github.com/phobologic/pytutor/internal/view"
)

func newShowCmd(g *globalFlags) *cobra.Command {
	var colorMode string
	cmd := &cobra.Command{
		Use:   "show [file|-]",
		Short: "Render every step of a program's execution",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			useColor, err := colorEnabled(colorMode, cmd)
			if err != nil {
				return err
			}
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			_, source, err := readProgram(cmd, args)
			if err != nil {
				return err
			}
			trace := sandbox.Run(cmd.Context(), source, sandboxConfig(cfg, log))
			view.New(cmd.OutOrStdout(), source, useColor).All(trace)
			return nil
		},
	}
	cmd.Flags().StringVar(&colorMode, "color", "auto", "colorize output: auto, on or off")
	return cmd
}

func colorEnabled(mode string, cmd *cobra.Command) (bool, error) {
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return logging.IsTerminal(cmd.OutOrStdout()), nil
	}
	return false, fmt.Errorf("unknown color mode %q (want auto, on or off)", mode)
}
