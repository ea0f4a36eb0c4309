package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/sandbox"
	"github.com/phobologic/pytutor/internal/view"
)

const stepHelp = `commands:
  n, <enter>  next step
  p           previous step
  g N         go to step N
  f, l        first or last step
  q           quit`

func newStepCmd(g *globalFlags) *cobra.Command {
	var colorMode string
	cmd := &cobra.Command{
		Use:   "step file",
		Short: "Walk through a program's execution interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				return errors.New("step reads commands from standard input; pass the program as a file")
			}
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
			s := &session{
				trace: trace,
				r:     view.New(cmd.OutOrStdout(), source, useColor),
				out:   cmd.OutOrStdout(),
			}
			s.show()

			if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
				return s.interactive()
			}
			return s.scripted(cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&colorMode, "color", "auto", "colorize output: auto, on or off")
	return cmd
}

// session is the cursor of an interactive walk through a trace.
type session struct {
	trace model.Trace
	pos   int
	r     *view.Renderer
	out   io.Writer
}

func (s *session) show() {
	if len(s.trace) == 0 {
		return
	}
	s.r.Step(s.trace, s.pos)
}

// exec applies one command and reports whether the session is over.
func (s *session) exec(line string) (quit bool) {
	fields := strings.Fields(line)
	verb := "n"
	if len(fields) > 0 {
		verb = fields[0]
	}
	switch verb {
	case "q", "quit", "exit":
		return true
	case "n", "next":
		if s.pos+1 >= len(s.trace) {
			_, _ = fmt.Fprintln(s.out, "at the last step")
			return false
		}
		s.pos++
	case "p", "prev":
		if s.pos == 0 {
			_, _ = fmt.Fprintln(s.out, "at the first step")
			return false
		}
		s.pos--
	case "f", "first":
		s.pos = 0
	case "l", "last":
		s.pos = max(len(s.trace)-1, 0)
	case "g", "goto":
		if len(fields) != 2 {
			_, _ = fmt.Fprintln(s.out, "usage: g N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(s.trace) {
			_, _ = fmt.Fprintf(s.out, "step must be between 1 and %d\n", len(s.trace))
			return false
		}
		s.pos = n - 1
	case "h", "help", "?":
		_, _ = fmt.Fprintln(s.out, stepHelp)
		return false
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command %q (h for help)\n", verb)
		return false
	}
	s.show()
	return false
}

func (s *session) interactive() error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	for {
		in, err := line.Prompt(fmt.Sprintf("[%d/%d] ", s.pos+1, len(s.trace)))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		if strings.TrimSpace(in) != "" {
			line.AppendHistory(in)
		}
		if s.exec(in) {
			return nil
		}
	}
}

// scripted reads commands from r, one per line, until EOF or quit.
func (s *session) scripted(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s.exec(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}
