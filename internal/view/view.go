// Package view renders trace records for a terminal.
package view

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/phobologic/pytutor/internal/encode"
	"github.com/phobologic/pytutor/internal/model"
)

// Renderer writes one step at a time.
type Renderer struct {
	w     io.Writer
	lines []string

	header  *color.Color
	current *color.Color
	visited *color.Color
	name    *color.Color
	call    *color.Color
	fault   *color.Color
	dim     *color.Color
}

// New returns a renderer for a trace of source. Color is emitted only when
// useColor is set.
func New(w io.Writer, source string, useColor bool) *Renderer {
	r := &Renderer{
		w:       w,
		lines:   strings.Split(strings.TrimRight(source, "\n"), "\n"),
		header:  color.New(color.Bold),
		current: color.New(color.FgGreen, color.Bold),
		visited: color.New(color.FgCyan),
		name:    color.New(color.FgYellow),
		call:    color.New(color.FgMagenta, color.Underline),
		fault:   color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.header, r.current, r.visited, r.name, r.call, r.fault, r.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Step renders record i of trace.
func (r *Renderer) Step(trace model.Trace, i int) {
	rec := trace[i]
	title := fmt.Sprintf("Step %d/%d  %s", i+1, len(trace), rec.Event)
	if rec.FuncName != "" {
		title += fmt.Sprintf("  %s:%d", rec.FuncName, rec.Line)
	}
	_, _ = r.header.Fprintln(r.w, title)

	switch rec.Event {
	case model.InstructionLimitReached:
		_, _ = r.fault.Fprintln(r.w, rec.ExceptionMsg)
		return
	case model.UncaughtException:
		r.source(rec)
		_, _ = r.fault.Fprintln(r.w, rec.ExceptionMsg)
		return
	}

	r.source(rec)
	if rec.CallerInfo != nil {
		r.callerInfo(rec.CallerInfo)
	}
	r.frame("Global frame", rec.Globals)
	for j := len(rec.StackLocals) - 1; j >= 0; j-- {
		fl := rec.StackLocals[j]
		r.frame(fl.Name, fl.Locals)
	}
	if rec.ExceptionMsg != "" {
		_, _ = r.fault.Fprintln(r.w, rec.ExceptionMsg)
	}
	if rec.Stdout != nil && *rec.Stdout != "" {
		_, _ = r.header.Fprintln(r.w, "Output:")
		for _, l := range strings.Split(strings.TrimRight(*rec.Stdout, "\n"), "\n") {
			_, _ = fmt.Fprintf(r.w, "  %s\n", l)
		}
	}
}

// All renders every record of trace separated by blank lines.
func (r *Renderer) All(trace model.Trace) {
	for i := range trace {
		if i > 0 {
			_, _ = fmt.Fprintln(r.w)
		}
		r.Step(trace, i)
	}
}

func (r *Renderer) source(rec model.Record) {
	width := len(fmt.Sprint(len(r.lines)))
	for n, text := range r.lines {
		line := n + 1
		num := fmt.Sprintf("%*d", width, line)
		switch {
		case line == rec.Line:
			_, _ = r.current.Fprintf(r.w, "→ %s  %s\n", num, text)
			if rec.Offset > 0 && rec.Event == model.UncaughtException {
				pad := runewidth.StringWidth(text[:min(rec.Offset-1, len(text))])
				_, _ = r.fault.Fprintf(r.w, "  %s  %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", pad))
			}
		case slices.Contains(rec.VisitedLines, line):
			_, _ = r.visited.Fprintf(r.w, "  %s  %s\n", num, text)
		default:
			_, _ = r.dim.Fprintf(r.w, "  %s  %s\n", num, text)
		}
	}
}

func (r *Renderer) callerInfo(ci *model.CallerInfo) {
	start, end := ci.RelativePositions[0], ci.RelativePositions[1]
	if start < 0 || end < start || end > len(ci.Code) {
		return
	}
	_, _ = fmt.Fprintf(r.w, "Call: %s", ci.Code[:start])
	_, _ = r.call.Fprint(r.w, ci.Code[start:end])
	_, _ = fmt.Fprintf(r.w, "%s\n", ci.Code[end:])
}

func (r *Renderer) frame(title string, locals map[string]any) {
	_, _ = r.header.Fprintln(r.w, title)
	names := make([]string, 0, len(locals))
	width := 0
	for name := range locals {
		names = append(names, name)
		width = max(width, runewidth.StringWidth(name))
	}
	slices.Sort(names)
	if i := slices.Index(names, "__return__"); i >= 0 {
		names = append(slices.Delete(names, i, i+1), "__return__")
	}
	for _, name := range names {
		_, _ = fmt.Fprint(r.w, "  ")
		_, _ = r.name.Fprint(r.w, runewidth.FillRight(name, width))
		_, _ = fmt.Fprintf(r.w, " = %s\n", encode.String(locals[name]))
	}
}
