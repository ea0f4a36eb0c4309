// Package toon renders traces in TOON (Token-Oriented Object Notation), a
// compact tabular text form.
package toon

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/phobologic/pytutor/internal/encode"
	"github.com/phobologic/pytutor/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a trace into TOON. Steps are numbered from 1; bindings
// and calls refer to their step by number.
func Encode(name string, trace model.Trace) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("program: %s", encodeValue(name)))

	var stepRows, bindRows, callRows [][]string
	for i := range trace {
		r := &trace[i]
		step := fmt.Sprintf("%d", i+1)

		stdout := ""
		if r.Stdout != nil {
			stdout = *r.Stdout
		}
		line := ""
		if r.Line > 0 {
			line = fmt.Sprintf("%d", r.Line)
		}
		stepRows = append(stepRows, []string{
			step,
			string(r.Event),
			r.FuncName,
			line,
			fmt.Sprintf("%d", len(r.StackLocals)),
			r.ExceptionMsg,
			stdout,
		})

		bindRows = append(bindRows, bindings(step, "", r.Globals)...)
		for j := range r.StackLocals {
			fl := &r.StackLocals[j]
			bindRows = append(bindRows, bindings(step, fl.Name, fl.Locals)...)
		}

		if ci := r.CallerInfo; ci != nil {
			callRows = append(callRows, []string{
				step,
				fmt.Sprintf("%d", ci.CallingFrameID),
				ci.Code,
				fmt.Sprintf("%d", ci.RelativePositions[0]),
				fmt.Sprintf("%d", ci.RelativePositions[1]),
			})
		}
	}
	parts = append(parts, formatTabular("steps", []string{"step", "event", "func", "line", "depth", "exception", "stdout"}, stepRows))
	parts = append(parts, formatTabular("bindings", []string{"step", "frame", "name", "value"}, bindRows))
	if len(callRows) > 0 {
		parts = append(parts, formatTabular("calls", []string{"step", "frame", "code", "start", "end"}, callRows))
	}

	return strings.Join(parts, "\n")
}

// bindings lists the names of one frame in order. An empty frame name is
// the global frame.
func bindings(step, frame string, locals map[string]any) [][]string {
	names := make([]string, 0, len(locals))
	for n := range locals {
		names = append(names, n)
	}
	slices.Sort(names)
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{step, frame, n, encode.String(locals[n])})
	}
	return rows
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}
	if value != strings.TrimSpace(value) || strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
