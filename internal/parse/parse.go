// Package parse reads submitted programs with tree-sitter and converts the
// concrete syntax tree into the executable tree of package ast.
package parse

import (
	"context"
	"fmt"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/pytutor/internal/ast"
	"github.com/phobologic/pytutor/internal/lang"
)

// SyntaxError reports a program that cannot be executed at all.
// Offset is 1-based, matching Python's SyntaxError.offset.
type SyntaxError struct {
	Line   int
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Program is a parsed submission.
type Program struct {
	Source string
	Lines  []string
	Module *ast.Module
}

// Parse reads source as a Python program.
func Parse(ctx context.Context, source string) (*Program, error) {
	src := []byte(source)
	parser := lang.Python.NewParser()

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing program: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := lang.FirstErrorNode(root); bad != nil {
		line, col := point(bad.StartPoint())
		return nil, &SyntaxError{Line: line, Offset: col + 1, Msg: "invalid syntax"}
	}
	if err := checkUnsupported(root, src); err != nil {
		return nil, err
	}

	c := &converter{src: src}
	body := c.block(root)
	if c.err != nil {
		return nil, c.err
	}
	return &Program{
		Source: source,
		Lines:  strings.Split(source, "\n"),
		Module: &ast.Module{Body: body, Scope: analyzeScope(nil, body)},
	}, nil
}

// checkUnsupported runs the embedded query and reports the first construct
// the interpreter does not execute.
func checkUnsupported(root *sitter.Node, src []byte) error {
	query, err := lang.Python.UnsupportedQuery()
	if err != nil {
		return err
	}
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	var first *SyntaxError
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, src)
		for _, capture := range match.Captures {
			name := query.CaptureNameForId(capture.Index)
			what, ok := strings.CutPrefix(name, "unsupported.")
			if !ok {
				continue
			}
			line, col := point(capture.Node.StartPoint())
			if first == nil || line < first.Line || (line == first.Line && col+1 < first.Offset) {
				first = &SyntaxError{Line: line, Offset: col + 1, Msg: "unsupported syntax: " + what}
			}
		}
	}
	if first != nil {
		return first
	}
	return nil
}

// point converts a tree-sitter point into a 1-based line and a 0-based byte column.
func point(p sitter.Point) (line, col int) {
	return safecast.MustConv[int](p.Row) + 1, safecast.MustConv[int](p.Column)
}
