// Package interp executes parsed programs on an explicit frame stack and
// reports every call, line, return and exception to a Tracer.
package interp

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/phobologic/pytutor/internal/ast"
)

// DefaultMaxDepth is the default recursion limit.
const DefaultMaxDepth = 1000

// quietStepLimit bounds the statements a program may run inside an
// untraced __str__ or __repr__ call.
const quietStepLimit = 10000

// Options configures an Interp.
type Options struct {
	Tracer Tracer
	Stdout io.Writer

	// Builtins is the complete set of names visible to the program when
	// not defined in the module. Nothing else is reachable.
	Builtins map[string]Value

	MaxDepth int
	Logger   zerolog.Logger
}

// Interp runs one program. It is not safe for concurrent use; every run
// gets its own Interp.
type Interp struct {
	ctx      context.Context
	tracer   Tracer
	out      io.Writer
	builtins *Namespace
	globals  *Namespace
	stack    []*Frame
	handling []*Exception
	maxDepth int
	log      zerolog.Logger

	ids      map[any]uint64
	nextID   uint64
	frameSeq uint64

	quiet      int
	quietSteps int
}

// New returns an interpreter with an empty module namespace.
func New(opts Options) *Interp {
	in := &Interp{
		ctx:      context.Background(),
		tracer:   opts.Tracer,
		out:      opts.Stdout,
		builtins: NewNamespace(),
		globals:  NewNamespace(),
		maxDepth: opts.MaxDepth,
		log:      opts.Logger,
		ids:      map[any]uint64{},
	}
	if in.out == nil {
		in.out = io.Discard
	}
	if in.maxDepth <= 0 {
		in.maxDepth = DefaultMaxDepth
	}
	for name, v := range opts.Builtins {
		in.builtins.Set(name, v)
	}
	in.globals.Set("__name__", "__main__")
	return in
}

// Globals returns the module namespace.
func (in *Interp) Globals() *Namespace { return in.globals }

// SetOutput redirects program output to w and returns a function that
// restores the previous destination.
func (in *Interp) SetOutput(w io.Writer) (restore func()) {
	prev := in.out
	in.out = w
	return func() { in.out = prev }
}

// Run executes mod in the module namespace. A program exception escaping
// the module is returned as *Exception; a tracer error is returned as is.
func (in *Interp) Run(ctx context.Context, mod *ast.Module) error {
	in.ctx = ctx
	env := &Env{kind: envModule, vars: in.globals, scope: mod.Scope, globals: in.globals}
	f := in.newFrame(TopLevelName, 1, in.globals, env)
	in.push(f)
	defer in.pop()

	a := &activation{in: in, f: f, env: env}
	if _, err := a.execBlock(mod.Body); err != nil {
		return err
	}
	return in.emit(EventReturn, None, nil)
}

// ID returns the identity number of v, stable for the life of the run.
func (in *Interp) ID(v Value) uint64 {
	if f, ok := v.(float64); ok && f != f {
		in.nextID++
		return in.nextID
	}
	if id, ok := in.ids[v]; ok {
		return id
	}
	in.nextID++
	in.ids[v] = in.nextID
	return in.nextID
}

// Depth returns the number of live frames.
func (in *Interp) Depth() int { return len(in.stack) }

func (in *Interp) newFrame(name string, line int, locals *Namespace, env *Env) *Frame {
	in.frameSeq++
	return &Frame{ID: in.frameSeq, Name: name, FirstLine: line, Line: line, Locals: locals, env: env}
}

func (in *Interp) push(f *Frame) { in.stack = append(in.stack, f) }

func (in *Interp) pop() {
	in.stack[len(in.stack)-1] = nil
	in.stack = in.stack[:len(in.stack)-1]
}

func (in *Interp) top() *Frame {
	if len(in.stack) == 0 {
		return nil
	}
	return in.stack[len(in.stack)-1]
}

// emit delivers an event for the innermost frame.
func (in *Interp) emit(kind EventKind, val Value, exc *Exception) error {
	if in.quiet > 0 || in.tracer == nil {
		return nil
	}
	if err := in.ctx.Err(); err != nil {
		return err
	}
	f := in.top()
	in.log.Trace().Str("event", kind.String()).Str("frame", f.Name).Int("line", f.Line).Int("depth", len(in.stack)).Msg("step")
	return in.tracer.Trace(Event{Kind: kind, Stack: in.stack[:len(in.stack):len(in.stack)], Value: val, Exc: exc})
}

// markLine moves f to line, emitting a line event when the line changes.
func (in *Interp) markLine(f *Frame, line, col int) error {
	f.col = col
	if line == f.lastLine {
		return nil
	}
	f.lastLine = line
	f.Line = line
	if in.quiet > 0 {
		in.quietSteps++
		if in.quietSteps > quietStepLimit {
			return NewError(RuntimeErrorClass, "string conversion ran too long")
		}
		return nil
	}
	return in.emit(EventLine, nil, nil)
}

// noteException records where exc was raised and emits one exception
// event per frame it passes through.
func (in *Interp) noteException(f *Frame, err error) error {
	exc, ok := err.(*Exception)
	if !ok {
		return err
	}
	if exc.Line == 0 {
		exc.Line, exc.Col = f.Line, f.col
	}
	if exc.reported == f.ID {
		return err
	}
	exc.reported = f.ID
	if terr := in.emit(EventException, nil, exc); terr != nil {
		return terr
	}
	return err
}

// unwind handles an error leaving function frame f: the frame reports a
// None return before the exception moves to its caller.
func (in *Interp) unwind(f *Frame, err error) error {
	err = in.noteException(f, err)
	if _, ok := err.(*Exception); !ok {
		return err
	}
	if terr := in.emit(EventReturn, None, nil); terr != nil {
		return terr
	}
	return err
}

// runQuiet calls fn with tracing suspended.
func (in *Interp) runQuiet(fn func() (Value, error)) (Value, error) {
	if in.quiet == 0 {
		in.quietSteps = 0
	}
	in.quiet++
	defer func() { in.quiet-- }()
	return fn()
}
