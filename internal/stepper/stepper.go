// Package stepper turns interpreter events into trace records.
//
// A Stepper is the Tracer of one run: it keeps the call-site spans current,
// walks the frame stack into a record for every line, return and exception
// event, and stops the program once the step budget is spent.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/phobologic/pytutor/internal/callsite"
	"github.com/phobologic/pytutor/internal/encode"
	"github.com/phobologic/pytutor/internal/interp"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/parse"
)

// DefaultMaxSteps is the step budget used when none is configured.
const DefaultMaxSteps = 200

// State is the dispatcher state.
type State int

const (
	Running State = iota
	Recording
	LimitReached
	Uncaught
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Recording:
		return "recording"
	case LimitReached:
		return "limit_reached"
	case Uncaught:
		return "uncaught"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Names the runtime keeps in namespaces that are never shown.
var hiddenLocals = map[string]bool{
	"__stdout__":    true,
	"__builtins__":  true,
	"__name__":      true,
	"__exception__": true,
	"__module__":    true,
}

var hiddenGlobals = map[string]bool{
	"__stdout__":    true,
	"__builtins__":  true,
	"__name__":      true,
	"__exception__": true,
	"__return__":    true,
}

// Inspector is what the stepper needs from the running interpreter.
type Inspector interface {
	encode.Inspector
	Str(v interp.Value) (string, error)
	ExceptionMessage(exc *interp.Exception) string
}

// Config controls a run.
type Config struct {
	MaxSteps  int
	StableIDs bool
	Logger    zerolog.Logger
}

// Stepper records the trace of one run. It is not safe for concurrent use.
type Stepper struct {
	max     int
	stable  bool
	log     zerolog.Logger
	state   State
	trace   model.Trace
	visited map[int]bool
	spans   *callsite.Tracker

	insp   Inspector
	enc    *encode.Encoder
	stdout func() string
}

// New returns a stepper for a run of source.
func New(source string, cfg Config) *Stepper {
	limit := cfg.MaxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	return &Stepper{
		max:     limit,
		stable:  cfg.StableIDs,
		log:     cfg.Logger,
		visited: map[int]bool{},
		spans:   callsite.New(source, cfg.Logger),
		stdout:  func() string { return "" },
	}
}

// Bind attaches the interpreter being traced and the source of captured
// output. It must be called before the first event.
func (s *Stepper) Bind(insp Inspector, stdout func() string) {
	s.insp = insp
	s.enc = encode.New(insp, s.stable)
	s.stdout = stdout
}

// State returns the current dispatcher state.
func (s *Stepper) State() State { return s.state }

// Steps returns the number of records so far.
func (s *Stepper) Steps() int { return len(s.trace) }

// Trace implements interp.Tracer.
func (s *Stepper) Trace(ev interp.Event) error {
	if s.state == LimitReached || s.state == Uncaught {
		return interp.ErrStopped
	}
	f := ev.Frame()
	switch ev.Kind {
	case interp.EventCall:
		if c := ev.Caller(); c != nil {
			s.spans.Call(c.ID, c.Site)
		}
		return nil
	case interp.EventLine:
		s.spans.Line(f.ID)
		return s.record(ev, model.StepLine)
	case interp.EventReturn:
		var caller uint64
		if c := ev.Caller(); c != nil {
			caller = c.ID
		}
		s.spans.Return(caller, s.str(ev.Value))
		return s.record(ev, model.Return)
	case interp.EventException:
		return s.record(ev, model.Exception)
	}
	return nil
}

func (s *Stepper) str(v interp.Value) string {
	text, err := s.insp.Str(v)
	if err != nil {
		s.log.Debug().Err(err).Msg("return value has no string form")
		return "<unprintable>"
	}
	return text
}

func (s *Stepper) record(ev interp.Event, kind model.EventKind) error {
	s.state = Recording
	f := ev.Frame()

	var ret interp.Value
	if kind == model.Return {
		ret = ev.Value
	}
	stack := make([]model.FrameLocals, 0, len(ev.Stack))
	for i := len(ev.Stack) - 1; i >= 0; i-- {
		fr := ev.Stack[i]
		if fr.IsTopLevel() {
			break
		}
		locals := s.encodeNamespace(fr.Locals, hiddenLocals)
		if i == len(ev.Stack)-1 && ret != nil {
			locals["__return__"] = s.enc.Value(ret)
		}
		stack = append(stack, model.FrameLocals{Name: fr.DisplayName(), Locals: locals})
	}

	out := s.stdout()
	rec := model.Record{
		Event:        kind,
		Line:         f.Line,
		FuncName:     f.Name,
		VisitedLines: s.visitedSnapshot(),
		Globals:      s.encodeNamespace(ev.Stack[0].Locals, hiddenGlobals),
		StackLocals:  stack,
		Stdout:       &out,
		CallerInfo:   s.spans.CallerInfo(),
	}
	if kind == model.Exception && ev.Exc != nil {
		rec.ExceptionMsg = s.insp.ExceptionMessage(ev.Exc)
	}
	s.visited[f.Line] = true
	s.trace = append(s.trace, rec)
	s.log.Trace().
		Str("event", string(kind)).
		Str("func", f.Name).
		Int("line", f.Line).
		Int("step", len(s.trace)).
		Msg("recorded")

	if len(s.trace) >= s.max {
		s.trace = append(s.trace, model.Record{
			Event:        model.InstructionLimitReached,
			ExceptionMsg: fmt.Sprintf("(stopped after %d steps to prevent possible infinite loop)", s.max),
		})
		s.state = LimitReached
		s.log.Debug().Int("max_steps", s.max).Msg("step budget exhausted")
		return interp.ErrStopped
	}
	s.state = Running
	return nil
}

func (s *Stepper) encodeNamespace(ns *interp.Namespace, hidden map[string]bool) map[string]any {
	out := make(map[string]any, ns.Len())
	ns.Each(func(name string, v interp.Value) {
		if hidden[name] {
			return
		}
		out[name] = s.enc.Value(v)
	})
	return out
}

func (s *Stepper) visitedSnapshot() []int {
	lines := make([]int, 0, len(s.visited))
	for l := range s.visited {
		lines = append(lines, l)
	}
	slices.Sort(lines)
	return lines
}

// Fail records how the run ended when the program did not complete
// normally. A nil error or a stop requested by the budget adds nothing.
func (s *Stepper) Fail(err error) {
	if err == nil {
		return
	}
	if s.state == LimitReached && errors.Is(err, interp.ErrStopped) {
		return
	}
	if s.state == Uncaught {
		return
	}
	s.state = Uncaught
	rec := model.Record{Event: model.UncaughtException, ExceptionMsg: "Unknown error"}

	var syn *parse.SyntaxError
	if exc, ok := interp.AsException(err); ok {
		rec.Line = exc.Line
		rec.Offset = exc.Col + 1
		if s.insp != nil {
			rec.ExceptionMsg = s.insp.ExceptionMessage(exc)
		} else {
			rec.ExceptionMsg = exc.Message(nil)
		}
	} else if errors.As(err, &syn) {
		rec.Line = syn.Line
		rec.Offset = syn.Offset
		rec.ExceptionMsg = "Error: " + syn.Msg
	} else {
		ev := s.log.Warn()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			ev = s.log.Info()
		}
		ev.Err(err).Msg("run ended without a program exception")
	}
	s.trace = append(s.trace, rec)
}

// Finish returns the trace with the records that follow the end of the
// program removed.
func (s *Stepper) Finish() model.Trace {
	return Trim(s.trace)
}

// Trim applies the end-of-trace rules: nothing follows the top-level
// return, and a top-level return right after an exception is dropped.
func Trim(trace model.Trace) model.Trace {
	out := make(model.Trace, 0, len(trace))
	for i := range trace {
		out = append(out, trace[i])
		if trace[i].IsTopLevelReturn() {
			break
		}
	}
	if n := len(out); n >= 2 && out[n-2].Event == model.Exception && out[n-1].IsTopLevelReturn() {
		out = out[:n-1]
	}
	return out
}
