package interp

import (
	"fmt"

	"github.com/phobologic/pytutor/internal/ast"
)

// TopLevelName is the code name of the module frame.
const TopLevelName = "<module>"

// EventKind is a trace notification kind.
type EventKind int

const (
	EventCall EventKind = iota
	EventLine
	EventReturn
	EventException
)

func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	case EventException:
		return "exception"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Frame is one activation on the interpreter's explicit stack.
type Frame struct {
	ID        uint64
	Name      string // code name: "<module>", "<lambda>" or the function name
	FirstLine int
	Line      int
	Locals    *Namespace

	// Site is the span of the call expression this frame is evaluating,
	// valid while a callee it started is running.
	Site ast.Pos

	lastLine int
	col      int
	env      *Env
	fn       *Function
}

// DisplayName is the name shown for the frame in stack listings.
func (f *Frame) DisplayName() string {
	switch f.Name {
	case "<lambda>":
		return fmt.Sprintf("lambda on line %d", f.FirstLine)
	case "":
		return "unnamed function"
	}
	return f.Name
}

// IsTopLevel reports whether f is the module frame.
func (f *Frame) IsTopLevel() bool { return f.Name == TopLevelName }

// Event is delivered to the Tracer. Stack runs from the module frame at
// index 0 to the frame the event happened in.
type Event struct {
	Kind  EventKind
	Stack []*Frame
	Value Value      // return value for EventReturn
	Exc   *Exception // EventException
}

// Frame returns the frame the event happened in.
func (e Event) Frame() *Frame { return e.Stack[len(e.Stack)-1] }

// Caller returns the caller of the event frame, or nil at top level.
func (e Event) Caller() *Frame {
	if len(e.Stack) < 2 {
		return nil
	}
	return e.Stack[len(e.Stack)-2]
}

// Tracer receives execution events. Returning an error stops execution;
// return ErrStopped for a deliberate halt.
type Tracer interface {
	Trace(ev Event) error
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(ev Event) error

// Trace calls f(ev).
func (f TracerFunc) Trace(ev Event) error { return f(ev) }
