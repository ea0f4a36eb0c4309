package interp

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by a Tracer to end execution at the current event.
var ErrStopped = errors.New("execution stopped")

// Exception is a raised program-level exception travelling as a Go error.
type Exception struct {
	Value *Instance

	// Line and Col locate the statement where the exception was raised.
	Line int
	Col  int

	// reported is the id of the last frame that saw an exception event for
	// this raise.
	reported uint64
}

// NewError builds an exception of class cls with a formatted message.
func NewError(cls *Class, format string, args ...any) *Exception {
	inst := NewInstance(cls)
	inst.Args = []Value{fmt.Sprintf(format, args...)}
	return &Exception{Value: inst}
}

func (e *Exception) Error() string {
	return e.Message(nil)
}

// TypeName returns the exception's class name.
func (e *Exception) TypeName() string { return e.Value.Class.Name }

// Message formats e as "Type: description". A nil interpreter formats
// arguments without calling user-defined __str__ methods.
func (e *Exception) Message(in *Interp) string {
	return e.TypeName() + ": " + in.exceptionDesc(e.Value)
}

// ExceptionMessage formats exc the way Message does, running user-defined
// __str__ methods without tracing them.
func (in *Interp) ExceptionMessage(exc *Exception) string { return exc.Message(in) }

// AsException reports whether err carries a program exception.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}

func (in *Interp) exceptionDesc(inst *Instance) string {
	if in != nil && !inst.Class.builtin {
		if _, owner, ok := inst.Class.Lookup("__str__"); ok && !owner.builtin {
			if s, err := in.Str(inst); err == nil {
				return s
			}
		}
	}
	switch len(inst.Args) {
	case 0:
		return ""
	case 1:
		if inst.Class.IsSubclass(KeyErrorClass) {
			return in.reprOrPlaceholder(inst.Args[0])
		}
		return in.strOrPlaceholder(inst.Args[0])
	}
	return in.reprOrPlaceholder(NewTuple(inst.Args...))
}

func (in *Interp) strOrPlaceholder(v Value) string {
	s, err := in.Str(v)
	if err != nil {
		return "<" + TypeName(v) + ">"
	}
	return s
}

func (in *Interp) reprOrPlaceholder(v Value) string {
	s, err := in.Repr(v)
	if err != nil {
		return "<" + TypeName(v) + ">"
	}
	return s
}

func (in *Interp) raiseValue(v Value) error {
	switch v := v.(type) {
	case *Class:
		if !v.IsException() {
			return NewError(TypeErrorClass, "exceptions must derive from BaseException")
		}
		obj, err := in.callValue(v, nil, nil)
		if err != nil {
			return err
		}
		return in.raiseValue(obj)
	case *Instance:
		if !v.Class.IsException() {
			return NewError(TypeErrorClass, "exceptions must derive from BaseException")
		}
		return &Exception{Value: v}
	}
	return NewError(TypeErrorClass, "exceptions must derive from BaseException")
}
