package interp

import (
	"slices"
)

// Class is a user-defined or builtin type.
type Class struct {
	Name  string
	Bases []*Class
	MRO   []*Class
	Attrs *Namespace

	builtin bool
	ctor    func(in *Interp, cls *Class, args []Value, kw []Kwarg) (Value, error)
}

// Instance is an object of a user-defined class. Exceptions are instances
// whose class derives from BaseException; Args holds their arguments.
type Instance struct {
	Class *Class
	Attrs *Namespace
	Args  []Value
}

// NewInstance returns an instance of cls with no attributes.
func NewInstance(cls *Class) *Instance {
	return &Instance{Class: cls, Attrs: NewNamespace()}
}

func builtinClass(name string, bases ...*Class) *Class {
	c := &Class{Name: name, Bases: bases, Attrs: NewNamespace(), builtin: true}
	c.MRO = []*Class{c}
	for _, b := range bases {
		for _, m := range b.MRO {
			if !slices.Contains(c.MRO, m) {
				c.MRO = append(c.MRO, m)
			}
		}
	}
	return c
}

// newUserClass builds a class from a class statement, computing its C3
// linearization.
func newUserClass(name string, bases []*Class, attrs *Namespace) (*Class, error) {
	if len(bases) == 0 {
		bases = []*Class{ObjectClass}
	}
	for _, b := range bases {
		if b.builtin && b != ObjectClass && !b.IsSubclass(BaseExceptionClass) {
			return nil, NewError(TypeErrorClass, "subclassing '%s' is not supported", b.Name)
		}
	}
	c := &Class{Name: name, Bases: bases, Attrs: attrs}
	seqs := make([][]*Class, 0, len(bases)+1)
	for _, b := range bases {
		seqs = append(seqs, slices.Clone(b.MRO))
	}
	seqs = append(seqs, slices.Clone(bases))
	mro, ok := c3merge(seqs)
	if !ok {
		return nil, NewError(TypeErrorClass, "Cannot create a consistent method resolution order (MRO) for bases")
	}
	c.MRO = append([]*Class{c}, mro...)
	return c, nil
}

func c3merge(seqs [][]*Class) ([]*Class, bool) {
	var out []*Class
	for {
		empty := true
		for _, s := range seqs {
			if len(s) > 0 {
				empty = false
				break
			}
		}
		if empty {
			return out, true
		}
		var head *Class
		for _, s := range seqs {
			if len(s) == 0 {
				continue
			}
			cand := s[0]
			inTail := false
			for _, other := range seqs {
				if len(other) > 1 && slices.Contains(other[1:], cand) {
					inTail = true
					break
				}
			}
			if !inTail {
				head = cand
				break
			}
		}
		if head == nil {
			return nil, false
		}
		out = append(out, head)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

// Lookup finds name along the MRO and returns the value with the class
// that defines it.
func (c *Class) Lookup(name string) (Value, *Class, bool) {
	for _, k := range c.MRO {
		if v, ok := k.Attrs.Get(name); ok {
			return v, k, true
		}
	}
	return nil, nil, false
}

// lookupAfter searches the MRO of c for name, starting after class after.
func (c *Class) lookupAfter(after *Class, name string) (Value, bool) {
	i := slices.Index(c.MRO, after)
	for _, k := range c.MRO[i+1:] {
		if v, ok := k.Attrs.Get(name); ok {
			return v, true
		}
	}
	return nil, false
}

// IsSubclass reports whether c derives from other.
func (c *Class) IsSubclass(other *Class) bool {
	return slices.Contains(c.MRO, other)
}

// IsException reports whether c is an exception class.
func (c *Class) IsException() bool { return c.IsSubclass(BaseExceptionClass) }

// Builtin reports whether c is implemented by the interpreter.
func (c *Class) Builtin() bool { return c.builtin }

// Builtin types.
var (
	ObjectClass          = builtinClass("object")
	TypeClass            = builtinClass("type", ObjectClass)
	NoneTypeClass        = builtinClass("NoneType", ObjectClass)
	IntClass             = builtinClass("int", ObjectClass)
	BoolClass            = builtinClass("bool", IntClass)
	FloatClass           = builtinClass("float", ObjectClass)
	StrClass             = builtinClass("str", ObjectClass)
	ListClass            = builtinClass("list", ObjectClass)
	TupleClass           = builtinClass("tuple", ObjectClass)
	DictClass            = builtinClass("dict", ObjectClass)
	SetClass             = builtinClass("set", ObjectClass)
	RangeClass           = builtinClass("range", ObjectClass)
	FunctionClass        = builtinClass("function", ObjectClass)
	BuiltinFunctionClass = builtinClass("builtin_function_or_method", ObjectClass)
	MethodClass          = builtinClass("method", ObjectClass)
	IteratorClass        = builtinClass("iterator", ObjectClass)
	SuperClass           = builtinClass("super", ObjectClass)
	SliceClass           = builtinClass("slice", ObjectClass)
)

// Exception hierarchy.
var (
	BaseExceptionClass       = builtinClass("BaseException", ObjectClass)
	ExceptionClass           = builtinClass("Exception", BaseExceptionClass)
	ArithmeticErrorClass     = builtinClass("ArithmeticError", ExceptionClass)
	ZeroDivisionErrorClass   = builtinClass("ZeroDivisionError", ArithmeticErrorClass)
	OverflowErrorClass       = builtinClass("OverflowError", ArithmeticErrorClass)
	LookupErrorClass         = builtinClass("LookupError", ExceptionClass)
	IndexErrorClass          = builtinClass("IndexError", LookupErrorClass)
	KeyErrorClass            = builtinClass("KeyError", LookupErrorClass)
	ValueErrorClass          = builtinClass("ValueError", ExceptionClass)
	TypeErrorClass           = builtinClass("TypeError", ExceptionClass)
	NameErrorClass           = builtinClass("NameError", ExceptionClass)
	UnboundLocalErrorClass   = builtinClass("UnboundLocalError", NameErrorClass)
	AttributeErrorClass      = builtinClass("AttributeError", ExceptionClass)
	RuntimeErrorClass        = builtinClass("RuntimeError", ExceptionClass)
	RecursionErrorClass      = builtinClass("RecursionError", RuntimeErrorClass)
	NotImplementedErrorClass = builtinClass("NotImplementedError", RuntimeErrorClass)
	AssertionErrorClass      = builtinClass("AssertionError", ExceptionClass)
	StopIterationClass       = builtinClass("StopIteration", ExceptionClass)
	ImportErrorClass         = builtinClass("ImportError", ExceptionClass)
	ModuleNotFoundErrorClass = builtinClass("ModuleNotFoundError", ImportErrorClass)
	MemoryErrorClass         = builtinClass("MemoryError", ExceptionClass)
)

// ExceptionClasses lists the exception types a program may name.
var ExceptionClasses = []*Class{
	BaseExceptionClass, ExceptionClass, ArithmeticErrorClass, ZeroDivisionErrorClass,
	OverflowErrorClass, LookupErrorClass, IndexErrorClass, KeyErrorClass, ValueErrorClass,
	TypeErrorClass, NameErrorClass, UnboundLocalErrorClass, AttributeErrorClass,
	RuntimeErrorClass, RecursionErrorClass, NotImplementedErrorClass, AssertionErrorClass,
	StopIterationClass, ImportErrorClass, ModuleNotFoundErrorClass, MemoryErrorClass,
}
