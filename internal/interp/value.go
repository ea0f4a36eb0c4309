package interp

import (
	"math/big"

	"github.com/phobologic/pytutor/internal/ast"
)

// Value is any runtime value. Scalars use Go types directly: NoneType,
// bool, int64 (or *big.Int past its range), float64 and string. Everything else is a pointer so that
// identity is well defined.
type Value any

// NoneType is the type of None.
type NoneType struct{}

// None is the singleton None value.
var None Value = NoneType{}

// List is a mutable sequence.
type List struct {
	Items []Value
}

// Tuple is an immutable sequence.
type Tuple struct {
	Items []Value
}

// Range is the lazy integer sequence returned by range().
type Range struct {
	Start, Stop, Step int64
}

// Len returns the number of elements in r.
func (r *Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// At returns the i-th element of r.
func (r *Range) At(i int64) int64 { return r.Start + i*r.Step }

// Function is a user-defined function or lambda.
type Function struct {
	Name     string
	Params   []ast.Param
	Defaults []Value // parallel to Params; nil where no default
	Body     []ast.Stmt
	Expr     ast.Expr // lambda body
	Scope    *ast.Scope
	Closure  *Env
	Line     int
	Lambda   bool
	Owner    *Class // class whose body defined the function, for super()
}

// Kwarg is one keyword argument at a call.
type Kwarg struct {
	Name  string
	Value Value
}

// BuiltinFunc implements a builtin. Methods receive their receiver as
// args[0].
type BuiltinFunc func(in *Interp, args []Value, kw []Kwarg) (Value, error)

// Builtin is a function implemented in Go.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

// BoundMethod pairs a callable with its receiver.
type BoundMethod struct {
	Self Value
	Fn   Value
}

// Iterator produces values until exhausted.
type Iterator struct {
	next func() (Value, bool, error)
}

// Super is the proxy returned by super().
type Super struct {
	Class *Class
	Self  Value
}

// NewList returns a list holding items.
func NewList(items ...Value) *List { return &List{Items: items} }

// NewTuple returns a tuple holding items.
func NewTuple(items ...Value) *Tuple { return &Tuple{Items: items} }

// TypeOf returns the class of v.
func TypeOf(v Value) *Class {
	switch v := v.(type) {
	case NoneType:
		return NoneTypeClass
	case bool:
		return BoolClass
	case int64, *big.Int:
		return IntClass
	case float64:
		return FloatClass
	case string:
		return StrClass
	case *List:
		return ListClass
	case *Tuple:
		return TupleClass
	case *Dict:
		return DictClass
	case *Set:
		return SetClass
	case *Range:
		return RangeClass
	case *Function:
		return FunctionClass
	case *Builtin:
		return BuiltinFunctionClass
	case *BoundMethod:
		return MethodClass
	case *Iterator:
		return IteratorClass
	case *Super:
		return SuperClass
	case *SliceValue:
		return SliceClass
	case *Class:
		return TypeClass
	case *Instance:
		return v.Class
	}
	return ObjectClass
}

// TypeName returns the Python type name of v.
func TypeName(v Value) string { return TypeOf(v).Name }
