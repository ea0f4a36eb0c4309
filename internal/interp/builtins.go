package interp

import (
	"hash/fnv"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// Builtins returns every builtin the interpreter implements, keyed by
// name. Callers choose which of them a program may see.
func Builtins() map[string]Value {
	out := map[string]Value{}
	for _, b := range builtinFuncs {
		out[b.Name] = b
	}
	for _, c := range []*Class{
		ObjectClass, TypeClass, IntClass, BoolClass, FloatClass, StrClass, ListClass,
		TupleClass, DictClass, SetClass, RangeClass,
	} {
		out[c.Name] = c
	}
	for _, c := range ExceptionClasses {
		out[c.Name] = c
	}
	out["NotImplemented"] = notImplemented
	return out
}

var builtinFuncs []*Builtin

func init() {
	builtinFuncs = []*Builtin{
		{"print", builtinPrint},
		{"len", builtinLen},
		{"abs", builtinAbs},
		{"min", func(in *Interp, args []Value, kw []Kwarg) (Value, error) { return in.extreme("min", args, kw, -1) }},
		{"max", func(in *Interp, args []Value, kw []Kwarg) (Value, error) { return in.extreme("max", args, kw, 1) }},
		{"sum", builtinSum},
		{"sorted", builtinSorted},
		{"reversed", builtinReversed},
		{"enumerate", builtinEnumerate},
		{"zip", builtinZip},
		{"map", builtinMap},
		{"filter", builtinFilter},
		{"isinstance", builtinIsinstance},
		{"issubclass", builtinIssubclass},
		{"repr", builtinRepr},
		{"round", builtinRound},
		{"pow", builtinPow},
		{"divmod", builtinDivmod},
		{"chr", builtinChr},
		{"ord", builtinOrd},
		{"hex", intBase("hex", 16, "0x")},
		{"oct", intBase("oct", 8, "0o")},
		{"bin", intBase("bin", 2, "0b")},
		{"any", builtinAny},
		{"all", builtinAll},
		{"id", builtinID},
		{"hash", builtinHash},
		{"iter", builtinIter},
		{"next", builtinNext},
		{"callable", builtinCallable},
		{"hasattr", builtinHasattr},
		{"getattr", builtinGetattr},
		{"setattr", builtinSetattr},
		{"delattr", builtinDelattr},
		{"format", builtinFormat},
		{"super", builtinSuper},
	}

	IntClass.ctor = newInt
	BoolClass.ctor = func(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("bool", args, kw, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return false, nil
		}
		return in.Truthy(args[0])
	}
	FloatClass.ctor = newFloat
	StrClass.ctor = func(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("str", args, kw, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return "", nil
		}
		return in.Str(args[0])
	}
	ListClass.ctor = func(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("list", args, kw, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewList(), nil
		}
		items, err := in.ToSlice(args[0])
		if err != nil {
			return nil, err
		}
		return NewList(append([]Value(nil), items...)...), nil
	}
	TupleClass.ctor = func(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("tuple", args, kw, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewTuple(), nil
		}
		if t, ok := args[0].(*Tuple); ok {
			return t, nil
		}
		items, err := in.ToSlice(args[0])
		if err != nil {
			return nil, err
		}
		return NewTuple(items...), nil
	}
	DictClass.ctor = newDict
	SetClass.ctor = func(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("set", args, kw, 0, 1); err != nil {
			return nil, err
		}
		s := NewSet()
		if len(args) == 0 {
			return s, nil
		}
		items, err := in.ToSlice(args[0])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := s.Add(item); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	RangeClass.ctor = newRange
	ObjectClass.ctor = func(_ *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("object", args, kw, 0, 0); err != nil {
			return nil, err
		}
		return NewInstance(ObjectClass), nil
	}
	TypeClass.ctor = func(_ *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
		if len(args) != 1 || len(kw) > 0 {
			return nil, NewError(TypeErrorClass, "type() takes 1 argument")
		}
		return TypeOf(args[0]), nil
	}
	ObjectClass.Attrs.Set("__init__", &Builtin{Name: "__init__", Fn: func(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
		if len(args) > 1 || len(kw) > 0 {
			return nil, NewError(TypeErrorClass, "object.__init__() takes exactly one argument (the instance to initialize)")
		}
		return None, nil
	}})
	BaseExceptionClass.Attrs.Set("__init__", &Builtin{Name: "__init__", Fn: func(_ *Interp, args []Value, _ []Kwarg) (Value, error) {
		if inst, ok := args[0].(*Instance); ok {
			inst.Args = append([]Value(nil), args[1:]...)
		}
		return None, nil
	}})

	installMethods()
}

func arity(name string, args []Value, kw []Kwarg, lo, hi int) error {
	if len(kw) > 0 {
		return NewError(TypeErrorClass, "%s() takes no keyword arguments", name)
	}
	switch {
	case len(args) < lo || len(args) > hi:
		if lo == hi {
			if lo == 1 {
				return NewError(TypeErrorClass, "%s() takes exactly one argument (%d given)", name, len(args))
			}
			return NewError(TypeErrorClass, "%s() takes exactly %d arguments (%d given)", name, lo, len(args))
		}
		if len(args) < lo {
			return NewError(TypeErrorClass, "%s expected at least %d argument%s, got %d", name, lo, plural(lo), len(args))
		}
		return NewError(TypeErrorClass, "%s expected at most %d argument%s, got %d", name, hi, plural(hi), len(args))
	}
	return nil
}

// kwargs extracts the named keyword arguments, rejecting unknown ones.
func kwargs(name string, kw []Kwarg, allowed ...string) (map[string]Value, error) {
	out := map[string]Value{}
	for _, k := range kw {
		if !slices.Contains(allowed, k.Name) {
			return nil, NewError(TypeErrorClass, "%s() got an unexpected keyword argument '%s'", name, k.Name)
		}
		out[k.Name] = k.Value
	}
	return out, nil
}

func builtinPrint(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	opts, err := kwargs("print", kw, "sep", "end", "flush", "file")
	if err != nil {
		return nil, err
	}
	if f, ok := opts["file"]; ok && f != None {
		return nil, NewError(TypeErrorClass, "print() file argument is not supported")
	}
	sep, end := " ", "\n"
	if v, ok := opts["sep"]; ok && v != None {
		s, isStr := v.(string)
		if !isStr {
			return nil, NewError(TypeErrorClass, "sep must be None or a string, not %s", TypeName(v))
		}
		sep = s
	}
	if v, ok := opts["end"]; ok && v != None {
		s, isStr := v.(string)
		if !isStr {
			return nil, NewError(TypeErrorClass, "end must be None or a string, not %s", TypeName(v))
		}
		end = s
	}
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		s, err := in.Str(a)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	sb.WriteString(end)
	if _, err := in.out.Write([]byte(sb.String())); err != nil {
		return nil, NewError(RuntimeErrorClass, "writing output: %v", err)
	}
	return None, nil
}

func builtinLen(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("len", args, kw, 1, 1); err != nil {
		return nil, err
	}
	n, err := in.Len(args[0])
	if err != nil {
		return nil, err
	}
	return n, nil
}

func builtinAbs(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("abs", args, kw, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case float64:
		return math.Abs(v), nil
	case bool, int64:
		i, _ := asInt(v)
		if i == math.MinInt64 {
			return new(big.Int).Neg(big.NewInt(i)), nil
		}
		return absInt(i), nil
	case *big.Int:
		return normInt(new(big.Int).Abs(v)), nil
	}
	if v, found, err := in.dunder(args[0], "__abs__"); found || err != nil {
		return v, err
	}
	return nil, NewError(TypeErrorClass, "bad operand type for abs(): '%s'", TypeName(args[0]))
}

func (in *Interp) extreme(name string, args []Value, kw []Kwarg, sign int) (Value, error) {
	opts, err := kwargs(name, kw, "key", "default")
	if err != nil {
		return nil, err
	}
	items := args
	if len(args) == 1 {
		if items, err = in.ToSlice(args[0]); err != nil {
			return nil, err
		}
	} else if len(args) == 0 {
		return nil, NewError(TypeErrorClass, "%s expected at least 1 argument, got 0", name)
	}
	if len(items) == 0 {
		if d, ok := opts["default"]; ok {
			return d, nil
		}
		return nil, NewError(ValueErrorClass, "%s() iterable argument is empty", name)
	}
	key := opts["key"]
	keyOf := func(v Value) (Value, error) {
		if key == nil || key == None {
			return v, nil
		}
		return in.callValue(key, []Value{v}, nil)
	}
	best := items[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		k, err := keyOf(item)
		if err != nil {
			return nil, err
		}
		var better bool
		if sign < 0 {
			better, err = in.Less(k, bestKey)
		} else {
			better, err = in.Less(bestKey, k)
		}
		if err != nil {
			return nil, err
		}
		if better {
			best, bestKey = item, k
		}
	}
	return best, nil
}

func builtinSum(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	opts, err := kwargs("sum", kw, "start")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, NewError(TypeErrorClass, "sum() takes at least 1 positional argument (%d given)", len(args))
	}
	var total Value = int64(0)
	if len(args) == 2 {
		total = args[1]
	} else if s, ok := opts["start"]; ok {
		total = s
	}
	if _, ok := total.(string); ok {
		return nil, NewError(TypeErrorClass, "sum() can't sum strings [use ''.join(seq) instead]")
	}
	items, err := in.ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if total, err = in.BinOp("+", total, item); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// sortValues sorts items in place, stably, by key.
func (in *Interp) sortValues(items []Value, key Value, reverse bool) error {
	keys := make([]Value, len(items))
	for i, item := range items {
		if key == nil || key == None {
			keys[i] = item
			continue
		}
		k, err := in.callValue(key, []Value{item}, nil)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	slices.SortStableFunc(idx, func(a, b int) int {
		if sortErr != nil {
			return 0
		}
		x, y := keys[a], keys[b]
		if reverse {
			x, y = y, x
		}
		lt, err := in.Less(x, y)
		if err != nil {
			sortErr = err
			return 0
		}
		if lt {
			return -1
		}
		gt, err := in.Less(y, x)
		if err != nil {
			sortErr = err
			return 0
		}
		if gt {
			return 1
		}
		return 0
	})
	if sortErr != nil {
		return sortErr
	}
	sorted := make([]Value, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
	return nil
}

func sortOptions(name string, in *Interp, kw []Kwarg) (Value, bool, error) {
	opts, err := kwargs(name, kw, "key", "reverse")
	if err != nil {
		return nil, false, err
	}
	reverse := false
	if r, ok := opts["reverse"]; ok {
		if reverse, err = in.Truthy(r); err != nil {
			return nil, false, err
		}
	}
	return opts["key"], reverse, nil
}

func builtinSorted(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if len(args) != 1 {
		return nil, NewError(TypeErrorClass, "sorted expected 1 argument, got %d", len(args))
	}
	key, reverse, err := sortOptions("sorted", in, kw)
	if err != nil {
		return nil, err
	}
	items, err := in.ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	items = append([]Value(nil), items...)
	if err := in.sortValues(items, key, reverse); err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func builtinReversed(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("reversed", args, kw, 1, 1); err != nil {
		return nil, err
	}
	switch args[0].(type) {
	case *List, *Tuple, string, *Range:
	default:
		if r, found, err := in.dunder(args[0], "__reversed__"); found || err != nil {
			return r, err
		}
		return nil, NewError(TypeErrorClass, "'%s' object is not reversible", TypeName(args[0]))
	}
	items, err := in.ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	for i, v := range items {
		out[len(items)-1-i] = v
	}
	return iterSlice(out), nil
}

func builtinEnumerate(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	opts, err := kwargs("enumerate", kw, "start")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, NewError(TypeErrorClass, "enumerate() takes at most 2 arguments")
	}
	start := int64(0)
	sv, ok := opts["start"]
	if len(args) == 2 {
		sv, ok = args[1], true
	}
	if ok {
		if start, ok = asInt(sv); !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(sv))
		}
	}
	it, err := in.Iter(args[0])
	if err != nil {
		return nil, err
	}
	n := start
	return &Iterator{next: func() (Value, bool, error) {
		v, ok, err := it.next()
		if err != nil || !ok {
			return nil, ok, err
		}
		t := NewTuple(n, v)
		n++
		return t, true, nil
	}}, nil
}

func builtinZip(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if _, err := kwargs("zip", kw); err != nil {
		return nil, err
	}
	its := make([]*Iterator, len(args))
	for i, a := range args {
		it, err := in.Iter(a)
		if err != nil {
			return nil, NewError(TypeErrorClass, "zip argument #%d must support iteration", i+1)
		}
		its[i] = it
	}
	return &Iterator{next: func() (Value, bool, error) {
		if len(its) == 0 {
			return nil, false, nil
		}
		row := make([]Value, len(its))
		for i, it := range its {
			v, ok, err := it.next()
			if err != nil || !ok {
				return nil, false, err
			}
			row[i] = v
		}
		return NewTuple(row...), true, nil
	}}, nil
}

func builtinMap(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if _, err := kwargs("map", kw); err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, NewError(TypeErrorClass, "map() must have at least two arguments.")
	}
	fn := args[0]
	zipped, err := builtinZip(in, args[1:], nil)
	if err != nil {
		return nil, err
	}
	src := zipped.(*Iterator)
	return &Iterator{next: func() (Value, bool, error) {
		row, ok, err := src.next()
		if err != nil || !ok {
			return nil, ok, err
		}
		v, err := in.callValue(fn, row.(*Tuple).Items, nil)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}}, nil
}

func builtinFilter(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("filter", args, kw, 2, 2); err != nil {
		return nil, err
	}
	fn := args[0]
	it, err := in.Iter(args[1])
	if err != nil {
		return nil, err
	}
	return &Iterator{next: func() (Value, bool, error) {
		for {
			v, ok, err := it.next()
			if err != nil || !ok {
				return nil, ok, err
			}
			test := v
			if fn != None {
				if test, err = in.callValue(fn, []Value{v}, nil); err != nil {
					return nil, false, err
				}
			}
			keep, err := in.Truthy(test)
			if err != nil {
				return nil, false, err
			}
			if keep {
				return v, true, nil
			}
		}
	}}, nil
}

func classInfo(name string, v Value) ([]*Class, error) {
	switch v := v.(type) {
	case *Class:
		return []*Class{v}, nil
	case *Tuple:
		var out []*Class
		for _, item := range v.Items {
			cs, err := classInfo(name, item)
			if err != nil {
				return nil, err
			}
			out = append(out, cs...)
		}
		return out, nil
	}
	return nil, NewError(TypeErrorClass, "%s() arg 2 must be a type, a tuple of types, or a union", name)
}

func builtinIsinstance(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("isinstance", args, kw, 2, 2); err != nil {
		return nil, err
	}
	classes, err := classInfo("isinstance", args[1])
	if err != nil {
		return nil, err
	}
	t := TypeOf(args[0])
	for _, c := range classes {
		if t.IsSubclass(c) {
			return true, nil
		}
	}
	return false, nil
}

func builtinIssubclass(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("issubclass", args, kw, 2, 2); err != nil {
		return nil, err
	}
	sub, ok := args[0].(*Class)
	if !ok {
		return nil, NewError(TypeErrorClass, "issubclass() arg 1 must be a class")
	}
	classes, err := classInfo("issubclass", args[1])
	if err != nil {
		return nil, err
	}
	for _, c := range classes {
		if sub.IsSubclass(c) {
			return true, nil
		}
	}
	return false, nil
}

func builtinRepr(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("repr", args, kw, 1, 1); err != nil {
		return nil, err
	}
	return in.Repr(args[0])
}

func builtinRound(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	opts, err := kwargs("round", kw, "ndigits")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, NewError(TypeErrorClass, "round() takes at most 2 arguments (%d given)", len(args))
	}
	nd, hasDigits := opts["ndigits"]
	if len(args) == 2 {
		nd, hasDigits = args[1], true
	}
	if hasDigits && nd == None {
		hasDigits = false
	}
	switch x := args[0].(type) {
	case bool, int64:
		i, _ := asInt(x)
		if !hasDigits {
			return i, nil
		}
		n, ok := asInt(nd)
		if !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(nd))
		}
		if n >= 0 {
			return i, nil
		}
		return bigRound(big.NewInt(i), n), nil
	case *big.Int:
		if !hasDigits {
			return x, nil
		}
		n, ok := asInt(nd)
		if !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(nd))
		}
		return bigRound(x, n), nil
	case float64:
		if !hasDigits {
			return floatToInt(math.RoundToEven(x))
		}
		n, ok := asInt(nd)
		if !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(nd))
		}
		if n > 300 || math.IsInf(x, 0) || math.IsNaN(x) {
			return x, nil
		}
		if n < 0 {
			p := math.Pow(10, float64(-n))
			return math.RoundToEven(x/p) * p, nil
		}
		f, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', int(n), 64), 64)
		return f, nil
	}
	if v, found, err := in.dunder(args[0], "__round__"); found || err != nil {
		return v, err
	}
	return nil, NewError(TypeErrorClass, "type %s doesn't define __round__ method", TypeName(args[0]))
}

func builtinPow(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("pow", args, kw, 2, 3); err != nil {
		return nil, err
	}
	if len(args) == 2 {
		return in.BinOp("**", args[0], args[1])
	}
	b, ok1 := asBig(args[0])
	e, ok2 := asBig(args[1])
	m, ok3 := asBig(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewError(TypeErrorClass, "pow() 3rd argument not allowed unless all arguments are integers")
	}
	return bigPowMod(b, e, m)
}

func builtinDivmod(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("divmod", args, kw, 2, 2); err != nil {
		return nil, err
	}
	q, err := in.BinOp("//", args[0], args[1])
	if err != nil {
		return nil, err
	}
	r, err := in.BinOp("%", args[0], args[1])
	if err != nil {
		return nil, err
	}
	return NewTuple(q, r), nil
}

func builtinChr(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("chr", args, kw, 1, 1); err != nil {
		return nil, err
	}
	n, ok := asInt(args[0])
	if !ok {
		return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(args[0]))
	}
	if n < 0 || n > 0x10ffff {
		return nil, NewError(ValueErrorClass, "chr() arg not in range(0x110000)")
	}
	return string(rune(n)), nil
}

func builtinOrd(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("ord", args, kw, 1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, NewError(TypeErrorClass, "ord() expected string of length 1, but %s found", TypeName(args[0]))
	}
	rs := []rune(s)
	if len(rs) != 1 {
		return nil, NewError(TypeErrorClass, "ord() expected a character, but string of length %d found", len(rs))
	}
	return int64(rs[0]), nil
}

func intBase(name string, base int, prefix string) BuiltinFunc {
	return func(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 1, 1); err != nil {
			return nil, err
		}
		n, ok := asBig(args[0])
		if !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(args[0]))
		}
		digits := new(big.Int).Abs(n).Text(base)
		if n.Sign() < 0 {
			return "-" + prefix + digits, nil
		}
		return prefix + digits, nil
	}
}

func builtinAny(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	return in.anyAll("any", args, kw, true)
}

func builtinAll(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	return in.anyAll("all", args, kw, false)
}

func (in *Interp) anyAll(name string, args []Value, kw []Kwarg, want bool) (Value, error) {
	if err := arity(name, args, kw, 1, 1); err != nil {
		return nil, err
	}
	it, err := in.Iter(args[0])
	if err != nil {
		return nil, err
	}
	for {
		v, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return !want, nil
		}
		t, err := in.Truthy(v)
		if err != nil {
			return nil, err
		}
		if t == want {
			return want, nil
		}
	}
}

func builtinID(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("id", args, kw, 1, 1); err != nil {
		return nil, err
	}
	return int64(in.ID(args[0])), nil
}

func builtinHash(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("hash", args, kw, 1, 1); err != nil {
		return nil, err
	}
	k, err := hashKey(args[0])
	if err != nil {
		return nil, err
	}
	switch k.kind {
	case 'i':
		return k.i, nil
	case 'n':
		return int64(0), nil
	case 'p':
		return int64(in.ID(args[0])), nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte{k.kind})
	_, _ = h.Write([]byte(k.s))
	_, _ = h.Write([]byte(strconv.FormatFloat(k.f, 'g', -1, 64)))
	return int64(h.Sum64() >> 1), nil
}

func builtinIter(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("iter", args, kw, 1, 1); err != nil {
		return nil, err
	}
	return in.Iter(args[0])
}

func builtinNext(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("next", args, kw, 1, 2); err != nil {
		return nil, err
	}
	var it *Iterator
	switch v := args[0].(type) {
	case *Iterator:
		it = v
	case *Instance:
		if _, _, ok := v.Class.Lookup("__next__"); ok {
			it = in.protocolIter(v)
		}
	}
	if it == nil {
		return nil, NewError(TypeErrorClass, "'%s' object is not an iterator", TypeName(args[0]))
	}
	v, ok, err := it.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, &Exception{Value: NewInstance(StopIterationClass)}
	}
	return v, nil
}

func builtinCallable(_ *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("callable", args, kw, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *Function, *Builtin, *BoundMethod, *Class:
		return true, nil
	case *Instance:
		_, _, ok := v.Class.Lookup("__call__")
		return ok, nil
	}
	return false, nil
}

func attrName(fn string, v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", NewError(TypeErrorClass, "%s(): attribute name must be string, not '%s'", fn, TypeName(v))
	}
	return s, nil
}

func builtinHasattr(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("hasattr", args, kw, 2, 2); err != nil {
		return nil, err
	}
	name, err := attrName("hasattr", args[1])
	if err != nil {
		return nil, err
	}
	if _, err := in.GetAttr(args[0], name); err != nil {
		if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(AttributeErrorClass) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

func builtinGetattr(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("getattr", args, kw, 2, 3); err != nil {
		return nil, err
	}
	name, err := attrName("getattr", args[1])
	if err != nil {
		return nil, err
	}
	v, err := in.GetAttr(args[0], name)
	if err != nil && len(args) == 3 {
		if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(AttributeErrorClass) {
			return args[2], nil
		}
	}
	return v, err
}

func builtinSetattr(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("setattr", args, kw, 3, 3); err != nil {
		return nil, err
	}
	name, err := attrName("setattr", args[1])
	if err != nil {
		return nil, err
	}
	return None, in.SetAttr(args[0], name, args[2])
}

func builtinDelattr(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("delattr", args, kw, 2, 2); err != nil {
		return nil, err
	}
	name, err := attrName("delattr", args[1])
	if err != nil {
		return nil, err
	}
	return None, in.DelAttr(args[0], name)
}

func builtinFormat(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("format", args, kw, 1, 2); err != nil {
		return nil, err
	}
	spec := ""
	if len(args) == 2 {
		s, ok := args[1].(string)
		if !ok {
			return nil, NewError(TypeErrorClass, "format() argument 2 must be str, not %s", TypeName(args[1]))
		}
		spec = s
	}
	return in.Format(args[0], spec)
}

func builtinSuper(in *Interp, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("super", args, kw, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 2 {
		cls, ok := args[0].(*Class)
		if !ok {
			return nil, NewError(TypeErrorClass, "super() argument 1 must be a type, not %s", TypeName(args[0]))
		}
		return &Super{Class: cls, Self: args[1]}, nil
	}
	f := in.top()
	if f == nil || f.fn == nil || f.fn.Owner == nil || len(f.fn.Params) == 0 {
		return nil, NewError(RuntimeErrorClass, "super(): no arguments")
	}
	self, ok := f.Locals.Get(f.fn.Params[0].Name)
	if !ok {
		return nil, NewError(RuntimeErrorClass, "super(): arg[0] deleted")
	}
	return &Super{Class: f.fn.Owner, Self: self}, nil
}

func newInt(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
	opts, err := kwargs("int", kw, "base")
	if err != nil {
		return nil, err
	}
	if len(args) > 2 {
		return nil, NewError(TypeErrorClass, "int() takes at most 2 arguments (%d given)", len(args))
	}
	if len(args) == 0 {
		return int64(0), nil
	}
	baseVal, hasBase := opts["base"]
	if len(args) == 2 {
		baseVal, hasBase = args[1], true
	}
	switch x := args[0].(type) {
	case string:
		base := int64(10)
		if hasBase {
			b, ok := asInt(baseVal)
			if !ok || b == 1 || b < 0 || b > 36 {
				return nil, NewError(ValueErrorClass, "int() base must be >= 2 and <= 36, or 0")
			}
			base = b
		}
		text := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		n, err := strconv.ParseInt(text, int(base), 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				if b, ok := new(big.Int).SetString(text, int(base)); ok {
					return normInt(b), nil
				}
			}
			return nil, NewError(ValueErrorClass, "invalid literal for int() with base %d: %s", base, QuoteString(x))
		}
		return n, nil
	case *big.Int:
		if hasBase {
			return nil, NewError(TypeErrorClass, "int() can't convert non-string with explicit base")
		}
		return x, nil
	case bool, int64:
		if hasBase {
			return nil, NewError(TypeErrorClass, "int() can't convert non-string with explicit base")
		}
		i, _ := asInt(x)
		return i, nil
	case float64:
		return floatToInt(x)
	}
	if v, found, err := in.dunder(args[0], "__int__"); found || err != nil {
		return v, err
	}
	return nil, NewError(TypeErrorClass, "int() argument must be a string, a bytes-like object or a real number, not '%s'", TypeName(args[0]))
}

func newFloat(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("float", args, kw, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return 0.0, nil
	}
	switch x := args[0].(type) {
	case float64:
		return x, nil
	case bool, int64:
		f, _ := asFloat(x)
		return f, nil
	case string:
		text := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(x), "_", ""))
		switch strings.TrimLeft(text, "+-") {
		case "inf", "infinity":
			if strings.HasPrefix(text, "-") {
				return math.Inf(-1), nil
			}
			return math.Inf(1), nil
		case "nan":
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, NewError(ValueErrorClass, "could not convert string to float: %s", QuoteString(x))
		}
		return f, nil
	}
	if v, found, err := in.dunder(args[0], "__float__"); found || err != nil {
		return v, err
	}
	return nil, NewError(TypeErrorClass, "float() argument must be a string or a real number, not '%s'", TypeName(args[0]))
}

func newDict(in *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
	if len(args) > 1 {
		return nil, NewError(TypeErrorClass, "dict expected at most 1 argument, got %d", len(args))
	}
	d := NewDict()
	if len(args) == 1 {
		if err := in.dictUpdate(d, args[0]); err != nil {
			return nil, err
		}
	}
	for _, k := range kw {
		if err := d.Set(k.Name, k.Value); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (in *Interp) dictUpdate(d *Dict, src Value) error {
	if sd, ok := src.(*Dict); ok {
		var err error
		sd.Items(func(k, v Value) {
			if err == nil {
				err = d.Set(k, v)
			}
		})
		return err
	}
	items, err := in.ToSlice(src)
	if err != nil {
		return err
	}
	for i, item := range items {
		pair, err := in.ToSlice(item)
		if err != nil {
			return NewError(TypeErrorClass, "cannot convert dictionary update sequence element #%d to a sequence", i)
		}
		if len(pair) != 2 {
			return NewError(ValueErrorClass, "dictionary update sequence element #%d has length %d; 2 is required", i, len(pair))
		}
		if err := d.Set(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func newRange(_ *Interp, _ *Class, args []Value, kw []Kwarg) (Value, error) {
	if err := arity("range", args, kw, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := asInt(a)
		if !ok {
			return nil, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(a))
		}
		nums[i] = n
	}
	r := &Range{Step: 1}
	switch len(nums) {
	case 1:
		r.Stop = nums[0]
	case 2:
		r.Start, r.Stop = nums[0], nums[1]
	case 3:
		r.Start, r.Stop, r.Step = nums[0], nums[1], nums[2]
		if r.Step == 0 {
			return nil, NewError(ValueErrorClass, "range() arg 3 must not be zero")
		}
	}
	return r, nil
}
