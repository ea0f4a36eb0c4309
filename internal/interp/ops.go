package interp

import (
	"math"
	"math/big"
	"math/bits"
	"strings"
)

// maxRepeat caps the size of sequences built by repetition.
const maxRepeat = 10_000_000

// Truthy implements bool(v).
func (in *Interp) Truthy(v Value) (bool, error) {
	switch v := v.(type) {
	case NoneType:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case *big.Int:
		return v.Sign() != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "", nil
	case *List:
		return len(v.Items) > 0, nil
	case *Tuple:
		return len(v.Items) > 0, nil
	case *Dict:
		return v.Len() > 0, nil
	case *Set:
		return v.Len() > 0, nil
	case *Range:
		return v.Len() > 0, nil
	case *Instance:
		if r, ok, err := in.dunder(v, "__bool__"); ok || err != nil {
			if err != nil {
				return false, err
			}
			b, isBool := r.(bool)
			if !isBool {
				return false, NewError(TypeErrorClass, "__bool__ should return bool, returned %s", TypeName(r))
			}
			return b, nil
		}
		if r, ok, err := in.dunder(v, "__len__"); ok || err != nil {
			if err != nil {
				return false, err
			}
			n, isInt := asInt(r)
			if !isInt {
				return false, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(r))
			}
			return n != 0, nil
		}
	}
	return true, nil
}

// asInt converts ints and bools.
func asInt(v Value) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// asFloat converts any real number.
func asFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case *big.Int:
		return bigFloat(v), true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func isNumber(v Value) bool {
	_, ok := asFloat(v)
	return ok
}

// addInt, subInt, mulInt and powInt report false when the result does not
// fit in int64.

func addInt(a, b int64) (int64, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

func subInt(a, b int64) (int64, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	hi, lo := bits.Mul64(uint64(absInt(a)), uint64(absInt(b)))
	neg := (a < 0) != (b < 0)
	if hi != 0 || (lo > math.MaxInt64 && !(neg && lo == 1<<63)) {
		return 0, false
	}
	if neg {
		return -int64(lo), true
	}
	return int64(lo), true
}

func absInt(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func powInt(base, exp int64) (int64, bool) {
	result := int64(1)
	for exp > 0 {
		ok := true
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

var dunderOps = map[string][2]string{
	"+":  {"__add__", "__radd__"},
	"-":  {"__sub__", "__rsub__"},
	"*":  {"__mul__", "__rmul__"},
	"/":  {"__truediv__", "__rtruediv__"},
	"//": {"__floordiv__", "__rfloordiv__"},
	"%":  {"__mod__", "__rmod__"},
	"**": {"__pow__", "__rpow__"},
	"&":  {"__and__", "__rand__"},
	"|":  {"__or__", "__ror__"},
	"^":  {"__xor__", "__rxor__"},
	"<<": {"__lshift__", "__rlshift__"},
	">>": {"__rshift__", "__rrshift__"},
	"@":  {"__matmul__", "__rmatmul__"},
}

// BinOp applies a binary operator.
func (in *Interp) BinOp(op string, l, r Value) (Value, error) {
	if names, ok := dunderOps[op]; ok {
		if v, found, err := in.dunder(l, names[0], r); found || err != nil {
			if err != nil || v != notImplemented {
				return v, err
			}
		}
		if v, found, err := in.dunder(r, names[1], l); found || err != nil {
			if err != nil || v != notImplemented {
				return v, err
			}
		}
	}

	if isBig(l) || isBig(r) {
		if lb, ok := asBig(l); ok {
			if rb, ok := asBig(r); ok {
				return bigOp(op, lb, rb)
			}
		}
	}
	if li, ok := asInt(l); ok {
		if ri, ok := asInt(r); ok {
			if _, lb := l.(bool); lb {
				if _, rb := r.(bool); rb {
					switch op {
					case "&":
						return l.(bool) && r.(bool), nil
					case "|":
						return l.(bool) || r.(bool), nil
					case "^":
						return l.(bool) != r.(bool), nil
					}
				}
			}
			return intOp(op, li, ri)
		}
	}
	if isNumber(l) && isNumber(r) {
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		return floatOp(op, lf, rf)
	}

	switch op {
	case "+":
		switch lv := l.(type) {
		case string:
			if rv, ok := r.(string); ok {
				return lv + rv, nil
			}
			return nil, NewError(TypeErrorClass, "can only concatenate str (not \"%s\") to str", TypeName(r))
		case *List:
			if rv, ok := r.(*List); ok {
				items := make([]Value, 0, len(lv.Items)+len(rv.Items))
				return NewList(append(append(items, lv.Items...), rv.Items...)...), nil
			}
			return nil, NewError(TypeErrorClass, "can only concatenate list (not \"%s\") to list", TypeName(r))
		case *Tuple:
			if rv, ok := r.(*Tuple); ok {
				items := make([]Value, 0, len(lv.Items)+len(rv.Items))
				return NewTuple(append(append(items, lv.Items...), rv.Items...)...), nil
			}
			return nil, NewError(TypeErrorClass, "can only concatenate tuple (not \"%s\") to tuple", TypeName(r))
		}
	case "*":
		if n, ok := asInt(r); ok {
			if v, ok, err := repeat(l, n); ok {
				return v, err
			}
		}
		if n, ok := asInt(l); ok {
			if v, ok, err := repeat(r, n); ok {
				return v, err
			}
		}
	case "%":
		if s, ok := l.(string); ok {
			return in.percentFormat(s, r)
		}
	case "|", "&", "-", "^":
		if ls, ok := l.(*Set); ok {
			if rs, ok := r.(*Set); ok {
				return setOp(op, ls, rs)
			}
		}
		if ld, ok := l.(*Dict); ok && op == "|" {
			if rd, ok := r.(*Dict); ok {
				out := NewDict()
				ld.Items(func(k, v Value) { _ = out.Set(k, v) })
				rd.Items(func(k, v Value) { _ = out.Set(k, v) })
				return out, nil
			}
		}
	}
	return nil, NewError(TypeErrorClass, "unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(l), TypeName(r))
}

// notImplemented is returned by user dunders via the NotImplemented builtin.
var notImplemented Value = &Instance{Class: builtinClass("NotImplementedType", ObjectClass), Attrs: NewNamespace()}

// intOp applies op to two int64s, switching to big ints when the result
// does not fit.
func intOp(op string, a, b int64) (Value, error) {
	switch op {
	case "+":
		if c, ok := addInt(a, b); ok {
			return c, nil
		}
	case "-":
		if c, ok := subInt(a, b); ok {
			return c, nil
		}
	case "*":
		if c, ok := mulInt(a, b); ok {
			return c, nil
		}
	case "/":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		if a != math.MinInt64 || b != -1 {
			return floorDiv(a, b), nil
		}
	case "%":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "integer modulo by zero")
		}
		if b == -1 {
			return int64(0), nil
		}
		return floorMod(a, b), nil
	case "**":
		if b < 0 {
			if a == 0 {
				return nil, NewError(ZeroDivisionErrorClass, "zero to a negative power")
			}
			return math.Pow(float64(a), float64(b)), nil
		}
		if c, ok := powInt(a, b); ok {
			return c, nil
		}
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<":
		if b < 0 {
			return nil, NewError(ValueErrorClass, "negative shift count")
		}
		if a == 0 {
			return int64(0), nil
		}
		if b < 63 && bits.Len64(uint64(absInt(a)))+int(b) <= 62 {
			return a << b, nil
		}
	case ">>":
		if b < 0 {
			return nil, NewError(ValueErrorClass, "negative shift count")
		}
		if b >= 64 {
			if a < 0 {
				return int64(-1), nil
			}
			return int64(0), nil
		}
		return a >> b, nil
	}
	return bigOp(op, big.NewInt(a), big.NewInt(b))
}

func floatOp(op string, a, b float64) (Value, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "float division by zero")
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "float floor division by zero")
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "float modulo")
		}
		m := math.Mod(a, b)
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return m, nil
	case "**":
		if a == 0 && b < 0 {
			return nil, NewError(ZeroDivisionErrorClass, "zero to a negative power")
		}
		r := math.Pow(a, b)
		if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
			return nil, NewError(ValueErrorClass, "math domain error")
		}
		return r, nil
	}
	return nil, NewError(TypeErrorClass, "unsupported operand type(s) for %s: 'float' and 'float'", op)
}

// repeat implements sequence * n. ok is false when v is not a sequence.
func repeat(v Value, n int64) (Value, bool, error) {
	if n < 0 {
		n = 0
	}
	size := func(l int) error {
		if l > 0 && n > int64(maxRepeat/l) {
			return NewError(MemoryErrorClass, "repeated sequence too large")
		}
		return nil
	}
	switch v := v.(type) {
	case string:
		if err := size(len(v)); err != nil {
			return nil, true, err
		}
		return strings.Repeat(v, int(n)), true, nil
	case *List:
		if err := size(len(v.Items)); err != nil {
			return nil, true, err
		}
		out := make([]Value, 0, len(v.Items)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, v.Items...)
		}
		return NewList(out...), true, nil
	case *Tuple:
		if err := size(len(v.Items)); err != nil {
			return nil, true, err
		}
		out := make([]Value, 0, len(v.Items)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, v.Items...)
		}
		return NewTuple(out...), true, nil
	}
	return nil, false, nil
}

func setOp(op string, l, r *Set) (Value, error) {
	out := NewSet()
	switch op {
	case "|":
		for _, k := range l.keys {
			_ = out.Add(k)
		}
		for _, k := range r.keys {
			_ = out.Add(k)
		}
	case "&":
		for _, k := range l.keys {
			if ok, _ := r.Contains(k); ok {
				_ = out.Add(k)
			}
		}
	case "-":
		for _, k := range l.keys {
			if ok, _ := r.Contains(k); !ok {
				_ = out.Add(k)
			}
		}
	case "^":
		for _, k := range l.keys {
			if ok, _ := r.Contains(k); !ok {
				_ = out.Add(k)
			}
		}
		for _, k := range r.keys {
			if ok, _ := l.Contains(k); !ok {
				_ = out.Add(k)
			}
		}
	}
	return out, nil
}

// inplace implements augmented assignment; lists, sets and dicts are
// updated in place.
func (in *Interp) inplace(op string, cur, rhs Value) (Value, error) {
	if names, ok := dunderOps[op]; ok {
		iname := "__i" + strings.TrimPrefix(names[0], "__")
		if v, found, err := in.dunder(cur, iname, rhs); found || err != nil {
			if err != nil || v != notImplemented {
				return v, err
			}
		}
	}
	switch c := cur.(type) {
	case *List:
		switch op {
		case "+":
			items, err := in.ToSlice(rhs)
			if err != nil {
				return nil, NewError(TypeErrorClass, "'%s' object is not iterable", TypeName(rhs))
			}
			c.Items = append(c.Items, items...)
			return c, nil
		case "*":
			if n, ok := asInt(rhs); ok {
				v, _, err := repeat(c, n)
				if err != nil {
					return nil, err
				}
				c.Items = v.(*List).Items
				return c, nil
			}
		}
	case *Set:
		if rs, ok := rhs.(*Set); ok && strings.Contains("|&-^", op) {
			v, err := setOp(op, c, rs)
			if err != nil {
				return nil, err
			}
			c.table = v.(*Set).table
			return c, nil
		}
	case *Dict:
		if rd, ok := rhs.(*Dict); ok && op == "|" {
			var err error
			rd.Items(func(k, v Value) {
				if err == nil {
					err = c.Set(k, v)
				}
			})
			return c, err
		}
	}
	return in.BinOp(op, cur, rhs)
}

func (in *Interp) unary(op string, x Value) (Value, error) {
	names := map[string]string{"-": "__neg__", "+": "__pos__", "~": "__invert__"}
	if v, found, err := in.dunder(x, names[op]); found || err != nil {
		return v, err
	}
	if b, ok := x.(*big.Int); ok {
		switch op {
		case "-":
			return normInt(new(big.Int).Neg(b)), nil
		case "+":
			return b, nil
		case "~":
			return normInt(new(big.Int).Not(b)), nil
		}
	}
	if i, ok := asInt(x); ok {
		switch op {
		case "-":
			if i == math.MinInt64 {
				return new(big.Int).Neg(big.NewInt(i)), nil
			}
			return -i, nil
		case "+":
			return i, nil
		case "~":
			return ^i, nil
		}
	}
	if f, ok := x.(float64); ok {
		switch op {
		case "-":
			return -f, nil
		case "+":
			return f, nil
		}
	}
	return nil, NewError(TypeErrorClass, "bad operand type for unary %s: '%s'", op, TypeName(x))
}

// Compare applies one comparison operator.
func (in *Interp) Compare(op string, l, r Value) (bool, error) {
	switch op {
	case "is":
		return identical(l, r), nil
	case "is not":
		return !identical(l, r), nil
	case "in":
		return in.Contains(r, l)
	case "not in":
		ok, err := in.Contains(r, l)
		return !ok, err
	case "==":
		return in.Equal(l, r)
	case "!=":
		if v, found, err := in.dunder(l, "__ne__", r); found || err != nil {
			if err != nil {
				return false, err
			}
			if v != notImplemented {
				return in.Truthy(v)
			}
		}
		eq, err := in.Equal(l, r)
		return !eq, err
	}
	return in.order(op, l, r)
}

func identical(l, r Value) bool {
	switch l.(type) {
	case float64:
		lf, rf := l.(float64), r
		if f, ok := rf.(float64); ok {
			return lf == f || (lf != lf && f != f)
		}
		return false
	}
	return l == r
}

// Equal implements ==.
func (in *Interp) Equal(l, r Value) (bool, error) {
	if v, found, err := in.dunder(l, "__eq__", r); found || err != nil {
		if err != nil {
			return false, err
		}
		if v != notImplemented {
			return in.Truthy(v)
		}
	}
	if v, found, err := in.dunder(r, "__eq__", l); found || err != nil {
		if err != nil {
			return false, err
		}
		if v != notImplemented {
			return in.Truthy(v)
		}
	}
	if isNumber(l) && isNumber(r) {
		if c, ok := cmpInts(l, r); ok {
			return c == 0, nil
		}
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		return lf == rf, nil
	}
	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		return ok && lv == rv, nil
	case *List:
		rv, ok := r.(*List)
		if !ok {
			return false, nil
		}
		return in.seqEqual(lv.Items, rv.Items)
	case *Tuple:
		rv, ok := r.(*Tuple)
		if !ok {
			return false, nil
		}
		return in.seqEqual(lv.Items, rv.Items)
	case *Range:
		rv, ok := r.(*Range)
		if !ok {
			return false, nil
		}
		if lv.Len() != rv.Len() {
			return false, nil
		}
		return lv.Len() == 0 || (lv.Start == rv.Start && (lv.Len() == 1 || lv.Step == rv.Step)), nil
	case *Dict:
		rv, ok := r.(*Dict)
		if !ok || lv.Len() != rv.Len() {
			return false, nil
		}
		for i, k := range lv.keys {
			other, found, err := rv.Get(k)
			if err != nil || !found {
				return false, err
			}
			eq, err := in.Equal(lv.vals[i], other)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *Set:
		rv, ok := r.(*Set)
		if !ok || lv.Len() != rv.Len() {
			return false, nil
		}
		for _, k := range lv.keys {
			if ok, err := rv.Contains(k); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return identical(l, r), nil
}

func (in *Interp) seqEqual(a, b []Value) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		if identical(a[i], b[i]) {
			continue
		}
		eq, err := in.Equal(a[i], b[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

var orderDunders = map[string][2]string{
	"<":  {"__lt__", "__gt__"},
	"<=": {"__le__", "__ge__"},
	">":  {"__gt__", "__lt__"},
	">=": {"__ge__", "__le__"},
}

func (in *Interp) order(op string, l, r Value) (bool, error) {
	names := orderDunders[op]
	if v, found, err := in.dunder(l, names[0], r); found || err != nil {
		if err != nil {
			return false, err
		}
		if v != notImplemented {
			return in.Truthy(v)
		}
	}
	if v, found, err := in.dunder(r, names[1], l); found || err != nil {
		if err != nil {
			return false, err
		}
		if v != notImplemented {
			return in.Truthy(v)
		}
	}
	c, err := in.cmp(l, r)
	if err != nil {
		if exc, ok := err.(*Exception); ok && exc.Value.Class == TypeErrorClass && len(exc.Value.Args) == 0 {
			return false, NewError(TypeErrorClass, "'%s' not supported between instances of '%s' and '%s'", op, TypeName(l), TypeName(r))
		}
		return false, err
	}
	if c == cmpUnordered {
		return false, nil
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

// cmpUnordered marks comparisons involving NaN, or sets that are neither
// subset nor superset.
const cmpUnordered = 2

// cmp three-way compares builtin values. An argument-less TypeError means
// the types are not orderable.
func (in *Interp) cmp(l, r Value) (int, error) {
	if isNumber(l) && isNumber(r) {
		if c, ok := cmpInts(l, r); ok {
			return c, nil
		}
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		if lf != lf || rf != rf {
			return cmpUnordered, nil
		}
		return cmpOrdered(lf, rf), nil
	}
	switch lv := l.(type) {
	case string:
		if rv, ok := r.(string); ok {
			return strings.Compare(lv, rv), nil
		}
	case *List:
		if rv, ok := r.(*List); ok {
			return in.cmpSeq(lv.Items, rv.Items)
		}
	case *Tuple:
		if rv, ok := r.(*Tuple); ok {
			return in.cmpSeq(lv.Items, rv.Items)
		}
	case *Set:
		if rv, ok := r.(*Set); ok {
			sub := isSubset(lv, rv)
			sup := isSubset(rv, lv)
			switch {
			case sub && sup:
				return 0, nil
			case sub:
				return -1, nil
			case sup:
				return 1, nil
			}
			return cmpUnordered, nil
		}
	}
	return 0, &Exception{Value: NewInstance(TypeErrorClass)}
}

// cmpInts compares two ints of any size. ok is false unless both are ints.
func cmpInts(l, r Value) (int, bool) {
	if isBig(l) || isBig(r) {
		lb, lok := asBig(l)
		rb, rok := asBig(r)
		if !lok || !rok {
			return 0, false
		}
		return lb.Cmp(rb), true
	}
	li, lok := asInt(l)
	ri, rok := asInt(r)
	if !lok || !rok {
		return 0, false
	}
	return cmpOrdered(li, ri), true
}

func isSubset(a, b *Set) bool {
	for _, k := range a.keys {
		if ok, _ := b.Contains(k); !ok {
			return false
		}
	}
	return true
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (in *Interp) cmpSeq(a, b []Value) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		eq, err := in.Equal(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if eq {
			continue
		}
		lt, err := in.order("<", a[i], b[i])
		if err != nil {
			return 0, err
		}
		if lt {
			return -1, nil
		}
		return 1, nil
	}
	return cmpOrdered(int64(len(a)), int64(len(b))), nil
}

// Less reports whether l < r, used by sorting.
func (in *Interp) Less(l, r Value) (bool, error) {
	return in.order("<", l, r)
}

// Contains implements item in container.
func (in *Interp) Contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, NewError(TypeErrorClass, "'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(c, s), nil
	case *Dict:
		i, err := c.find(item)
		return i >= 0, err
	case *Set:
		return c.Contains(item)
	case *Range:
		n, ok := asInt(item)
		if !ok {
			break
		}
		if c.Step > 0 {
			return n >= c.Start && n < c.Stop && (n-c.Start)%c.Step == 0, nil
		}
		return n <= c.Start && n > c.Stop && (c.Start-n)%(-c.Step) == 0, nil
	case *Instance:
		if v, found, err := in.dunder(c, "__contains__", item); found || err != nil {
			if err != nil {
				return false, err
			}
			return in.Truthy(v)
		}
	}
	items, err := in.ToSlice(container)
	if err != nil {
		return false, NewError(TypeErrorClass, "argument of type '%s' is not iterable", TypeName(container))
	}
	for _, v := range items {
		if identical(v, item) {
			return true, nil
		}
		eq, err := in.Equal(v, item)
		if err != nil {
			return false, err
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}
