package interp

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// method registers fn on cls. The receiver arrives as args[0] and is
// checked against cls before fn runs.
func method(cls *Class, name string, fn func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error)) {
	cls.Attrs.Set(name, &Builtin{Name: name, Fn: func(in *Interp, args []Value, kw []Kwarg) (Value, error) {
		if len(args) == 0 {
			return nil, NewError(TypeErrorClass, "unbound method %s.%s() needs an argument", cls.Name, name)
		}
		if !TypeOf(args[0]).IsSubclass(cls) {
			return nil, NewError(TypeErrorClass, "descriptor '%s' for '%s' objects doesn't apply to a '%s' object",
				name, cls.Name, TypeName(args[0]))
		}
		return fn(in, args[0], args[1:], kw)
	}})
}

func installMethods() {
	installListMethods()
	installTupleMethods()
	installStrMethods()
	installDictMethods()
	installSetMethods()
	method(FloatClass, "is_integer", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("is_integer", args, kw, 0, 0); err != nil {
			return nil, err
		}
		f := self.(float64)
		return f == math.Trunc(f) && !math.IsInf(f, 0), nil
	})
	method(IntClass, "bit_length", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("bit_length", args, kw, 0, 0); err != nil {
			return nil, err
		}
		n, _ := asBig(self)
		return int64(n.BitLen()), nil
	})
}

func indexArg(v Value) (int64, error) {
	n, ok := asInt(v)
	if !ok {
		return 0, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(v))
	}
	return n, nil
}

// findIn returns the index of the first item equal to x in items[lo:hi].
func (in *Interp) findIn(items []Value, x Value, args []Value) (int, error) {
	lo, hi := 0, len(items)
	if len(args) > 0 {
		n, err := indexArg(args[0])
		if err != nil {
			return -1, err
		}
		lo = clampIndex(n, len(items))
	}
	if len(args) > 1 {
		n, err := indexArg(args[1])
		if err != nil {
			return -1, err
		}
		hi = clampIndex(n, len(items))
	}
	for i := lo; i < hi; i++ {
		eq, err := in.Equal(items[i], x)
		if err != nil {
			return -1, err
		}
		if eq {
			return i, nil
		}
	}
	return -1, nil
}

func clampIndex(n int64, length int) int {
	if n < 0 {
		n += int64(length)
		if n < 0 {
			n = 0
		}
	}
	if n > int64(length) {
		n = int64(length)
	}
	return int(n)
}

func (in *Interp) countIn(items []Value, x Value) (int64, error) {
	var n int64
	for _, item := range items {
		eq, err := in.Equal(item, x)
		if err != nil {
			return 0, err
		}
		if eq {
			n++
		}
	}
	return n, nil
}

func installListMethods() {
	method(ListClass, "append", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("list.append", args, kw, 1, 1); err != nil {
			return nil, err
		}
		l := self.(*List)
		l.Items = append(l.Items, args[0])
		return None, nil
	})
	method(ListClass, "extend", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("list.extend", args, kw, 1, 1); err != nil {
			return nil, err
		}
		items, err := in.ToSlice(args[0])
		if err != nil {
			return nil, err
		}
		l := self.(*List)
		l.Items = append(l.Items, items...)
		return None, nil
	})
	method(ListClass, "insert", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("insert", args, kw, 2, 2); err != nil {
			return nil, err
		}
		n, err := indexArg(args[0])
		if err != nil {
			return nil, err
		}
		l := self.(*List)
		i := clampIndex(n, len(l.Items))
		l.Items = append(l.Items, nil)
		copy(l.Items[i+1:], l.Items[i:])
		l.Items[i] = args[1]
		return None, nil
	})
	method(ListClass, "pop", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("pop", args, kw, 0, 1); err != nil {
			return nil, err
		}
		l := self.(*List)
		if len(l.Items) == 0 {
			return nil, NewError(IndexErrorClass, "pop from empty list")
		}
		i := len(l.Items) - 1
		if len(args) == 1 {
			n, err := indexArg(args[0])
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n += int64(len(l.Items))
			}
			if n < 0 || n >= int64(len(l.Items)) {
				return nil, NewError(IndexErrorClass, "pop index out of range")
			}
			i = int(n)
		}
		v := l.Items[i]
		l.Items = append(l.Items[:i], l.Items[i+1:]...)
		return v, nil
	})
	method(ListClass, "remove", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("list.remove", args, kw, 1, 1); err != nil {
			return nil, err
		}
		l := self.(*List)
		i, err := in.findIn(l.Items, args[0], nil)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, NewError(ValueErrorClass, "list.remove(x): x not in list")
		}
		l.Items = append(l.Items[:i], l.Items[i+1:]...)
		return None, nil
	})
	method(ListClass, "index", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("index", args, kw, 1, 3); err != nil {
			return nil, err
		}
		i, err := in.findIn(self.(*List).Items, args[0], args[1:])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			r, _ := in.Repr(args[0])
			return nil, NewError(ValueErrorClass, "%s is not in list", r)
		}
		return int64(i), nil
	})
	method(ListClass, "count", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("count", args, kw, 1, 1); err != nil {
			return nil, err
		}
		n, err := in.countIn(self.(*List).Items, args[0])
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	method(ListClass, "sort", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if len(args) > 0 {
			return nil, NewError(TypeErrorClass, "sort() takes no positional arguments")
		}
		key, reverse, err := sortOptions("sort", in, kw)
		if err != nil {
			return nil, err
		}
		return None, in.sortValues(self.(*List).Items, key, reverse)
	})
	method(ListClass, "reverse", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("reverse", args, kw, 0, 0); err != nil {
			return nil, err
		}
		items := self.(*List).Items
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return None, nil
	})
	method(ListClass, "clear", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("clear", args, kw, 0, 0); err != nil {
			return nil, err
		}
		self.(*List).Items = nil
		return None, nil
	})
	method(ListClass, "copy", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("copy", args, kw, 0, 0); err != nil {
			return nil, err
		}
		return NewList(append([]Value(nil), self.(*List).Items...)...), nil
	})
}

func installTupleMethods() {
	method(TupleClass, "index", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("index", args, kw, 1, 3); err != nil {
			return nil, err
		}
		i, err := in.findIn(self.(*Tuple).Items, args[0], args[1:])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, NewError(ValueErrorClass, "tuple.index(x): x not in tuple")
		}
		return int64(i), nil
	})
	method(TupleClass, "count", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("count", args, kw, 1, 1); err != nil {
			return nil, err
		}
		n, err := in.countIn(self.(*Tuple).Items, args[0])
		if err != nil {
			return nil, err
		}
		return n, nil
	})
}

func strArg(name string, v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", NewError(TypeErrorClass, "%s arg must be None or str", name)
	}
	return s, nil
}

func stringMethod(name string, fn func(string) string) {
	method(StrClass, name, func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 0, 0); err != nil {
			return nil, err
		}
		return fn(self.(string)), nil
	})
}

func stringPredicate(name string, pred func(rune) bool, cased bool) {
	method(StrClass, name, func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 0, 0); err != nil {
			return nil, err
		}
		s := self.(string)
		if s == "" {
			return false, nil
		}
		seen := false
		for _, r := range s {
			if cased {
				if unicode.IsLetter(r) {
					if !pred(r) {
						return false, nil
					}
					seen = true
				}
				continue
			}
			if !pred(r) {
				return false, nil
			}
			seen = true
		}
		return seen, nil
	})
}

func stripMethod(name string, strip func(string, string) string, defaultStrip func(string) string) {
	method(StrClass, name, func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 || args[0] == None {
			return defaultStrip(self.(string)), nil
		}
		chars, err := strArg(name, args[0])
		if err != nil {
			return nil, err
		}
		return strip(self.(string), chars), nil
	})
}

func justifyMethod(name string, place func(s, fill string, width int) string) {
	method(StrClass, name, func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 1, 2); err != nil {
			return nil, err
		}
		w, err := indexArg(args[0])
		if err != nil {
			return nil, err
		}
		fill := " "
		if len(args) == 2 {
			f, ok := args[1].(string)
			if !ok || utf8.RuneCountInString(f) != 1 {
				return nil, NewError(TypeErrorClass, "The fill character must be exactly one character long")
			}
			fill = f
		}
		s := self.(string)
		n := int(w) - utf8.RuneCountInString(s)
		if n <= 0 {
			return s, nil
		}
		return place(s, fill, n), nil
	})
}

func installStrMethods() {
	stringMethod("upper", strings.ToUpper)
	stringMethod("lower", strings.ToLower)
	stringMethod("swapcase", func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsUpper(r) {
				return unicode.ToLower(r)
			}
			return unicode.ToUpper(r)
		}, s)
	})
	stringMethod("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		r, size := utf8.DecodeRuneInString(s)
		return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
	})
	stringMethod("title", func(s string) string {
		var sb strings.Builder
		prev := false
		for _, r := range s {
			if unicode.IsLetter(r) {
				if prev {
					sb.WriteRune(unicode.ToLower(r))
				} else {
					sb.WriteRune(unicode.ToUpper(r))
				}
				prev = true
				continue
			}
			prev = false
			sb.WriteRune(r)
		}
		return sb.String()
	})
	stripMethod("strip", strings.Trim, strings.TrimSpace)
	stripMethod("lstrip", strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) })
	stripMethod("rstrip", strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) })

	stringPredicate("isdigit", unicode.IsDigit, false)
	stringPredicate("isnumeric", unicode.IsNumber, false)
	stringPredicate("isalpha", unicode.IsLetter, false)
	stringPredicate("isalnum", func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }, false)
	stringPredicate("isspace", unicode.IsSpace, false)
	stringPredicate("isupper", unicode.IsUpper, true)
	stringPredicate("islower", unicode.IsLower, true)

	justifyMethod("ljust", func(s, fill string, n int) string { return s + strings.Repeat(fill, n) })
	justifyMethod("rjust", func(s, fill string, n int) string { return strings.Repeat(fill, n) + s })
	justifyMethod("center", func(s, fill string, n int) string {
		left := n / 2
		if n%2 == 1 && utf8.RuneCountInString(s)%2 == 1 {
			left++
		}
		return strings.Repeat(fill, left) + s + strings.Repeat(fill, n-left)
	})
	method(StrClass, "zfill", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("zfill", args, kw, 1, 1); err != nil {
			return nil, err
		}
		w, err := indexArg(args[0])
		if err != nil {
			return nil, err
		}
		s := self.(string)
		n := int(w) - utf8.RuneCountInString(s)
		if n <= 0 {
			return s, nil
		}
		sign := ""
		if s != "" && (s[0] == '-' || s[0] == '+') {
			sign, s = s[:1], s[1:]
		}
		return sign + strings.Repeat("0", n) + s, nil
	})

	method(StrClass, "split", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return splitString("split", self.(string), args, kw, false)
	})
	method(StrClass, "rsplit", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return splitString("rsplit", self.(string), args, kw, true)
	})
	method(StrClass, "splitlines", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("splitlines", args, kw, 0, 0); err != nil {
			return nil, err
		}
		s := strings.ReplaceAll(self.(string), "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
		if s == "" {
			return NewList(), nil
		}
		parts := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
		return stringList(parts), nil
	})
	method(StrClass, "join", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("str.join", args, kw, 1, 1); err != nil {
			return nil, err
		}
		items, err := in.ToSlice(args[0])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, NewError(TypeErrorClass, "sequence item %d: expected str instance, %s found", i, TypeName(item))
			}
			parts[i] = s
		}
		return strings.Join(parts, self.(string)), nil
	})
	method(StrClass, "replace", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("replace", args, kw, 2, 3); err != nil {
			return nil, err
		}
		old, ok1 := args[0].(string)
		repl, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, NewError(TypeErrorClass, "replace() argument must be str")
		}
		n := int64(-1)
		if len(args) == 3 {
			var err error
			if n, err = indexArg(args[2]); err != nil {
				return nil, err
			}
		}
		return strings.Replace(self.(string), old, repl, int(n)), nil
	})
	method(StrClass, "startswith", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return affixTest("startswith", self.(string), args, kw, strings.HasPrefix)
	})
	method(StrClass, "endswith", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return affixTest("endswith", self.(string), args, kw, strings.HasSuffix)
	})
	method(StrClass, "find", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return findString("find", self.(string), args, kw, false)
	})
	method(StrClass, "rfind", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return findString("rfind", self.(string), args, kw, true)
	})
	method(StrClass, "index", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		v, err := findString("index", self.(string), args, kw, false)
		if err == nil && v.(int64) < 0 {
			return nil, NewError(ValueErrorClass, "substring not found")
		}
		return v, err
	})
	method(StrClass, "count", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("count", args, kw, 1, 1); err != nil {
			return nil, err
		}
		sub, ok := args[0].(string)
		if !ok {
			return nil, NewError(TypeErrorClass, "must be str, not %s", TypeName(args[0]))
		}
		s := self.(string)
		if sub == "" {
			return int64(utf8.RuneCountInString(s) + 1), nil
		}
		return int64(strings.Count(s, sub)), nil
	})
	method(StrClass, "format", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		return in.strFormat(self.(string), args, kw)
	})
}

func stringList(parts []string) *List {
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = p
	}
	return NewList(items...)
}

func splitString(name, s string, args []Value, kw []Kwarg, fromRight bool) (Value, error) {
	opts, err := kwargs(name, kw, "sep", "maxsplit")
	if err != nil {
		return nil, err
	}
	if len(args) > 2 {
		return nil, NewError(TypeErrorClass, "%s() takes at most 2 arguments (%d given)", name, len(args))
	}
	sepVal, hasSep := opts["sep"]
	if len(args) > 0 {
		sepVal, hasSep = args[0], true
	}
	maxVal, hasMax := opts["maxsplit"]
	if len(args) > 1 {
		maxVal, hasMax = args[1], true
	}
	limit := -1
	if hasMax {
		n, err := indexArg(maxVal)
		if err != nil {
			return nil, err
		}
		limit = int(n)
	}
	if !hasSep || sepVal == None {
		fields := strings.Fields(s)
		if limit >= 0 && len(fields) > limit+1 {
			if fromRight {
				cut := len(fields) - limit
				head := strings.TrimRightFunc(s, unicode.IsSpace)
				for k := 0; k < limit; k++ {
					i := strings.LastIndexFunc(head, unicode.IsSpace)
					head = strings.TrimRightFunc(head[:i], unicode.IsSpace)
				}
				fields = append([]string{head}, fields[cut:]...)
			} else {
				rest := strings.TrimLeftFunc(s, unicode.IsSpace)
				var out []string
				for k := 0; k < limit; k++ {
					i := strings.IndexFunc(rest, unicode.IsSpace)
					out = append(out, rest[:i])
					rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
				}
				fields = append(out, rest)
			}
		}
		return stringList(fields), nil
	}
	sep, ok := sepVal.(string)
	if !ok {
		return nil, NewError(TypeErrorClass, "must be str or None, not %s", TypeName(sepVal))
	}
	if sep == "" {
		return nil, NewError(ValueErrorClass, "empty separator")
	}
	if limit < 0 {
		return stringList(strings.Split(s, sep)), nil
	}
	if !fromRight {
		return stringList(strings.SplitN(s, sep, limit+1)), nil
	}
	var parts []string
	for k := 0; k < limit; k++ {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}
		parts = append([]string{s[i+len(sep):]}, parts...)
		s = s[:i]
	}
	return stringList(append([]string{s}, parts...)), nil
}

func affixTest(name, s string, args []Value, kw []Kwarg, test func(string, string) bool) (Value, error) {
	if err := arity(name, args, kw, 1, 1); err != nil {
		return nil, err
	}
	switch a := args[0].(type) {
	case string:
		return test(s, a), nil
	case *Tuple:
		for _, item := range a.Items {
			p, ok := item.(string)
			if !ok {
				return nil, NewError(TypeErrorClass, "tuple for %s must only contain str, not %s", name, TypeName(item))
			}
			if test(s, p) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, NewError(TypeErrorClass, "%s first arg must be str or a tuple of str, not %s", name, TypeName(args[0]))
}

// findString returns rune indices, matching str.find on non-ASCII text.
func findString(name, s string, args []Value, kw []Kwarg, fromRight bool) (Value, error) {
	if err := arity(name, args, kw, 1, 1); err != nil {
		return nil, err
	}
	sub, ok := args[0].(string)
	if !ok {
		return nil, NewError(TypeErrorClass, "must be str, not %s", TypeName(args[0]))
	}
	var i int
	if fromRight {
		i = strings.LastIndex(s, sub)
	} else {
		i = strings.Index(s, sub)
	}
	if i < 0 {
		return int64(-1), nil
	}
	return int64(utf8.RuneCountInString(s[:i])), nil
}

// strFormat implements str.format for positional, keyword and
// auto-numbered fields with optional conversion and format spec.
func (in *Interp) strFormat(format string, args []Value, kw []Kwarg) (Value, error) {
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '}' {
			if i+1 < len(format) && format[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return nil, NewError(ValueErrorClass, "Single '}' encountered in format string")
		}
		if c != '{' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '{' {
			sb.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(format[i:], '}')
		if end < 0 {
			return nil, NewError(ValueErrorClass, "Single '{' encountered in format string")
		}
		field := format[i+1 : i+end]
		i += end

		spec := ""
		if j := strings.IndexByte(field, ':'); j >= 0 {
			field, spec = field[:j], field[j+1:]
		}
		conv := byte(0)
		if j := strings.IndexByte(field, '!'); j >= 0 {
			if j+2 != len(field) {
				return nil, NewError(ValueErrorClass, "expected ':' after conversion specifier")
			}
			field, conv = field[:j], field[j+1]
		}

		var v Value
		switch {
		case field == "":
			if auto >= len(args) {
				return nil, NewError(IndexErrorClass, "Replacement index %d out of range for positional args tuple", auto)
			}
			v = args[auto]
			auto++
		case field[0] >= '0' && field[0] <= '9':
			n := 0
			for _, d := range field {
				if d < '0' || d > '9' {
					return nil, NewError(ValueErrorClass, "invalid format field %s", QuoteString(field))
				}
				n = n*10 + int(d-'0')
			}
			if n >= len(args) {
				return nil, NewError(IndexErrorClass, "Replacement index %d out of range for positional args tuple", n)
			}
			v = args[n]
		default:
			found := false
			for _, k := range kw {
				if k.Name == field {
					v, found = k.Value, true
					break
				}
			}
			if !found {
				return nil, &Exception{Value: &Instance{Class: KeyErrorClass, Attrs: NewNamespace(), Args: []Value{field}}}
			}
		}

		var err error
		switch conv {
		case 0:
		case 'r':
			v, err = in.Repr(v)
		case 's':
			v, err = in.Str(v)
		default:
			return nil, NewError(ValueErrorClass, "Unknown conversion specifier %c", conv)
		}
		if err != nil {
			return nil, err
		}
		s, err := in.Format(v, spec)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func installDictMethods() {
	method(DictClass, "keys", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("keys", args, kw, 0, 0); err != nil {
			return nil, err
		}
		return NewList(self.(*Dict).Keys()...), nil
	})
	method(DictClass, "values", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("values", args, kw, 0, 0); err != nil {
			return nil, err
		}
		d := self.(*Dict)
		return NewList(append([]Value(nil), d.vals...)...), nil
	})
	method(DictClass, "items", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("items", args, kw, 0, 0); err != nil {
			return nil, err
		}
		var out []Value
		self.(*Dict).Items(func(k, v Value) { out = append(out, NewTuple(k, v)) })
		return NewList(out...), nil
	})
	method(DictClass, "get", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("get", args, kw, 1, 2); err != nil {
			return nil, err
		}
		v, ok, err := self.(*Dict).Get(args[0])
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return None, nil
	})
	method(DictClass, "pop", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("pop", args, kw, 1, 2); err != nil {
			return nil, err
		}
		v, ok, err := self.(*Dict).remove(args[0])
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, &Exception{Value: &Instance{Class: KeyErrorClass, Attrs: NewNamespace(), Args: []Value{args[0]}}}
	})
	method(DictClass, "popitem", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("popitem", args, kw, 0, 0); err != nil {
			return nil, err
		}
		d := self.(*Dict)
		if d.Len() == 0 {
			return nil, NewError(KeyErrorClass, "popitem(): dictionary is empty")
		}
		k := d.keys[len(d.keys)-1]
		v, _, err := d.remove(k)
		if err != nil {
			return nil, err
		}
		return NewTuple(k, v), nil
	})
	method(DictClass, "setdefault", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("setdefault", args, kw, 1, 2); err != nil {
			return nil, err
		}
		d := self.(*Dict)
		v, ok, err := d.Get(args[0])
		if err != nil || ok {
			return v, err
		}
		var def Value = None
		if len(args) == 2 {
			def = args[1]
		}
		return def, d.Set(args[0], def)
	})
	method(DictClass, "update", func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if len(args) > 1 {
			return nil, NewError(TypeErrorClass, "update expected at most 1 argument, got %d", len(args))
		}
		d := self.(*Dict)
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
		return None, nil
	})
	method(DictClass, "clear", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("clear", args, kw, 0, 0); err != nil {
			return nil, err
		}
		self.(*Dict).clear()
		return None, nil
	})
	method(DictClass, "copy", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("copy", args, kw, 0, 0); err != nil {
			return nil, err
		}
		out := NewDict()
		var err error
		self.(*Dict).Items(func(k, v Value) {
			if err == nil {
				err = out.Set(k, v)
			}
		})
		return out, err
	})
}

func (in *Interp) setArg(v Value) (*Set, error) {
	if s, ok := v.(*Set); ok {
		return s, nil
	}
	items, err := in.ToSlice(v)
	if err != nil {
		return nil, err
	}
	s := NewSet()
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// setAlgebra registers a method combining the receiver with each argument
// through the matching set operator.
func setAlgebra(name, op string, inPlace bool) {
	method(SetClass, name, func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if len(kw) > 0 {
			return nil, NewError(TypeErrorClass, "%s() takes no keyword arguments", name)
		}
		cur := self.(*Set)
		for _, a := range args {
			other, err := in.setArg(a)
			if err != nil {
				return nil, err
			}
			r, err := setOp(op, cur, other)
			if err != nil {
				return nil, err
			}
			cur = r.(*Set)
		}
		if inPlace {
			s := self.(*Set)
			s.clear()
			for _, k := range cur.keys {
				if err := s.Add(k); err != nil {
					return nil, err
				}
			}
			return None, nil
		}
		if cur == self {
			cur = cur.copySet()
		}
		return cur, nil
	})
}

func setRelation(name string, test func(a, b *Set) bool) {
	method(SetClass, name, func(in *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity(name, args, kw, 1, 1); err != nil {
			return nil, err
		}
		other, err := in.setArg(args[0])
		if err != nil {
			return nil, err
		}
		return test(self.(*Set), other), nil
	})
}

func installSetMethods() {
	method(SetClass, "add", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("set.add", args, kw, 1, 1); err != nil {
			return nil, err
		}
		return None, self.(*Set).Add(args[0])
	})
	method(SetClass, "remove", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("set.remove", args, kw, 1, 1); err != nil {
			return nil, err
		}
		ok, err := self.(*Set).Discard(args[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Exception{Value: &Instance{Class: KeyErrorClass, Attrs: NewNamespace(), Args: []Value{args[0]}}}
		}
		return None, nil
	})
	method(SetClass, "discard", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("set.discard", args, kw, 1, 1); err != nil {
			return nil, err
		}
		_, err := self.(*Set).Discard(args[0])
		return None, err
	})
	method(SetClass, "pop", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("pop", args, kw, 0, 0); err != nil {
			return nil, err
		}
		s := self.(*Set)
		if s.Len() == 0 {
			return nil, NewError(KeyErrorClass, "pop from an empty set")
		}
		k := s.keys[0]
		_, err := s.Discard(k)
		return k, err
	})
	method(SetClass, "clear", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("clear", args, kw, 0, 0); err != nil {
			return nil, err
		}
		self.(*Set).clear()
		return None, nil
	})
	method(SetClass, "copy", func(_ *Interp, self Value, args []Value, kw []Kwarg) (Value, error) {
		if err := arity("copy", args, kw, 0, 0); err != nil {
			return nil, err
		}
		return self.(*Set).copySet(), nil
	})
	setAlgebra("union", "|", false)
	setAlgebra("intersection", "&", false)
	setAlgebra("difference", "-", false)
	setAlgebra("symmetric_difference", "^", false)
	setAlgebra("update", "|", true)
	setAlgebra("intersection_update", "&", true)
	setAlgebra("difference_update", "-", true)
	setRelation("issubset", isSubset)
	setRelation("issuperset", func(a, b *Set) bool { return isSubset(b, a) })
	setRelation("isdisjoint", func(a, b *Set) bool {
		for _, k := range a.keys {
			if ok, _ := b.Contains(k); ok {
				return false
			}
		}
		return true
	})
}
