package interp

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FormatFloat renders f the way Python's repr does.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// QuoteString renders s as a Python string literal.
func QuoteString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == rune(quote) || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case !unicode.IsPrint(r) && r != ' ':
			switch {
			case r < 0x100:
				fmt.Fprintf(&sb, `\x%02x`, r)
			case r < 0x10000:
				fmt.Fprintf(&sb, `\u%04x`, r)
			default:
				fmt.Fprintf(&sb, `\U%08x`, r)
			}
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// Str implements str(v). User-defined __str__ and __repr__ run untraced.
func (in *Interp) Str(v Value) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case *Instance:
		if in != nil {
			if s, ok, err := in.userString(v, "__str__"); ok || err != nil {
				return s, err
			}
		}
		if v.Class.IsException() {
			return in.exceptionDesc(v), nil
		}
	}
	return in.Repr(v)
}

// Repr implements repr(v).
func (in *Interp) Repr(v Value) (string, error) {
	var sb strings.Builder
	err := in.repr(&sb, v, map[any]bool{})
	return sb.String(), err
}

func (in *Interp) userString(v *Instance, method string) (string, bool, error) {
	m, owner, ok := v.Class.Lookup(method)
	if !ok || owner.builtin {
		return "", false, nil
	}
	r, err := in.runQuiet(func() (Value, error) {
		return in.callValue(m, []Value{v}, nil)
	})
	if err != nil {
		return "", true, err
	}
	s, isStr := r.(string)
	if !isStr {
		return "", true, NewError(TypeErrorClass, "%s returned non-string (type %s)", method, TypeName(r))
	}
	return s, true, nil
}

func (in *Interp) addr(v Value) uint64 {
	if in == nil {
		return 0
	}
	return in.ID(v)
}

func (in *Interp) repr(sb *strings.Builder, v Value, seen map[any]bool) error {
	switch v := v.(type) {
	case NoneType:
		sb.WriteString("None")
	case bool:
		if v {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
	case *big.Int:
		sb.WriteString(v.String())
	case float64:
		sb.WriteString(FormatFloat(v))
	case string:
		sb.WriteString(QuoteString(v))
	case *List:
		if seen[v] {
			sb.WriteString("[...]")
			return nil
		}
		seen[v] = true
		defer delete(seen, v)
		sb.WriteByte('[')
		if err := in.reprItems(sb, v.Items, seen); err != nil {
			return err
		}
		sb.WriteByte(']')
	case *Tuple:
		if seen[v] {
			sb.WriteString("(...)")
			return nil
		}
		seen[v] = true
		defer delete(seen, v)
		sb.WriteByte('(')
		if err := in.reprItems(sb, v.Items, seen); err != nil {
			return err
		}
		if len(v.Items) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case *Set:
		if v.Len() == 0 {
			sb.WriteString("set()")
			return nil
		}
		if seen[v] {
			sb.WriteString("{...}")
			return nil
		}
		seen[v] = true
		defer delete(seen, v)
		sb.WriteByte('{')
		if err := in.reprItems(sb, v.keys, seen); err != nil {
			return err
		}
		sb.WriteByte('}')
	case *Dict:
		if seen[v] {
			sb.WriteString("{...}")
			return nil
		}
		seen[v] = true
		defer delete(seen, v)
		sb.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := in.repr(sb, k, seen); err != nil {
				return err
			}
			sb.WriteString(": ")
			if err := in.repr(sb, v.vals[i], seen); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case *Range:
		if v.Step == 1 {
			fmt.Fprintf(sb, "range(%d, %d)", v.Start, v.Stop)
		} else {
			fmt.Fprintf(sb, "range(%d, %d, %d)", v.Start, v.Stop, v.Step)
		}
	case *SliceValue:
		sb.WriteString("slice(")
		for i, part := range []Value{v.Lo, v.Hi, v.Step} {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := in.repr(sb, part, seen); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
	case *Function:
		name := v.Name
		if v.Lambda {
			name = "<lambda>"
		}
		fmt.Fprintf(sb, "<function %s at 0x%x>", name, in.addr(v))
	case *Builtin:
		fmt.Fprintf(sb, "<built-in function %s>", v.Name)
	case *BoundMethod:
		name := "?"
		switch fn := v.Fn.(type) {
		case *Function:
			name = fn.Name
		case *Builtin:
			name = fn.Name
		}
		fmt.Fprintf(sb, "<bound method %s.%s of ", TypeName(v.Self), name)
		if err := in.repr(sb, v.Self, seen); err != nil {
			return err
		}
		sb.WriteByte('>')
	case *Class:
		if v.builtin {
			fmt.Fprintf(sb, "<class '%s'>", v.Name)
		} else {
			fmt.Fprintf(sb, "<class '__main__.%s'>", v.Name)
		}
	case *Instance:
		if v == notImplemented {
			sb.WriteString("NotImplemented")
			return nil
		}
		if in != nil {
			s, ok, err := in.userString(v, "__repr__")
			if err != nil {
				return err
			}
			if ok {
				sb.WriteString(s)
				return nil
			}
		}
		if v.Class.IsException() {
			sb.WriteString(v.Class.Name)
			sb.WriteByte('(')
			if err := in.reprItems(sb, v.Args, seen); err != nil {
				return err
			}
			sb.WriteByte(')')
			return nil
		}
		fmt.Fprintf(sb, "<__main__.%s object at 0x%x>", v.Class.Name, in.addr(v))
	case *Iterator:
		fmt.Fprintf(sb, "<iterator object at 0x%x>", in.addr(v))
	case *Super:
		fmt.Fprintf(sb, "<super: <class '%s'>, <%s object>>", v.Class.Name, TypeName(v.Self))
	default:
		fmt.Fprintf(sb, "<%T>", v)
	}
	return nil
}

func (in *Interp) reprItems(sb *strings.Builder, items []Value, seen map[any]bool) error {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := in.repr(sb, item, seen); err != nil {
			return err
		}
	}
	return nil
}

// formatSpec is a parsed format-spec mini-language string.
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	zero      bool
	width     int
	comma     bool
	precision int
	verb      byte
}

func parseSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	rs := []rune(spec)
	i := 0
	isAlign := func(r rune) bool { return r == '<' || r == '>' || r == '^' || r == '=' }
	if len(rs) >= 2 && isAlign(rs[1]) {
		fs.fill, fs.align = rs[0], byte(rs[1])
		i = 2
	} else if len(rs) >= 1 && isAlign(rs[0]) {
		fs.align = byte(rs[0])
		i = 1
	}
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-' || rs[i] == ' ') {
		fs.sign = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '#' {
		fs.alt = true
		i++
	}
	if i < len(rs) && rs[i] == '0' {
		fs.zero = true
		i++
	}
	start := i
	for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) && (rs[i] == ',' || rs[i] == '_') {
		fs.comma = true
		i++
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		start = i
		for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
			i++
		}
		if i == start {
			return fs, NewError(ValueErrorClass, "Format specifier missing precision")
		}
		fs.precision, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) {
		fs.verb = byte(rs[i])
		i++
	}
	if i != len(rs) {
		return fs, NewError(ValueErrorClass, "Invalid format specifier '%s'", spec)
	}
	return fs, nil
}

// Format implements format(v, spec).
func (in *Interp) Format(v Value, spec string) (string, error) {
	if inst, ok := v.(*Instance); ok {
		if r, found, err := in.dunder(inst, "__format__", spec); found || err != nil {
			if err != nil {
				return "", err
			}
			s, isStr := r.(string)
			if !isStr {
				return "", NewError(TypeErrorClass, "__format__ must return a str, not %s", TypeName(r))
			}
			return s, nil
		}
	}
	if spec == "" {
		return in.Str(v)
	}
	fs, err := parseSpec(spec)
	if err != nil {
		return "", err
	}
	var body string
	numeric := false
	switch x := v.(type) {
	case bool, int64, *big.Int:
		i, _ := asBig(x)
		mag := new(big.Int).Abs(i)
		numeric = true
		switch fs.verb {
		case 0, 'd', 'n':
			if _, isBool := x.(bool); isBool && fs.verb == 0 {
				body, _ = in.Str(x)
				numeric = false
				break
			}
			body = groupDigits(mag.String(), fs.comma)
		case 'x', 'X', 'o', 'b':
			base := map[byte]int{'x': 16, 'X': 16, 'o': 8, 'b': 2}[fs.verb]
			body = mag.Text(base)
			if fs.verb == 'X' {
				body = strings.ToUpper(body)
			}
			if fs.alt {
				body = "0" + string(fs.verb) + body
			}
		case 'c':
			if !i.IsInt64() || i.Sign() < 0 || i.Int64() > unicode.MaxRune {
				return "", NewError(OverflowErrorClass, "%%c arg not in range(0x110000)")
			}
			body = string(rune(i.Int64()))
			numeric = false
		case 'e', 'E', 'f', 'F', 'g', 'G', '%':
			body = formatFloatVerb(bigFloat(mag), fs)
		default:
			return "", NewError(ValueErrorClass, "Unknown format code '%c' for object of type 'int'", fs.verb)
		}
		if numeric {
			body = signed(i.Sign() < 0, body, fs.sign)
		}
	case float64:
		numeric = true
		switch fs.verb {
		case 0, 'e', 'E', 'f', 'F', 'g', 'G', '%', 'n':
			body = formatFloatVerb(math.Abs(x), fs)
		default:
			return "", NewError(ValueErrorClass, "Unknown format code '%c' for object of type 'float'", fs.verb)
		}
		body = signed(math.Signbit(x) && !math.IsNaN(x), body, fs.sign)
	default:
		if fs.verb != 0 && fs.verb != 's' {
			return "", NewError(ValueErrorClass, "Unknown format code '%c' for object of type '%s'", fs.verb, TypeName(v))
		}
		s, err := in.Str(v)
		if err != nil {
			return "", err
		}
		if fs.precision >= 0 && fs.precision < utf8.RuneCountInString(s) {
			s = string([]rune(s)[:fs.precision])
		}
		body = s
	}
	return pad(body, fs, numeric), nil
}

func signed(neg bool, body string, sign byte) string {
	switch {
	case neg:
		return "-" + body
	case sign == '+':
		return "+" + body
	case sign == ' ':
		return " " + body
	}
	return body
}

func formatFloatVerb(f float64, fs formatSpec) string {
	prec := fs.precision
	var s string
	switch fs.verb {
	case 0:
		if prec < 0 {
			s = FormatFloat(f)
		} else {
			s = strconv.FormatFloat(f, 'g', max(prec, 1), 64)
		}
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f, 'f', prec, 64)
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f, 'e', prec, 64)
	case 'g', 'G', 'n':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f, 'g', max(prec, 1), 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
	}
	if math.IsInf(f, 0) {
		s = "inf"
	} else if math.IsNaN(f) {
		s = "nan"
	}
	if fs.verb == 'E' || fs.verb == 'G' || fs.verb == 'F' {
		s = strings.ToUpper(s)
	}
	if fs.comma {
		intPart, rest, _ := strings.Cut(s, ".")
		if rest != "" {
			rest = "." + rest
		}
		s = groupDigits(intPart, true) + rest
	}
	return s
}

func groupDigits(digits string, comma bool) string {
	if !comma || len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

func pad(body string, fs formatSpec, numeric bool) string {
	n := utf8.RuneCountInString(body)
	if fs.width <= n {
		return body
	}
	align := fs.align
	fill := fs.fill
	if fs.zero && align == 0 && numeric {
		align, fill = '=', '0'
	}
	if align == 0 {
		align = '<'
		if numeric {
			align = '>'
		}
	}
	gap := fs.width - n
	fillStr := func(k int) string { return strings.Repeat(string(fill), k) }
	switch align {
	case '>':
		return fillStr(gap) + body
	case '^':
		return fillStr(gap/2) + body + fillStr(gap-gap/2)
	case '=':
		if body != "" && strings.ContainsRune("+- ", rune(body[0])) {
			return body[:1] + fillStr(gap) + body[1:]
		}
		return fillStr(gap) + body
	}
	return body + fillStr(gap)
}

// percentFormat implements the printf-style str % args operator.
func (in *Interp) percentFormat(format string, args Value) (Value, error) {
	var items []Value
	if t, ok := args.(*Tuple); ok {
		items = t.Items
	} else {
		items = []Value{args}
	}
	var sb strings.Builder
	next := 0
	take := func() (Value, error) {
		if next >= len(items) {
			return nil, NewError(TypeErrorClass, "not enough arguments for format string")
		}
		v := items[next]
		next++
		return v, nil
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return nil, NewError(ValueErrorClass, "incomplete format")
		}
		if format[i] == '%' {
			sb.WriteByte('%')
			continue
		}
		start := i
		for i < len(format) && strings.IndexByte("-+ 0#.0123456789", format[i]) >= 0 {
			i++
		}
		if i >= len(format) {
			return nil, NewError(ValueErrorClass, "incomplete format")
		}
		flags := format[start:i]
		verb := format[i]
		v, err := take()
		if err != nil {
			return nil, err
		}
		spec := percentToSpec(flags)
		var s string
		switch verb {
		case 's':
			s, err = in.Str(v)
			if err == nil {
				s, err = in.Format(s, spec)
			}
		case 'r', 'a':
			s, err = in.Repr(v)
			if err == nil {
				s, err = in.Format(s, spec)
			}
		case 'd', 'i', 'u':
			if f, ok := v.(float64); ok {
				if v, err = floatToInt(f); err != nil {
					return nil, err
				}
			}
			if !isNumber(v) {
				return nil, NewError(TypeErrorClass, "%%%c format: a real number is required, not %s", verb, TypeName(v))
			}
			s, err = in.Format(v, spec+"d")
		case 'f', 'F', 'e', 'E', 'g', 'G':
			f, ok := asFloat(v)
			if !ok {
				return nil, NewError(TypeErrorClass, "must be real number, not %s", TypeName(v))
			}
			s, err = in.Format(f, spec+string(verb))
		case 'x', 'X', 'o':
			n, ok := asBig(v)
			if !ok {
				return nil, NewError(TypeErrorClass, "%%%c format: an integer is required, not %s", verb, TypeName(v))
			}
			s, err = in.Format(normInt(n), spec+string(verb))
		case 'c':
			switch x := v.(type) {
			case string:
				s = x
			default:
				n, ok := asInt(v)
				if !ok {
					return nil, NewError(TypeErrorClass, "%%c requires int or char")
				}
				s = string(rune(n))
			}
		default:
			return nil, NewError(ValueErrorClass, "unsupported format character '%c' (0x%x)", verb, verb)
		}
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	if next < len(items) {
		if _, isTuple := args.(*Tuple); isTuple {
			return nil, NewError(TypeErrorClass, "not all arguments converted during string formatting")
		}
	}
	return sb.String(), nil
}

// percentToSpec translates printf flags to a format spec prefix.
func percentToSpec(flags string) string {
	var align, sign, zero, alt string
	i := 0
	for i < len(flags) && strings.IndexByte("-+ 0#", flags[i]) >= 0 {
		switch flags[i] {
		case '-':
			align = "<"
		case '+':
			sign = "+"
		case ' ':
			if sign == "" {
				sign = " "
			}
		case '0':
			zero = "0"
		case '#':
			alt = "#"
		}
		i++
	}
	if align != "" {
		zero = ""
	}
	return align + sign + alt + zero + flags[i:]
}
