// Package encode turns interpreter values into JSON-safe structures for the
// trace. Scalars pass through, ints past the int64 range as model.BigInt;
// compound values become tagged arrays whose first element names the kind:
//
//	["LIST", id, item...]
//	["TUPLE", id, item...]
//	["SET", id, item...]
//	["DICT", id, [key, value]...]
//	["INSTANCE", class name, id, [attr, value]...]
//	["CLASS", name, id, [base name...], [attr, value]...]
//	["FUNCTION", "name(params)", null]
//	["CIRCULAR_REF", id]
//	["SPECIAL_FLOAT", "NaN" | "Infinity" | "-Infinity"]
//	["OTHER", type name, id, repr]
//	["UNENCODABLE", type name]
package encode

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/phobologic/pytutor/internal/interp"
	"github.com/phobologic/pytutor/internal/model"
)

// Tags of encoded compound values.
const (
	TagList        = "LIST"
	TagTuple       = "TUPLE"
	TagSet         = "SET"
	TagDict        = "DICT"
	TagInstance    = "INSTANCE"
	TagClass       = "CLASS"
	TagFunction    = "FUNCTION"
	TagCircularRef = "CIRCULAR_REF"
	TagSpecial     = "SPECIAL_FLOAT"
	TagOther       = "OTHER"
	TagUnencodable = "UNENCODABLE"
)

// Inspector gives the encoder access to per-run object identity and to the
// printable form of values it does not structure.
type Inspector interface {
	ID(v interp.Value) uint64
	Repr(v interp.Value) (string, error)
}

// Encoder encodes the values of one run.
type Encoder struct {
	insp   Inspector
	stable bool
}

// New returns an encoder. With stableIDs false every id is 0, so traces of
// the same program compare equal across runs.
func New(insp Inspector, stableIDs bool) *Encoder {
	return &Encoder{insp: insp, stable: stableIDs}
}

// Seen tracks the compound values on the path from the root of one Encode
// call to the value being encoded.
type Seen map[uint64]bool

// Encode returns the JSON-safe form of v. A value that cannot be encoded
// becomes an UNENCODABLE placeholder instead of failing the trace.
func (e *Encoder) Encode(v interp.Value, seen Seen) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = []any{TagUnencodable, interp.TypeName(v)}
		}
	}()
	if seen == nil {
		seen = Seen{}
	}
	return e.encode(v, seen)
}

// Value encodes v with a fresh cycle set.
func (e *Encoder) Value(v interp.Value) any { return e.Encode(v, nil) }

func (e *Encoder) id(v interp.Value) uint64 {
	if !e.stable {
		return 0
	}
	return e.insp.ID(v)
}

func (e *Encoder) encode(v interp.Value, seen Seen) any {
	switch x := v.(type) {
	case interp.NoneType:
		return nil
	case bool, int64, string:
		return x
	case *big.Int:
		n := model.BigInt(x.String())
		return &n
	case float64:
		switch {
		case math.IsNaN(x):
			return []any{TagSpecial, "NaN"}
		case math.IsInf(x, 1):
			return []any{TagSpecial, "Infinity"}
		case math.IsInf(x, -1):
			return []any{TagSpecial, "-Infinity"}
		}
		return x
	case *interp.Function:
		return []any{TagFunction, x.Signature(), nil}
	}

	key := e.insp.ID(v)
	if seen[key] {
		return []any{TagCircularRef, e.id(v)}
	}
	seen[key] = true
	defer delete(seen, key)

	switch x := v.(type) {
	case *interp.List:
		return e.sequence(TagList, v, x.Items, seen)
	case *interp.Tuple:
		return e.sequence(TagTuple, v, x.Items, seen)
	case *interp.Set:
		return e.sequence(TagSet, v, x.Keys(), seen)
	case *interp.Dict:
		out := []any{TagDict, e.id(v)}
		x.Items(func(k, val interp.Value) {
			out = append(out, []any{e.encode(k, seen), e.encode(val, seen)})
		})
		return out
	case *interp.Instance:
		out := []any{TagInstance, x.Class.Name, e.id(v)}
		x.Attrs.Each(func(name string, val interp.Value) {
			out = append(out, []any{name, e.encode(val, seen)})
		})
		return out
	case *interp.Class:
		if x.Builtin() {
			return e.other(v)
		}
		bases := make([]any, 0, len(x.Bases))
		for _, b := range x.Bases {
			if b != interp.ObjectClass {
				bases = append(bases, b.Name)
			}
		}
		out := []any{TagClass, x.Name, e.id(v), bases}
		x.Attrs.Each(func(name string, val interp.Value) {
			if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
				return
			}
			out = append(out, []any{name, e.encode(val, seen)})
		})
		return out
	}
	return e.other(v)
}

func (e *Encoder) sequence(tag string, v interp.Value, items []interp.Value, seen Seen) []any {
	out := make([]any, 0, len(items)+2)
	out = append(out, tag, e.id(v))
	for _, item := range items {
		out = append(out, e.encode(item, seen))
	}
	return out
}

func (e *Encoder) other(v interp.Value) []any {
	s, err := e.insp.Repr(v)
	if err != nil {
		return []any{TagUnencodable, interp.TypeName(v)}
	}
	return []any{TagOther, interp.TypeName(v), e.id(v), s}
}

// String renders an encoded value compactly, for logs and terminal views.
func String(enc any) string {
	var sb strings.Builder
	write(&sb, enc)
	return sb.String()
}

func write(sb *strings.Builder, enc any) {
	switch x := enc.(type) {
	case nil:
		sb.WriteString("None")
	case bool:
		if x {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case int64:
		fmt.Fprintf(sb, "%d", x)
	case uint64:
		fmt.Fprintf(sb, "%d", x)
	case *model.BigInt:
		sb.WriteString(string(*x))
	case float64:
		sb.WriteString(interp.FormatFloat(x))
	case string:
		sb.WriteString(interp.QuoteString(x))
	case []any:
		writeTagged(sb, x)
	default:
		fmt.Fprintf(sb, "%v", x)
	}
}

func writeTagged(sb *strings.Builder, x []any) {
	if len(x) == 0 {
		sb.WriteString("[]")
		return
	}
	tag, _ := x[0].(string)
	switch tag {
	case TagList, TagTuple, TagSet:
		lb, rb := "[", "]"
		switch tag {
		case TagTuple:
			lb, rb = "(", ")"
		case TagSet:
			lb, rb = "{", "}"
		}
		sb.WriteString(lb)
		for i, item := range tail(x, 2) {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, item)
		}
		if tag == TagTuple && len(x) == 3 {
			sb.WriteString(",")
		}
		sb.WriteString(rb)
	case TagDict:
		sb.WriteString("{")
		for i, pair := range tail(x, 2) {
			if i > 0 {
				sb.WriteString(", ")
			}
			writePair(sb, pair, ": ")
		}
		sb.WriteString("}")
	case TagInstance:
		fmt.Fprintf(sb, "%v(", x[1])
		for i, pair := range tail(x, 3) {
			if i > 0 {
				sb.WriteString(", ")
			}
			writePair(sb, pair, "=")
		}
		sb.WriteString(")")
	case TagClass:
		fmt.Fprintf(sb, "<class %v>", x[1])
	case TagFunction:
		fmt.Fprintf(sb, "<function %v>", x[1])
	case TagCircularRef:
		sb.WriteString("...")
	case TagSpecial:
		switch x[1] {
		case "NaN":
			sb.WriteString("nan")
		case "Infinity":
			sb.WriteString("inf")
		default:
			sb.WriteString("-inf")
		}
	case TagOther:
		fmt.Fprintf(sb, "%v", x[len(x)-1])
	case TagUnencodable:
		fmt.Fprintf(sb, "<unencodable %v>", x[1])
	default:
		fmt.Fprintf(sb, "%v", x)
	}
}

func writePair(sb *strings.Builder, pair any, sep string) {
	p, ok := pair.([]any)
	if !ok || len(p) != 2 {
		fmt.Fprintf(sb, "%v", pair)
		return
	}
	if name, isStr := p[0].(string); isStr && sep == "=" {
		sb.WriteString(name)
	} else {
		write(sb, p[0])
	}
	sb.WriteString(sep)
	write(sb, p[1])
}

func tail(x []any, n int) []any {
	if len(x) <= n {
		return nil
	}
	return x[n:]
}
