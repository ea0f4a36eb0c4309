package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/ast"
	"github.com/phobologic/pytutor/internal/parse"
)

type recorder struct {
	events []string
	sites  []ast.Pos
	stopAt int
}

func (r *recorder) Trace(ev Event) error {
	f := ev.Frame()
	r.events = append(r.events, fmt.Sprintf("%s %s:%d", ev.Kind, f.Name, f.Line))
	if ev.Kind == EventCall {
		if c := ev.Caller(); c != nil {
			r.sites = append(r.sites, c.Site)
		}
	}
	if r.stopAt > 0 && len(r.events) >= r.stopAt {
		return ErrStopped
	}
	return nil
}

func runSource(t *testing.T, src string, opts Options) (*Interp, error) {
	t.Helper()
	prog, err := parse.Parse(context.Background(), src)
	require.NoError(t, err)
	if opts.Builtins == nil {
		opts.Builtins = Builtins()
	}
	in := New(opts)
	return in, in.Run(context.Background(), prog.Module)
}

func output(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	_, err := runSource(t, src, Options{Stdout: &out})
	require.NoError(t, err)
	return out.String()
}

func TestEventsStraightLine(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	var out bytes.Buffer
	_, err := runSource(t, "x = 1\ny = x + 1\nprint(y)\n", Options{Tracer: rec, Stdout: &out})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"line <module>:1",
		"line <module>:2",
		"line <module>:3",
		"return <module>:3",
	}, rec.events)
	assert.Equal(t, "2\n", out.String())
}

func TestEventsFunctionCall(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	_, err := runSource(t, "def f(a):\n    return a * 2\ny = f(3)\n", Options{Tracer: rec})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"line <module>:1",
		"line <module>:3",
		"call f:1",
		"line f:2",
		"return f:2",
		"return <module>:3",
	}, rec.events)
	require.Len(t, rec.sites, 1)
	assert.Equal(t, ast.Pos{Line: 3, Col: 4, EndLine: 3, EndCol: 8}, rec.sites[0])
}

func TestEventsLoopRevisitsHeader(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	_, err := runSource(t, "i = 0\nwhile i < 2:\n    i += 1\n", Options{Tracer: rec})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"line <module>:1",
		"line <module>:2",
		"line <module>:3",
		"line <module>:2",
		"line <module>:3",
		"line <module>:2",
		"return <module>:2",
	}, rec.events)
}

func TestEventsCaughtException(t *testing.T) {
	t.Parallel()

	src := `def f():
    raise ValueError("bad")
try:
    f()
except ValueError as e:
    print(e)
`
	rec := &recorder{}
	var out bytes.Buffer
	_, err := runSource(t, src, Options{Tracer: rec, Stdout: &out})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"line <module>:1",
		"line <module>:3",
		"line <module>:4",
		"call f:1",
		"line f:2",
		"exception f:2",
		"return f:2",
		"exception <module>:4",
		"line <module>:5",
		"line <module>:6",
		"return <module>:6",
	}, rec.events)
	assert.Equal(t, "bad\n", out.String())
}

func TestUncaughtExceptionHasNoModuleReturn(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	in, err := runSource(t, "x = 1\ny = x / 0\n", Options{Tracer: rec})
	require.Error(t, err)

	exc, ok := AsException(err)
	require.True(t, ok)
	assert.Equal(t, "ZeroDivisionError: division by zero", exc.Message(in))
	assert.Equal(t, 2, exc.Line)
	assert.Equal(t, []string{
		"line <module>:1",
		"line <module>:2",
		"exception <module>:2",
	}, rec.events)
}

func TestTracerErrorStopsRun(t *testing.T) {
	t.Parallel()

	src := `total = 0
try:
    while True:
        total += 1
finally:
    print("never")
`
	rec := &recorder{stopAt: 10}
	var out bytes.Buffer
	_, err := runSource(t, src, Options{Tracer: rec, Stdout: &out})
	require.ErrorIs(t, err, ErrStopped)
	assert.Len(t, rec.events, 10)
	assert.Empty(t, out.String())
}

func TestContextCancelStopsRun(t *testing.T) {
	t.Parallel()

	prog, err := parse.Parse(context.Background(), "while True:\n    pass\n")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := New(Options{Tracer: &recorder{}, Builtins: Builtins()})
	err = in.Run(ctx, prog.Module)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecursionLimit(t *testing.T) {
	t.Parallel()

	in, err := runSource(t, "def f(n):\n    return f(n + 1)\nf(0)\n", Options{MaxDepth: 50})
	exc, ok := AsException(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "RecursionError: maximum recursion depth exceeded", exc.Message(in))
}

func TestProgramOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"sorted reverse", "print(sorted([3, 1, 2], reverse=True))\n", "[3, 2, 1]\n"},
		{"str format", "print(\"{} + {} = {:>3}\".format(1, 2, 3))\n", "1 + 2 =   3\n"},
		{"setdefault", "d = {\"a\": 1}\nd.setdefault(\"b\", 2)\nprint(d)\n", "{'a': 1, 'b': 2}\n"},
		{"comprehension", "print([x * x for x in range(4) if x % 2 == 0])\n", "[0, 4]\n"},
		{"fstring", "x = 3.5\nprint(f\"{x:.2f}|{x!r}\")\n", "3.50|3.5\n"},
		{"split", "print(\" a  b \".split(), \"x,y\".split(\",\"))\n", "['a', 'b'] ['x', 'y']\n"},
		{"map zip", "print(list(map(lambda v: v + 1, [1, 2])), list(zip(\"ab\", [1, 2])))\n", "[2, 3] [('a', 1), ('b', 2)]\n"},
		{"floor ops", "print(divmod(-7, 2), 7 // 2, -7 % 3)\n", "(-4, 1) 3 2\n"},
		{"division", "print(1 / 4, 10 / 5, 2 ** 10)\n", "0.25 2.0 1024\n"},
		{"min max sum", "print(max([1, 5, 3]), min(4, 2, key=lambda v: -v), sum(range(5)))\n", "5 4 10\n"},
		{"round", "print(round(2.5), round(3.14159, 2))\n", "2 3.14\n"},
		{"set", "s = {3, 1}\ns.add(2)\nprint(len(s), 2 in s)\n", "3 True\n"},
		{"percent", "print(\"%d items at %.1f%%\" % (3, 12.5))\n", "3 items at 12.5%\n"},
		{"isinstance", "print(isinstance(True, int), type(3.0).__name__)\n", "True float\n"},
		{"slices", "x = [1, 2, 3]\nx[1:] = [9]\nprint(x, x[::-1])\n", "[1, 9] [9, 1]\n"},
		{"key error", "try:\n    {}[\"k\"]\nexcept KeyError as e:\n    print(\"missing\", e)\n", "missing 'k'\n"},
		{"print sep end", "print(1, 2, sep=\"-\", end=\"!\")\n", "1-2!"},
		{"join", "print(\", \".join([\"a\", \"b\"]))\n", "a, b\n"},
		{"enumerate", "for i, c in enumerate(\"ab\", 1):\n    print(i, c)\n", "1 a\n2 b\n"},
		{"int parse", "print(int(\" 42 \") + int(\"ff\", 16))\n", "297\n"},
		{"closure", "def counter():\n    n = 0\n    def inc():\n        nonlocal n\n        n += 1\n        return n\n    return inc\nc = counter()\nc()\nprint(c())\n", "2\n"},
		{"finally", "def f():\n    try:\n        return 1\n    finally:\n        print(\"cleanup\")\nprint(f())\n", "cleanup\n1\n"},
		{"super", `class A:
    def __init__(self, n):
        self.n = n
    def describe(self):
        return "A" + str(self.n)
class B(A):
    def describe(self):
        return "B/" + super().describe()
print(B(2).describe())
`, "B/A2\n"},
		{"custom exception", `class Oops(Exception):
    def __init__(self, code):
        super().__init__("code", code)
        self.code = code
try:
    raise Oops(7)
except Exception as e:
    print(e.code, isinstance(e, Oops))
`, "7 True\n"},
		{"user str", `class P:
    def __str__(self):
        return "P!"
print(P(), str(P()))
`, "P! P!\n"},
		{"list methods", "a = [3, 1, 2]\na.sort()\na.append(4)\nprint(a.pop(0), a, a.index(4))\n", "1 [2, 3, 4] 2\n"},
		{"dict items", "d = dict(a=1, b=2)\nfor k, v in d.items():\n    print(k, v)\n", "a 1\nb 2\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, output(t, tt.src))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"index", "x = [1]\nx[3]\n", "IndexError: list index out of range"},
		{"key", "{}['a']\n", "KeyError: 'a'"},
		{"name", "print(y)\n", "NameError: name 'y' is not defined"},
		{"missing arg", "def f(a):\n    pass\nf()\n", "TypeError: f() missing 1 required positional argument: 'a'"},
		{"too many args", "def f(a):\n    pass\nf(1, 2)\n", "TypeError: f() takes 1 positional argument but 2 were given"},
		{"int literal", "int('x')\n", "ValueError: invalid literal for int() with base 10: 'x'"},
		{"import", "import os\n", "ImportError: import of 'os' is not allowed"},
		{"operand", "1 + 'a'\n", "TypeError: unsupported operand type(s) for +: 'int' and 'str'"},
		{"attribute", "None.foo\n", "AttributeError: 'NoneType' object has no attribute 'foo'"},
		{"unbound local", "def f():\n    return x\n    x = 1\nf()\n", "UnboundLocalError: cannot access local variable 'x' where it is not associated with a value"},
		{"assert", "assert 1 == 2, 'nope'\n", "AssertionError: nope"},
		{"not callable", "x = 5\nx()\n", "TypeError: 'int' object is not callable"},
		{"range step", "range(1, 2, 0)\n", "ValueError: range() arg 3 must not be zero"},
		{"shift too large", "x = 1 << (1 << 30)\n", "OverflowError: integer result too large"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := runSource(t, tt.src, Options{})
			exc, ok := AsException(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.want, exc.Message(in))
		})
	}
}

func TestIDsAreStablePerRun(t *testing.T) {
	t.Parallel()

	in, err := runSource(t, "a = [1]\nb = a\nc = [1]\n", Options{})
	require.NoError(t, err)

	a, _ := in.Globals().Get("a")
	b, _ := in.Globals().Get("b")
	c, _ := in.Globals().Get("c")
	assert.Equal(t, in.ID(a), in.ID(b))
	assert.NotEqual(t, in.ID(a), in.ID(c))
}

func TestBuiltinsOnlyFromAllowList(t *testing.T) {
	t.Parallel()

	all := Builtins()
	in, err := runSource(t, "print(len([1]))\n", Options{Builtins: map[string]Value{"print": all["print"]}})
	exc, ok := AsException(err)
	require.True(t, ok)
	assert.Equal(t, "NameError: name 'len' is not defined", exc.Message(in))
}

func TestUserStrIsNotTraced(t *testing.T) {
	t.Parallel()

	src := `class P:
    def __str__(self):
        return "p"
s = str(P())
`
	rec := &recorder{}
	_, err := runSource(t, src, Options{Tracer: rec})
	require.NoError(t, err)
	for _, ev := range rec.events {
		assert.NotContains(t, ev, "__str__")
	}
}

func TestNamespaceOrder(t *testing.T) {
	t.Parallel()

	ns := NewNamespace()
	ns.Set("b", int64(1))
	ns.Set("a", int64(2))
	ns.Set("b", int64(3))
	assert.Equal(t, []string{"b", "a"}, ns.Names())
	assert.True(t, ns.Delete("b"))
	assert.Equal(t, []string{"a"}, ns.Names())
	assert.False(t, ns.Delete("zz"))
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0.1, "0.1"},
		{1e16, "1e+16"},
		{1.5e-5, "1.5e-05"},
		{-2.25, "-2.25"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in), "FormatFloat(%v)", tt.in)
	}
}

func TestExceptionErrorWithoutInterp(t *testing.T) {
	t.Parallel()

	err := NewError(ValueErrorClass, "bad %d", 3)
	assert.Equal(t, "ValueError: bad 3", err.Error())

	wrapped := fmt.Errorf("running: %w", err)
	exc, ok := AsException(wrapped)
	require.True(t, ok)
	assert.Same(t, err, exc)
	assert.False(t, errors.Is(wrapped, ErrStopped))
}

func TestBigIntegers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"power", "print(10 ** 20)\n", "100000000000000000000\n"},
		{"factorial", "def fact(n):\n    r = 1\n    for i in range(2, n + 1):\n        r *= i\n    return r\nprint(fact(25))\n", "15511210043330985984000000\n"},
		{"back to small", "x = 2 ** 64\nprint(x - 2 ** 64, type(x) == int)\n", "0 True\n"},
		{"negate min", "print(-(-2 ** 63))\n", "9223372036854775808\n"},
		{"literal", "print(99999999999999999999 // 7, 99999999999999999999 % 7)\n", "14285714285714285714 1\n"},
		{"floor division", "print(-10 ** 20 // 3)\n", "-33333333333333333334\n"},
		{"true division", "print(10 ** 20 / 10 ** 18)\n", "100.0\n"},
		{"compare", "print(2 ** 64 > 2 ** 63, 2 ** 64 == 2.0 ** 64)\n", "True True\n"},
		{"dict key", "d = {2 ** 70: 'a'}\nprint(d[2 ** 70])\n", "a\n"},
		{"hex", "print(hex(2 ** 64))\n", "0x10000000000000000\n"},
		{"int of string", "print(int('1' * 25))\n", "1111111111111111111111111\n"},
		{"grouped", "print(f'{2 ** 64:,}')\n", "18,446,744,073,709,551,616\n"},
		{"round", "print(round(125 * 10 ** 18, -19))\n", "120000000000000000000\n"},
		{"pow mod", "print(pow(2, 100, 1000))\n", "376\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, output(t, tt.src))
		})
	}
}
