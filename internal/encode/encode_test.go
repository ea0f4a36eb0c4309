package encode

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/interp"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/parse"
)

func runProgram(t *testing.T, src string) *interp.Interp {
	t.Helper()
	prog, err := parse.Parse(context.Background(), src)
	require.NoError(t, err)
	in := interp.New(interp.Options{Builtins: interp.Builtins()})
	require.NoError(t, in.Run(context.Background(), prog.Module))
	return in
}

func global(t *testing.T, in *interp.Interp, name string) interp.Value {
	t.Helper()
	v, ok := in.Globals().Get(name)
	require.True(t, ok, "global %s", name)
	return v
}

func TestEncodeScalars(t *testing.T) {
	t.Parallel()

	e := New(interp.New(interp.Options{}), true)
	assert.Nil(t, e.Value(interp.None))
	assert.Equal(t, true, e.Value(true))
	assert.Equal(t, int64(3), e.Value(int64(3)))
	assert.Equal(t, 2.5, e.Value(2.5))
	assert.Equal(t, "hi", e.Value("hi"))
	assert.Equal(t, []any{TagSpecial, "NaN"}, e.Value(math.NaN()))
	assert.Equal(t, []any{TagSpecial, "Infinity"}, e.Value(math.Inf(1)))
	assert.Equal(t, []any{TagSpecial, "-Infinity"}, e.Value(math.Inf(-1)))
}

func TestEncodeBigInt(t *testing.T) {
	t.Parallel()

	in := runProgram(t, "x = [2 ** 70, -(10 ** 20)]\n")
	enc := New(in, false).Value(global(t, in, "x"))

	big70 := model.BigInt("1180591620717411303424")
	neg := model.BigInt("-100000000000000000000")
	assert.Equal(t, []any{TagList, uint64(0), &big70, &neg}, enc)
	assert.Equal(t, "[1180591620717411303424, -100000000000000000000]", String(enc))

	data, err := json.Marshal(enc)
	require.NoError(t, err)
	assert.Equal(t, `["LIST",0,1180591620717411303424,-100000000000000000000]`, string(data))

	n := model.BigInt("36893488147419103232")
	assert.Equal(t, &n, New(in, true).Value(new(big.Int).Lsh(big.NewInt(1), 65)))
}

func TestEncodeContainersWithoutIDs(t *testing.T) {
	t.Parallel()

	in := runProgram(t, "x = [1, (2, 'a'), {'k': None}]\ns = {3}\n")
	e := New(in, false)

	assert.Equal(t, []any{
		TagList, uint64(0),
		int64(1),
		[]any{TagTuple, uint64(0), int64(2), "a"},
		[]any{TagDict, uint64(0), []any{"k", nil}},
	}, e.Value(global(t, in, "x")))
	assert.Equal(t, []any{TagSet, uint64(0), int64(3)}, e.Value(global(t, in, "s")))
}

func TestEncodeStableIDs(t *testing.T) {
	t.Parallel()

	in := runProgram(t, "a = [1]\nb = [a, a]\n")
	e := New(in, true)

	a := global(t, in, "a")
	enc := e.Value(global(t, in, "b")).([]any)
	require.Len(t, enc, 4)
	first := enc[2].([]any)
	second := enc[3].([]any)
	assert.Equal(t, in.ID(a), first[1])
	assert.Equal(t, first, second, "shared references are not cycles")
}

func TestEncodeCycles(t *testing.T) {
	t.Parallel()

	in := runProgram(t, "x = [1]\nx.append(x)\nd = {}\nd['self'] = d\n")
	e := New(in, true)

	x := global(t, in, "x")
	assert.Equal(t, []any{TagList, in.ID(x), int64(1), []any{TagCircularRef, in.ID(x)}}, e.Value(x))

	d := global(t, in, "d")
	assert.Equal(t, []any{TagDict, in.ID(d), []any{"self", []any{TagCircularRef, in.ID(d)}}}, e.Value(d))
}

func TestEncodeObjects(t *testing.T) {
	t.Parallel()

	src := `class Point:
    dims = 2
    def __init__(self, x, y):
        self.x = x
        self.y = y
class Point3(Point):
    pass
p = Point(1, 2)
def add(a, b=1):
    return a + b
sq = lambda n: n * n
r = range(3)
`
	in := runProgram(t, src)
	e := New(in, false)

	assert.Equal(t, []any{TagInstance, "Point", uint64(0), []any{"x", int64(1)}, []any{"y", int64(2)}},
		e.Value(global(t, in, "p")))

	cls := e.Value(global(t, in, "Point")).([]any)
	require.GreaterOrEqual(t, len(cls), 5)
	assert.Equal(t, TagClass, cls[0])
	assert.Equal(t, "Point", cls[1])
	assert.Equal(t, []any{}, cls[3])
	assert.Equal(t, []any{"dims", int64(2)}, cls[4])

	sub := e.Value(global(t, in, "Point3")).([]any)
	assert.Equal(t, []any{"Point"}, sub[3])

	assert.Equal(t, []any{TagFunction, "add(a, b)", nil}, e.Value(global(t, in, "add")))
	assert.Equal(t, []any{TagFunction, "<lambda>(n)", nil}, e.Value(global(t, in, "sq")))
	assert.Equal(t, []any{TagOther, "range", uint64(0), "range(0, 3)"}, e.Value(global(t, in, "r")))
}

type failingInspector struct{}

func (failingInspector) ID(interp.Value) uint64 { return 1 }

func (failingInspector) Repr(interp.Value) (string, error) { return "", errors.New("boom") }

func TestEncodePlaceholderOnFailure(t *testing.T) {
	t.Parallel()

	e := New(failingInspector{}, true)
	assert.Equal(t, []any{TagUnencodable, "range"}, e.Value(&interp.Range{Stop: 2, Step: 1}))
}

func TestString(t *testing.T) {
	t.Parallel()

	in := runProgram(t, "x = [1, 'a', (2,), {'k': 1.5}, None]\nx.append(x)\n")
	e := New(in, false)
	assert.Equal(t, "[1, 'a', (2,), {'k': 1.5}, None, ...]", String(e.Value(global(t, in, "x"))))
}
