package stepper

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/ast"
	"github.com/phobologic/pytutor/internal/encode"
	"github.com/phobologic/pytutor/internal/interp"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/parse"
)

func traceProgram(t *testing.T, src string, cfg Config) model.Trace {
	t.Helper()
	s := New(src, cfg)
	prog, err := parse.Parse(context.Background(), src)
	if err != nil {
		s.Fail(err)
		return s.Finish()
	}
	var out bytes.Buffer
	in := interp.New(interp.Options{Tracer: s, Stdout: &out, Builtins: interp.Builtins()})
	s.Bind(in, out.String)
	s.Fail(in.Run(context.Background(), prog.Module))
	return s.Finish()
}

func events(trace model.Trace) []string {
	out := make([]string, len(trace))
	for i, r := range trace {
		out[i] = fmt.Sprintf("%s %s:%d", r.Event, r.FuncName, r.Line)
	}
	return out
}

func TestScenarioStraightLine(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "x = 1\ny = x + 1", Config{StableIDs: true})
	assert.Equal(t, []string{
		"step_line <module>:1",
		"step_line <module>:2",
		"return <module>:2",
	}, events(trace))

	assert.Empty(t, trace[0].Globals)
	assert.Equal(t, map[string]any{"x": int64(1)}, trace[1].Globals)
	assert.Equal(t, map[string]any{"x": int64(1), "y": int64(2)}, trace[2].Globals)

	assert.Equal(t, []int{}, trace[0].VisitedLines)
	assert.Equal(t, []int{1}, trace[1].VisitedLines)
	assert.Equal(t, []int{1, 2}, trace[2].VisitedLines)
	for _, r := range trace {
		assert.NotNil(t, r.StackLocals)
		assert.Empty(t, r.StackLocals)
	}
}

func TestScenarioCallSplice(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "def f(n):\n    return n*2\nf(5)", Config{StableIDs: true})
	require.Equal(t, []string{
		"step_line <module>:1",
		"step_line <module>:3",
		"step_line f:2",
		"return f:2",
		"return <module>:3",
	}, events(trace))

	inside := trace[2]
	require.NotNil(t, inside.CallerInfo)
	assert.Equal(t, "f(5)", inside.CallerInfo.Code)
	assert.Equal(t, [2]int{0, 4}, inside.CallerInfo.RelativePositions)
	assert.Equal(t, [2][2]int{{3, 0}, {3, 4}}, inside.CallerInfo.TruePositions)
	assert.Equal(t, []model.FrameLocals{{Name: "f", Locals: map[string]any{"n": int64(5)}}}, inside.StackLocals)

	ret := trace[3]
	require.NotNil(t, ret.CallerInfo)
	assert.Equal(t, "10", ret.CallerInfo.Code)
	assert.Equal(t, [2]int{0, 2}, ret.CallerInfo.RelativePositions)
	assert.Equal(t, int64(10), ret.StackLocals[0].Locals["__return__"])

	assert.Nil(t, trace[4].CallerInfo)
	assert.NotContains(t, trace[4].Globals, "__return__")
}

func TestScenarioInfiniteLoop(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "while True:\n    pass\n", Config{})
	require.Len(t, trace, DefaultMaxSteps+1)
	last := trace[len(trace)-1]
	assert.Equal(t, model.InstructionLimitReached, last.Event)
	assert.Equal(t, "(stopped after 200 steps to prevent possible infinite loop)", last.ExceptionMsg)
	for _, r := range trace[:DefaultMaxSteps] {
		assert.NotEqual(t, model.InstructionLimitReached, r.Event)
	}
}

func TestScenarioUncaught(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "a = 1\nb = 2\nc = a / 0\nd = 4\n", Config{})
	require.NotEmpty(t, trace)
	last := trace[len(trace)-1]
	assert.Equal(t, model.UncaughtException, last.Event)
	assert.Equal(t, 3, last.Line)
	assert.Equal(t, "ZeroDivisionError: division by zero", last.ExceptionMsg)

	prev := trace[len(trace)-2]
	assert.Equal(t, model.Exception, prev.Event)
	assert.Equal(t, "ZeroDivisionError: division by zero", prev.ExceptionMsg)
	for _, r := range trace {
		assert.NotEqual(t, 4, r.Line)
	}
}

func TestScenarioTwoCallsOneLine(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "def f(n):\n    return n * 2\ny = f(1) + f(2)\n", Config{})

	var returns []*model.CallerInfo
	for _, r := range trace {
		if r.Event == model.Return && r.FuncName == "f" {
			returns = append(returns, r.CallerInfo)
		}
	}
	require.Len(t, returns, 2)
	assert.Equal(t, "y = 2 + f(2)", returns[0].Code)
	assert.Equal(t, "y = 2 + 4", returns[1].Code)
	assert.Equal(t, [2]int{8, 9}, returns[1].RelativePositions)
}

func TestScenarioNestedCallsAfterSplice(t *testing.T) {
	t.Parallel()

	src := "def g(x):\n    return x + 1\ndef f(x):\n    return g(x) * g(x + 1)\nprint(f(1), f(2))\n"
	trace := traceProgram(t, src, Config{})

	var codes []string
	for _, r := range trace {
		if r.Event == model.Return && r.FuncName != model.TopLevelName {
			require.NotNil(t, r.CallerInfo)
			codes = append(codes, r.FuncName+": "+r.CallerInfo.Code)
		}
	}
	assert.Equal(t, []string{
		"g:     return 2 * g(x + 1)",
		"g:     return 2 * 3",
		"f: print(6, f(2))",
		"g:     return 3 * g(x + 1)",
		"g:     return 3 * 4",
		"f: print(6, 12)",
	}, codes)
}

func TestCaughtExceptionAndOutput(t *testing.T) {
	t.Parallel()

	src := `def check(n):
    if n < 0:
        raise ValueError("negative")
    return n
try:
    check(-1)
except ValueError:
    print("caught")
`
	trace := traceProgram(t, src, Config{})
	var msgs []string
	for _, r := range trace {
		if r.Event == model.Exception {
			msgs = append(msgs, fmt.Sprintf("%s:%s", r.FuncName, r.ExceptionMsg))
		}
	}
	assert.Equal(t, []string{"check:ValueError: negative", "<module>:ValueError: negative"}, msgs)

	last := trace[len(trace)-1]
	assert.True(t, last.IsTopLevelReturn())
	require.NotNil(t, last.Stdout)
	assert.Equal(t, "caught\n", *last.Stdout)
}

func TestLambdaAndHiddenNames(t *testing.T) {
	t.Parallel()

	src := "sq = lambda n: n * n\nr = sq(3)\n"
	trace := traceProgram(t, src, Config{})

	var names []string
	for _, r := range trace {
		for _, fl := range r.StackLocals {
			names = append(names, fl.Name)
		}
		assert.NotContains(t, r.Globals, "__name__")
	}
	require.NotEmpty(t, names)
	assert.Equal(t, "lambda on line 1", names[0])
}

func TestSyntaxErrorBecomesUncaught(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "x = 1\ny = = 2\n", Config{})
	require.Len(t, trace, 1)
	assert.Equal(t, model.UncaughtException, trace[0].Event)
	assert.Equal(t, 2, trace[0].Line)
	assert.Positive(t, trace[0].Offset)
	assert.Equal(t, "Error: invalid syntax", trace[0].ExceptionMsg)
}

func TestUnsupportedSyntaxUsesErrorPrefix(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "def g():\n    yield 1\n", Config{})
	require.Len(t, trace, 1)
	assert.Equal(t, model.UncaughtException, trace[0].Event)
	assert.Equal(t, 2, trace[0].Line)
	assert.Equal(t, "Error: unsupported syntax: yield", trace[0].ExceptionMsg)
}

func TestUnknownFailure(t *testing.T) {
	t.Parallel()

	s := New("", Config{Logger: zerolog.Nop()})
	s.Fail(context.DeadlineExceeded)
	trace := s.Finish()
	require.Len(t, trace, 1)
	assert.Equal(t, model.Record{Event: model.UncaughtException, ExceptionMsg: "Unknown error"}, trace[0])
	assert.Equal(t, Uncaught, s.State())
}

func TestRegressionModeHidesIDs(t *testing.T) {
	t.Parallel()

	trace := traceProgram(t, "xs = [1, 2]\n", Config{StableIDs: false})
	last := trace[len(trace)-1]
	assert.Equal(t, []any{encode.TagList, uint64(0), int64(1), int64(2)}, last.Globals["xs"])
}

func TestTrim(t *testing.T) {
	t.Parallel()

	line := model.Record{Event: model.StepLine, FuncName: model.TopLevelName}
	exc := model.Record{Event: model.Exception, FuncName: model.TopLevelName}
	ret := model.Record{Event: model.Return, FuncName: model.TopLevelName}
	inner := model.Record{Event: model.Return, FuncName: "f"}

	tests := []struct {
		name string
		in   model.Trace
		want model.Trace
	}{
		{"empty", nil, model.Trace{}},
		{"after top return", model.Trace{line, ret, line, line}, model.Trace{line, ret}},
		{"exception then return", model.Trace{line, exc, ret}, model.Trace{line, exc}},
		{"inner return kept", model.Trace{line, exc, inner}, model.Trace{line, exc, inner}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Trim(tt.in))
		})
	}
}

// fakeInspector lets the stepper run on synthetic events.
type fakeInspector struct{ ids map[any]uint64 }

func (f *fakeInspector) ID(v interp.Value) uint64 {
	if id, ok := f.ids[v]; ok {
		return id
	}
	f.ids[v] = uint64(len(f.ids) + 1)
	return f.ids[v]
}

func (f *fakeInspector) Repr(v interp.Value) (string, error) { return fmt.Sprint(v), nil }

func (f *fakeInspector) Str(v interp.Value) (string, error) { return fmt.Sprint(v), nil }

func (f *fakeInspector) ExceptionMessage(exc *interp.Exception) string { return exc.Message(nil) }

func TestSyntheticEventsRespectBudget(t *testing.T) {
	t.Parallel()

	s := New("a\nb\nc\nd\ne", Config{MaxSteps: 3})
	s.Bind(&fakeInspector{ids: map[any]uint64{}}, func() string { return "" })

	top := &interp.Frame{ID: 1, Name: interp.TopLevelName, Locals: interp.NewNamespace()}
	var errs []error
	for line := 1; line <= 5; line++ {
		top.Line = line
		errs = append(errs, s.Trace(interp.Event{Kind: interp.EventLine, Stack: []*interp.Frame{top}}))
	}
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], interp.ErrStopped)
	assert.ErrorIs(t, errs[3], interp.ErrStopped)
	assert.Equal(t, LimitReached, s.State())

	trace := s.Finish()
	require.Len(t, trace, 4)
	assert.Equal(t, "(stopped after 3 steps to prevent possible infinite loop)", trace[3].ExceptionMsg)

	s.Fail(interp.ErrStopped)
	assert.Len(t, s.Finish(), 4)
}

func TestSyntheticCallTracksCallerSite(t *testing.T) {
	t.Parallel()

	s := New("r = g(2)", Config{})
	s.Bind(&fakeInspector{ids: map[any]uint64{}}, func() string { return "" })

	top := &interp.Frame{ID: 1, Name: interp.TopLevelName, Line: 1, Locals: interp.NewNamespace()}
	top.Site = ast.Pos{Line: 1, Col: 4, EndLine: 1, EndCol: 8}
	callee := &interp.Frame{ID: 2, Name: "g", FirstLine: 1, Line: 1, Locals: interp.NewNamespace()}
	stack := []*interp.Frame{top, callee}

	require.NoError(t, s.Trace(interp.Event{Kind: interp.EventCall, Stack: stack}))
	assert.Zero(t, s.Steps(), "call events produce no record")
	require.NoError(t, s.Trace(interp.Event{Kind: interp.EventReturn, Stack: stack, Value: int64(4)}))

	trace := s.Finish()
	require.Len(t, trace, 1)
	require.NotNil(t, trace[0].CallerInfo)
	assert.Equal(t, "r = 4", trace[0].CallerInfo.Code)
	assert.Equal(t, int64(4), trace[0].StackLocals[0].Locals["__return__"])
}
