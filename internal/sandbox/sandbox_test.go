package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/model"
)

func run(t *testing.T, src string) model.Trace {
	t.Helper()
	return Run(context.Background(), src, Config{StableIDs: true, Logger: zerolog.Nop()})
}

func last(trace model.Trace) model.Record { return trace[len(trace)-1] }

func TestBuiltinsAllowList(t *testing.T) {
	t.Parallel()

	b := Builtins()
	for _, name := range []string{"print", "len", "range", "ValueError", "Exception", "KeyError"} {
		assert.Contains(t, b, name)
	}
	for _, name := range []string{"open", "eval", "exec", "compile", "__import__", "input", "globals", "locals", "vars", "dir", "exit"} {
		assert.NotContains(t, b, name)
		assert.False(t, Allowed(name))
	}
}

func TestDeniedCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"open", "f = open('x')\n", "NameError: name 'open' is not defined"},
		{"eval", "eval('1')\n", "NameError: name 'eval' is not defined"},
		{"input", "s = input()\n", "NameError: name 'input' is not defined"},
		{"globals", "g = globals()\n", "NameError: name 'globals' is not defined"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := last(run(t, tt.src))
			assert.Equal(t, model.UncaughtException, r.Event)
			assert.Equal(t, tt.msg, r.ExceptionMsg)
		})
	}
}

func TestOutputIsCaptured(t *testing.T) {
	t.Parallel()

	trace := run(t, "print('a')\nprint('b', 2)\n")
	require.Len(t, trace, 3)
	assert.Equal(t, "", *trace[0].Stdout)
	assert.Equal(t, "a\n", *trace[1].Stdout)
	assert.Equal(t, "a\nb 2\n", *trace[2].Stdout)
}

func TestRunsAreIndependent(t *testing.T) {
	t.Parallel()

	first := run(t, "x = [1]\n")
	second := run(t, "y = 2\n")
	assert.Contains(t, last(first).Globals, "x")
	assert.NotContains(t, last(second).Globals, "x")
	assert.Equal(t, "", *last(second).Stdout)
}

func TestSyntaxError(t *testing.T) {
	t.Parallel()

	trace := run(t, "x = 1\ny = = 2\n")
	require.Len(t, trace, 1)
	assert.Equal(t, model.UncaughtException, trace[0].Event)
	assert.Equal(t, 2, trace[0].Line)
	assert.Equal(t, "Error: invalid syntax", trace[0].ExceptionMsg)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trace := Run(ctx, "while True:\n    pass\n", Config{Logger: zerolog.Nop()})
	require.NotEmpty(t, trace)
	r := last(trace)
	assert.Equal(t, model.UncaughtException, r.Event)
	assert.Equal(t, "Unknown error", r.ExceptionMsg)
}

func TestStepBudget(t *testing.T) {
	t.Parallel()

	trace := Run(context.Background(), "i = 0\nwhile True:\n    i += 1\n", Config{MaxSteps: 10, Logger: zerolog.Nop()})
	require.Len(t, trace, 11)
	assert.Equal(t, model.InstructionLimitReached, last(trace).Event)
}

func TestVisitedLinesGrow(t *testing.T) {
	t.Parallel()

	src := "total = 0\nfor i in range(3):\n    total += i\nprint(total)\n"
	trace := run(t, src)
	prev := 0
	for _, r := range trace {
		assert.GreaterOrEqual(t, len(r.VisitedLines), prev)
		prev = len(r.VisitedLines)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, last(trace).VisitedLines)
}

// The JSON shape of each record kind carries exactly the keys the front
// end reads.
func TestRecordKeys(t *testing.T) {
	t.Parallel()

	keysOf := func(r model.Record) []string {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		return keys
	}

	trace := run(t, "def f(n):\n    return n\nf(1)\n")
	assert.ElementsMatch(t,
		[]string{"event", "line", "func_name", "visited_lines", "globals", "stack_locals", "stdout"},
		keysOf(trace[0]))
	assert.ElementsMatch(t,
		[]string{"event", "line", "func_name", "visited_lines", "globals", "stack_locals", "stdout", "caller_info"},
		keysOf(trace[2]))

	limit := Run(context.Background(), "while True:\n    pass\n", Config{MaxSteps: 1, Logger: zerolog.Nop()})
	assert.ElementsMatch(t, []string{"event", "exception_msg"}, keysOf(last(limit)))

	bad := run(t, "1 / 0\n")
	assert.ElementsMatch(t, []string{"event", "line", "offset", "exception_msg"}, keysOf(last(bad)))
}

func TestTraceRoundTrip(t *testing.T) {
	t.Parallel()

	trace := run(t, "class P:\n    def __init__(self):\n        self.v = [1, 2]\np = P()\n")
	data, err := json.Marshal(trace)
	require.NoError(t, err)

	var back model.Trace
	require.NoError(t, json.Unmarshal(data, &back))
	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}
