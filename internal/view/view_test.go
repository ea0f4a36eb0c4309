package view

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/sandbox"
)

func trace(t *testing.T, src string) model.Trace {
	t.Helper()
	tr := sandbox.Run(context.Background(), src, sandbox.Config{StableIDs: true, Logger: zerolog.Nop()})
	require.NotEmpty(t, tr)
	return tr
}

func TestStepShowsSourceAndFrames(t *testing.T) {
	t.Parallel()

	src := "def f(n):\n    return n*2\nf(5)"
	tr := trace(t, src)
	var buf bytes.Buffer
	New(&buf, src, false).Step(tr, 3)
	out := buf.String()

	assert.Contains(t, out, "Step 4/5  return  f:2")
	assert.Contains(t, out, "→ 2      return n*2")
	assert.Contains(t, out, "Call: 10")
	assert.Contains(t, out, "Global frame\n  f = <function f(n)>")
	assert.Contains(t, out, "f\n  n          = 5\n  __return__ = 10\n")
	assert.NotContains(t, out, "\x1b[")
}

func TestStepShowsOutput(t *testing.T) {
	t.Parallel()

	src := "print('hello')\n"
	tr := trace(t, src)
	var buf bytes.Buffer
	New(&buf, src, false).Step(tr, len(tr)-1)
	assert.Contains(t, buf.String(), "Output:\n  hello\n")
}

func TestStepShowsUncaughtCaret(t *testing.T) {
	t.Parallel()

	src := "x = 1\ny = x / 0\n"
	tr := trace(t, src)
	var buf bytes.Buffer
	New(&buf, src, false).Step(tr, len(tr)-1)
	out := buf.String()

	assert.Contains(t, out, "uncaught_exception")
	assert.Contains(t, out, "ZeroDivisionError: division by zero")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "→ 2") {
			require.Less(t, i+1, len(lines))
			assert.True(t, strings.HasSuffix(lines[i+1], "^"))
		}
	}
}

func TestLimitRecord(t *testing.T) {
	t.Parallel()

	tr := model.Trace{{Event: model.InstructionLimitReached, ExceptionMsg: "(stopped after 1 steps to prevent possible infinite loop)"}}
	var buf bytes.Buffer
	New(&buf, "", false).Step(tr, 0)
	assert.Equal(t, "Step 1/1  instruction_limit_reached\n(stopped after 1 steps to prevent possible infinite loop)\n", buf.String())
}

func TestColor(t *testing.T) {
	t.Parallel()

	src := "x = 1\n"
	tr := trace(t, src)
	var buf bytes.Buffer
	New(&buf, src, true).All(tr)
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestAllSeparatesSteps(t *testing.T) {
	t.Parallel()

	src := "a = 1\nb = 2\n"
	tr := trace(t, src)
	var buf bytes.Buffer
	New(&buf, src, false).All(tr)
	assert.Equal(t, len(tr), strings.Count(buf.String(), "Step "))
	assert.Contains(t, buf.String(), "\n\nStep 2/3")
}
