package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/view"
)

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runWithInput runs the CLI with stdin connected to input.
func runWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeTrace(t *testing.T, out string) model.Trace {
	t.Helper()
	var trace model.Trace
	if err := json.Unmarshal([]byte(out), &trace); err != nil {
		t.Fatalf("decoding trace: %v\n%s", err, out)
	}
	return trace
}

const sampleProgram = `def f(n):
    return n * 2
y = f(5)
print(y)
`

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "pytutor version dev") {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestTraceFile(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "prog.py", sampleProgram)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"trace", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	trace := decodeTrace(t, stdout.String())
	last := trace[len(trace)-1]
	if !last.IsTopLevelReturn() {
		t.Errorf("last record = %+v, want top-level return", last)
	}
	if last.Stdout == nil || *last.Stdout != "10\n" {
		t.Errorf("stdout = %v, want 10", last.Stdout)
	}
	var spliced bool
	for _, r := range trace {
		if r.CallerInfo != nil && r.CallerInfo.Code == "y = 10" {
			spliced = true
		}
	}
	if !spliced {
		t.Error("no record shows the returned value spliced into the call")
	}
}

func TestTraceStdin(t *testing.T) {
	t.Parallel()

	out, stderr, err := runWithInput(t, "x = 1\ny = x + 1", "trace")
	if err != nil {
		t.Fatalf("trace: %v\nstderr: %s", err, stderr)
	}
	if got := len(decodeTrace(t, out)); got != 3 {
		t.Errorf("got %d records, want 3", got)
	}
}

func TestTraceFlagsOverrideConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "pytutor.toml", "max_steps = 2\n")
	prog := writeTestFile(t, dir, "loop.py", "while True:\n    pass\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"trace", "--config", cfgPath, prog}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(decodeTrace(t, stdout.String())); got != 3 {
		t.Errorf("config budget: got %d records, want 3", got)
	}

	stdout.Reset()
	if err := run([]string{"trace", "--config", cfgPath, "--max-steps", "4", prog}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	trace := decodeTrace(t, stdout.String())
	if len(trace) != 5 {
		t.Fatalf("flag budget: got %d records, want 5", len(trace))
	}
	if trace[4].Event != model.InstructionLimitReached {
		t.Errorf("last event = %s", trace[4].Event)
	}
}

func TestTraceNoIDs(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "list.py", "xs = [1]\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"trace", "--no-ids", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), `"xs":["LIST",0,1]`) {
		t.Errorf("expected zero id, got %s", stdout.String())
	}
}

func TestTraceToon(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "prog.py", sampleProgram)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"trace", "--format", "toon", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "program: prog.py\nsteps[") {
		t.Errorf("unexpected toon output:\n%s", out)
	}
	if !strings.Contains(out, "calls[") {
		t.Error("missing calls table")
	}
}

func TestTraceErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeTestFile(t, dir, "prog.py", "pass\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"trace", "--format", "xml", path}, "unknown format"},
		{"missing file", []string{"trace", filepath.Join(dir, "nope.py")}, "no such file"},
		{"bad budget", []string{"trace", "--max-steps", "-1", path}, "max_steps must be positive"},
		{"bad level", []string{"trace", "--log-level", "loud", path}, "log_level"},
		{"too many args", []string{"trace", path, path}, "accepts at most 1 arg"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTraceCacheDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeTestFile(t, dir, "prog.py", sampleProgram)
	cacheDir := filepath.Join(dir, "cache")

	var outputs []string
	for k := 0; k < 2; k++ {
		var stdout, stderr bytes.Buffer
		if err := run([]string{"trace", "--cache-dir", cacheDir, path}, &stdout, &stderr); err != nil {
			t.Fatalf("run: %v", err)
		}
		outputs = append(outputs, stdout.String())
	}
	if outputs[0] != outputs[1] {
		t.Errorf("cached trace differs:\n%s\n%s", outputs[0], outputs[1])
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 cache entry, got %d", len(entries))
	}
}

func TestShow(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "prog.py", sampleProgram)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"show", "--color", "off", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Step 1/", "Global frame", "Call: y = 10", "Output:\n  10"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("color escape codes with --color off")
	}
}

func TestShowBadColor(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	err := run([]string{"show", "--color", "maybe"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "unknown color mode") {
		t.Errorf("err = %v", err)
	}
}

func TestStepScripted(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, t.TempDir(), "prog.py", "a = 1\nb = 2\nc = 3\n")

	out, _, err := runWithInput(t, "n\ng 4\nn\np\nbogus\nq\n", "step", "--color", "off", path)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	for _, want := range []string{"Step 1/4", "Step 2/4", "Step 4/4", "at the last step", "Step 3/4", `unknown command "bogus"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestStepRejectsStdinProgram(t *testing.T) {
	t.Parallel()
	_, _, err := runWithInput(t, "x = 1\n", "step", "-")
	if err == nil || !strings.Contains(err.Error(), "pass the program as a file") {
		t.Errorf("err = %v", err)
	}
}

func TestSessionCommands(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	trace := model.Trace{
		{Event: model.StepLine, Line: 1, FuncName: model.TopLevelName},
		{Event: model.StepLine, Line: 2, FuncName: model.TopLevelName},
		{Event: model.Return, Line: 2, FuncName: model.TopLevelName},
	}
	s := &session{trace: trace, r: view.New(&out, "a\nb\n", false), out: &out}

	steps := []struct {
		cmd  string
		pos  int
		quit bool
	}{
		{"", 1, false},
		{"l", 2, false},
		{"n", 2, false},
		{"f", 0, false},
		{"p", 0, false},
		{"g 3", 2, false},
		{"g 9", 2, false},
		{"g", 2, false},
		{"h", 2, false},
		{"quit", 2, true},
	}
	for _, st := range steps {
		if quit := s.exec(st.cmd); quit != st.quit {
			t.Errorf("exec(%q) quit = %v, want %v", st.cmd, quit, st.quit)
		}
		if s.pos != st.pos {
			t.Errorf("after %q pos = %d, want %d", st.cmd, s.pos, st.pos)
		}
	}
	for _, want := range []string{"at the first step", "step must be between 1 and 3", "usage: g N", "commands:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestBatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.py", "print('hi')\n")
	writeTestFile(t, dir, "lessons/lists.py", "xs = [1, 2]\nxs.append(3)\n")
	writeTestFile(t, dir, "notes.txt", "not a program")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"batch", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("batch: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "wrote 2 traces") {
		t.Errorf("stdout: %q", stdout.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "lessons", "lists.trace.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"LIST",`+"\n"+`        0,`) {
		t.Errorf("batch traces should carry zero ids:\n%s", data)
	}

	stdout.Reset()
	if err := run([]string{"batch", "--check", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("check after write: %v", err)
	}
	if !strings.Contains(stdout.String(), "2 traces match") {
		t.Errorf("stdout: %q", stdout.String())
	}

	writeTestFile(t, dir, "hello.py", "print('bye')\n")
	stderr.Reset()
	err = run([]string{"batch", "--check", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 traces differ") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(stderr.String(), "hello.py: trace differs") {
		t.Errorf("stderr: %q", stderr.String())
	}
}

func TestBatchIDs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "lists.py", "xs = [1, 2]\n")
	cfgPath := writeTestFile(t, t.TempDir(), "pytutor.toml", "stable_ids = true\n")
	zeroID := `"LIST",` + "\n" + `        0,`

	var stdout, stderr bytes.Buffer
	if err := run([]string{"batch", "--config", cfgPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("batch: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "lists.trace.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), zeroID) {
		t.Errorf("stable_ids in the config should not enable ids:\n%s", data)
	}

	if err := run([]string{"batch", "--ids", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("batch --ids: %v", err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "lists.trace.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), zeroID) {
		t.Errorf("--ids should report object ids:\n%s", data)
	}

	err = run([]string{"batch", "--ids", "--no-ids", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "cannot be used together") {
		t.Errorf("err = %v", err)
	}
}

func TestBatchSkipsLargeFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "small.py", "x = 1\n")
	writeTestFile(t, dir, "big.py", strings.Repeat("x = 1\n", 100))

	var stdout, stderr bytes.Buffer
	if err := run([]string{"batch", "--max-file-size", "50", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(stderr.String(), "big.py: skipped") {
		t.Errorf("stderr: %q", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "big.trace.json")); !os.IsNotExist(err) {
		t.Error("big.py should not be traced")
	}
}

func TestBatchNoPrograms(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "readme.txt", "nothing here")

	var stdout, stderr bytes.Buffer
	err := run([]string{"batch", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "no programs found") {
		t.Errorf("err = %v", err)
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	err := run([]string{"serve", "--max-depth", "0"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "max_depth must be positive") {
		t.Errorf("err = %v", err)
	}
}
