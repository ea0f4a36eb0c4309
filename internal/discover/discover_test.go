package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func paths(progs []Program) []string {
	out := make([]string, len(progs))
	for i, p := range progs {
		out[i] = p.Path
	}
	return out
}

func TestProgramsFindsPythonFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.py", "print('hello')")
	writeFile(t, dir, "lessons/loops.py", "for i in range(3): pass")
	writeFile(t, dir, "readme.txt", "hello")
	writeFile(t, dir, ".hidden.py", "secret")
	writeFile(t, dir, "main.trace.json", "[]")

	progs, err := Programs(dir)
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if len(progs) != 2 {
		t.Fatalf("expected 2 programs, got %v", paths(progs))
	}
	if progs[0].Path != filepath.Join("lessons", "loops.py") {
		t.Errorf("program 0: got %q", progs[0].Path)
	}
	if progs[1].Path != "main.py" {
		t.Errorf("program 1: got %q", progs[1].Path)
	}
	if progs[1].Size != int64(len("print('hello')")) {
		t.Errorf("main.py size = %d", progs[1].Size)
	}
}

func TestProgramsSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "node_modules/pkg.py", "pass")
	writeFile(t, dir, "__pycache__/cached.py", "pass")
	writeFile(t, dir, ".hidden/secret.py", "pass")
	writeFile(t, dir, "venv/lib.py", "pass")

	progs, err := Programs(dir)
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if got := paths(progs); len(got) != 1 || got[0] != "main.py" {
		t.Fatalf("expected [main.py], got %v", got)
	}
}

func TestProgramsHonorGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "scratch/\nwip_*.py\n")
	writeFile(t, dir, "keep.py", "pass")
	writeFile(t, dir, "wip_draft.py", "pass")
	writeFile(t, dir, "scratch/tmp.py", "pass")

	progs, err := Programs(dir)
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if got := paths(progs); len(got) != 1 || got[0] != "keep.py" {
		t.Fatalf("expected [keep.py], got %v", got)
	}
}

func TestProgramsSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.py", "pass")

	err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	progs, err := Programs(dir)
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if got := paths(progs); len(got) != 1 || got[0] != "real.py" {
		t.Fatalf("expected [real.py], got %v", got)
	}
}

func TestTracePath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want string
	}{
		{"main.py", "main.trace.json"},
		{"lessons/loops.py", "lessons/loops.trace.json"},
		{"noext", "noext.trace.json"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			if got := TracePath(tc.path); got != tc.want {
				t.Errorf("TracePath(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
