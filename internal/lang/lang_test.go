package lang

import (
	"context"
	"testing"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".py", "python"},
		{".PY", "python"},
		{".go", ""},
		{".rb", ""},
		{"", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	py, ok := Languages["python"]
	if !ok {
		t.Fatal("python language not registered")
	}
	if py.GetLanguage() == nil {
		t.Error("python language is nil")
	}
	if len(Languages) != 1 {
		t.Errorf("expected only python to be registered, got %d languages", len(Languages))
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	p := Python.NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
}

func TestUnsupportedQuery(t *testing.T) {
	t.Parallel()

	q, err := Python.UnsupportedQuery()
	if err != nil {
		t.Fatalf("UnsupportedQuery: %v", err)
	}
	if q == nil {
		t.Fatal("query is nil")
	}
}

func TestFirstErrorNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  string
		wantErr bool
		row     uint32
	}{
		{"clean", "x = 1\ny = x + 1\n", false, 0},
		{"broken second line", "x = 1\ny = = 2\n", true, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tree, err := Python.NewParser().ParseCtx(context.Background(), nil, []byte(tt.source))
			if err != nil {
				t.Fatalf("ParseCtx: %v", err)
			}
			defer tree.Close()

			n := FirstErrorNode(tree.RootNode())
			if !tt.wantErr {
				if n != nil {
					t.Fatalf("unexpected error node %s", n.Type())
				}
				return
			}
			if n == nil {
				t.Fatal("expected an error node")
			}
			if n.StartPoint().Row != tt.row {
				t.Errorf("error row = %d, want %d", n.StartPoint().Row, tt.row)
			}
		})
	}
}
