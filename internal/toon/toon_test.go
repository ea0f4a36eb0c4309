package toon

import (
	"strings"
	"testing"

	"github.com/phobologic/pytutor/internal/encode"
	"github.com/phobologic/pytutor/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing newline", "hi\n", `"hi\n"`},
		{"tab", "a\tb", `"a\tb"`},
		{"true keyword", "true", `"true"`},
		{"None is plain", "None", "None"},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "ValueError: bad", `"ValueError: bad"`},
		{"quote", `a"b`, `"a\"b"`},
		{"list repr", "[1, 2]", `"[1, 2]"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"module", "<module>", "<module>"},
		{"lambda frame", "lambda on line 3", "lambda on line 3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	out := "hi\n"
	trace := model.Trace{
		{
			Event:        model.StepLine,
			Line:         3,
			FuncName:     model.TopLevelName,
			VisitedLines: []int{1},
			Globals:      map[string]any{"f": []any{encode.TagFunction, "f(n)", nil}},
			StackLocals:  []model.FrameLocals{},
			Stdout:       new(string),
		},
		{
			Event:        model.Return,
			Line:         2,
			FuncName:     "f",
			VisitedLines: []int{1, 2, 3},
			Globals:      map[string]any{"f": []any{encode.TagFunction, "f(n)", nil}},
			StackLocals: []model.FrameLocals{
				{Name: "f", Locals: map[string]any{"n": int64(5), "__return__": int64(10)}},
			},
			Stdout: &out,
			CallerInfo: &model.CallerInfo{
				CallingFrameID:    1,
				Code:              "f(5)",
				RelativePositions: [2]int{0, 2},
			},
		},
		{Event: model.InstructionLimitReached, ExceptionMsg: "(stopped after 2 steps to prevent possible infinite loop)"},
	}

	got := strings.Split(Encode("demo.py", trace), "\n")
	want := []string{
		"program: demo.py",
		"steps[3]{step,event,func,line,depth,exception,stdout}:",
		`  1,step_line,<module>,3,0,"",""`,
		`  2,return,f,2,1,"","hi\n"`,
		`  3,instruction_limit_reached,"","",0,(stopped after 2 steps to prevent possible infinite loop),""`,
		"bindings[4]{step,frame,name,value}:",
		`  1,"",f,<function f(n)>`,
		`  2,"",f,<function f(n)>`,
		"  2,f,__return__,10",
		"  2,f,n,5",
		"calls[1]{step,frame,code,start,end}:",
		"  2,1,f(5),0,2",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode("empty.py", nil)
	if !strings.Contains(got, "steps[0]{step,event,func,line,depth,exception,stdout}:") {
		t.Errorf("expected empty steps section, got:\n%s", got)
	}
	if strings.Contains(got, "calls[") {
		t.Errorf("calls section should be omitted, got:\n%s", got)
	}
}
