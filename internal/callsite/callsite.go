// Package callsite tracks the source span of every pending call so that a
// returned value can be spliced into the text of the call expression that
// produced it.
//
// Records form a stack keyed by calling frame. Several calls made by the
// same frame before it moves to a new line share one record; each splice
// leaves a shift behind so later spans in the same text still line up.
package callsite

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/phobologic/pytutor/internal/ast"
	"github.com/phobologic/pytutor/internal/model"
)

// Record is the bookkeeping for one pending call.
type Record struct {
	CallingFrame uint64

	// Code is the source text of the lines the call expression spans, with
	// every return value spliced in so far.
	Code string

	// True is the call expression's raw position: start line and column,
	// end line and column. Columns are byte offsets.
	True [2][2]int

	// Rel is the call expression's span within Code.
	Rel [2]int

	firstLine int
	lastLine  int

	// shifts are the corrections left by splices into Code. They belong
	// to this record's text only.
	shifts []shift
}

type shift struct {
	anchor int
	delta  int
}

// Tracker is the span bookkeeping of one run.
type Tracker struct {
	lines   []string
	records []*Record
	log     zerolog.Logger
}

// New returns a tracker for the program text source.
func New(source string, log zerolog.Logger) *Tracker {
	return &Tracker{lines: strings.Split(source, "\n"), log: log}
}

// Top returns the most recent pending record, or nil.
func (t *Tracker) Top() *Record {
	if len(t.records) == 0 {
		return nil
	}
	return t.records[len(t.records)-1]
}

// Depth returns the number of pending records.
func (t *Tracker) Depth() int { return len(t.records) }

// CallerInfo returns a copy of the top record in trace form, or nil.
func (t *Tracker) CallerInfo() *model.CallerInfo {
	r := t.Top()
	if r == nil {
		return nil
	}
	return &model.CallerInfo{
		CallingFrameID:    r.CallingFrame,
		Code:              r.Code,
		TruePositions:     r.True,
		RelativePositions: r.Rel,
	}
}

// Call records that frame caller started a call whose expression spans
// site.
func (t *Tracker) Call(caller uint64, site ast.Pos) {
	if !site.Valid() || site.Line > len(t.lines) || site.EndLine > len(t.lines) || site.EndLine < site.Line {
		t.log.Debug().Uint64("frame", caller).Msg("call site unavailable")
		return
	}
	top := t.Top()
	if top == nil || top.CallingFrame != caller {
		t.push(caller, site)
		return
	}
	if site.Line < top.firstLine || site.EndLine > top.lastLine {
		// The call reaches outside the text the record holds, so its
		// offsets cannot be expressed in it.
		t.pop()
		t.push(caller, site)
		return
	}

	start := t.offset(top.firstLine, site.Line, site.Col)
	end := t.offset(top.firstLine, site.EndLine, site.EndCol)
	for _, s := range top.shifts {
		if start > s.anchor {
			start -= s.delta
		}
		if end > s.anchor {
			end -= s.delta
		}
	}
	top.True = trueSpan(site)
	top.Rel = [2]int{start, end}
}

func (t *Tracker) push(caller uint64, site ast.Pos) {
	code := strings.Join(t.lines[site.Line-1:site.EndLine], "\n")
	// endPoint counts back from the end of the text. Zero means the call
	// runs to the end of its last line, so the snippet is the whole tail.
	endPoint := site.EndCol - len(t.lines[site.EndLine-1])
	end := len(code)
	if endPoint != 0 {
		end += endPoint
	}
	if site.Col > len(code) || end < site.Col || end > len(code) {
		t.log.Debug().Uint64("frame", caller).Int("line", site.Line).Msg("call site outside source")
		return
	}
	t.records = append(t.records, &Record{
		CallingFrame: caller,
		Code:         code,
		True:         trueSpan(site),
		Rel:          [2]int{site.Col, end},
		firstLine:    site.Line,
		lastLine:     site.EndLine,
	})
}

// pop discards the top record together with its shifts.
func (t *Tracker) pop() {
	t.records[len(t.records)-1] = nil
	t.records = t.records[:len(t.records)-1]
}

// offset converts a line and column into an offset within text that
// starts at line first.
func (t *Tracker) offset(first, line, col int) int {
	off := 0
	for l := first; l < line; l++ {
		off += len(t.lines[l-1]) + 1
	}
	return off + col
}

func trueSpan(site ast.Pos) [2][2]int {
	return [2][2]int{{site.Line, site.Col}, {site.EndLine, site.EndCol}}
}

// Line records a line event in frame. A line in the frame that owns the
// top record means that record's call has completed.
func (t *Tracker) Line(frame uint64) {
	if top := t.Top(); top != nil && top.CallingFrame == frame {
		t.pop()
	}
}

// Return records that a frame called by caller returned a value whose
// printed form is text. Records belonging to any other frame are stale
// and are discarded first. caller is 0 for the top-level frame.
func (t *Tracker) Return(caller uint64, text string) {
	for top := t.Top(); top != nil && top.CallingFrame != caller; top = t.Top() {
		t.pop()
	}
	top := t.Top()
	if top == nil {
		return
	}
	start, end := top.Rel[0], top.Rel[1]
	if start < 0 || end < start || end > len(top.Code) {
		t.log.Debug().Uint64("frame", caller).Ints("span", top.Rel[:]).Msg("dropping inconsistent call site")
		t.pop()
		return
	}
	top.Code = strings.Replace(top.Code, top.Code[start:end], text, 1)
	top.Rel = [2]int{start, start + len(text)}
	top.shifts = append(top.shifts, shift{anchor: end, delta: end - start - len(text)})
}
