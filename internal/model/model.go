// Package model defines the execution trace produced by pytutor.
package model

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies what happened at a traced step.
type EventKind string

const (
	StepLine                EventKind = "step_line"
	Return                  EventKind = "return"
	Exception               EventKind = "exception"
	UncaughtException       EventKind = "uncaught_exception"
	InstructionLimitReached EventKind = "instruction_limit_reached"
)

// TopLevelName is the func_name reported for the whole-program scope.
const TopLevelName = "<module>"

// Record is one immutable entry of a Trace.
//
// Fields use omitzero so that a record only carries the keys that apply to its
// kind: an empty but non-nil Globals map is still emitted for step records,
// while limit and uncaught records never mention it.
type Record struct {
	Event        EventKind      `json:"event" msgpack:"event"`
	Line         int            `json:"line,omitzero" msgpack:"line"`
	Offset       int            `json:"offset,omitzero" msgpack:"offset"`
	FuncName     string         `json:"func_name,omitzero" msgpack:"func_name"`
	VisitedLines []int          `json:"visited_lines,omitzero" msgpack:"visited_lines"`
	Globals      map[string]any `json:"globals,omitzero" msgpack:"globals"`
	StackLocals  []FrameLocals  `json:"stack_locals,omitzero" msgpack:"stack_locals"`
	Stdout       *string        `json:"stdout,omitzero" msgpack:"stdout"`
	CallerInfo   *CallerInfo    `json:"caller_info,omitzero" msgpack:"caller_info"`
	ExceptionMsg string         `json:"exception_msg,omitzero" msgpack:"exception_msg"`
}

// IsTopLevelReturn reports whether r is the return of the whole program.
func (r *Record) IsTopLevelReturn() bool {
	return r.Event == Return && r.FuncName == TopLevelName
}

// FrameLocals pairs a displayed frame name with its encoded local bindings.
// It serializes as a two element JSON array, [name, locals].
type FrameLocals struct {
	Name   string         `msgpack:"name"`
	Locals map[string]any `msgpack:"locals"`
}

// MarshalJSON implements json.Marshaler.
func (f FrameLocals) MarshalJSON() ([]byte, error) {
	locals := f.Locals
	if locals == nil {
		locals = map[string]any{}
	}
	return json.Marshal([]any{f.Name, locals})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FrameLocals) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("stack_locals entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &f.Name); err != nil {
		return fmt.Errorf("stack_locals name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &f.Locals); err != nil {
		return fmt.Errorf("stack_locals locals: %w", err)
	}
	return nil
}

// CallerInfo is a snapshot of the pending call-site record of the active
// caller: the source text of the call expression's lines with every return
// value spliced in so far.
type CallerInfo struct {
	CallingFrameID    uint64    `json:"calling_frame_id" msgpack:"calling_frame_id"`
	Code              string    `json:"code" msgpack:"code"`
	TruePositions     [2][2]int `json:"true_positions" msgpack:"true_positions"`
	RelativePositions [2]int    `json:"relative_positions" msgpack:"relative_positions"`
}

// Trace is the ordered sequence of records of one run.
type Trace []Record

// HadError reports whether the run ended on a failure, the way the query log
// classifies submissions.
func (t Trace) HadError() bool {
	if len(t) == 0 {
		return false
	}
	switch t[len(t)-1].Event {
	case Exception, UncaughtException:
		return true
	}
	return false
}
