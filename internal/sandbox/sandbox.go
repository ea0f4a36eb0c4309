// Package sandbox runs a submitted program under the stepper with a
// restricted set of builtins and captured output.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/phobologic/pytutor/internal/interp"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/parse"
	"github.com/phobologic/pytutor/internal/stepper"
)

// allowed names every builtin a program may see. Exception classes are
// always visible. Anything reaching processes, files, the interpreter
// itself or the caller's input is absent by omission.
var allowed = map[string]bool{
	"abs": true, "all": true, "any": true, "bin": true, "bool": true,
	"callable": true, "chr": true, "delattr": true, "dict": true,
	"divmod": true, "enumerate": true, "filter": true, "float": true,
	"format": true, "getattr": true, "hasattr": true, "hash": true,
	"hex": true, "id": true, "int": true, "isinstance": true,
	"issubclass": true, "iter": true, "len": true, "list": true,
	"map": true, "max": true, "min": true, "next": true, "object": true,
	"oct": true, "ord": true, "pow": true, "print": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true,
	"setattr": true, "sorted": true, "str": true, "sum": true,
	"super": true, "tuple": true, "type": true, "zip": true,
	"NotImplemented": true,
}

// Allowed reports whether name is a builtin programs may use.
func Allowed(name string) bool { return allowed[name] }

// Builtins returns the namespace programs run against.
func Builtins() map[string]interp.Value {
	out := map[string]interp.Value{}
	for name, v := range interp.Builtins() {
		if allowed[name] {
			out[name] = v
			continue
		}
		if c, ok := v.(*interp.Class); ok && c.IsSubclass(interp.BaseExceptionClass) {
			out[name] = v
		}
	}
	return out
}

// Config controls a run.
type Config struct {
	MaxSteps  int
	StableIDs bool
	MaxDepth  int
	Logger    zerolog.Logger
}

// Run executes source and returns its trace. It never fails: syntax
// errors, program failures, the step budget and internal faults all end
// up as records.
func Run(ctx context.Context, source string, cfg Config) (trace model.Trace) {
	s := stepper.New(source, stepper.Config{
		MaxSteps:  cfg.MaxSteps,
		StableIDs: cfg.StableIDs,
		Logger:    cfg.Logger,
	})
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Error().Interface("panic", r).Msg("tracer crashed")
			s.Fail(fmt.Errorf("internal error: %v", r))
			trace = s.Finish()
		}
	}()

	prog, err := parse.Parse(ctx, source)
	if err != nil {
		cfg.Logger.Debug().Err(err).Msg("program did not parse")
		s.Fail(err)
		return s.Finish()
	}

	in := interp.New(interp.Options{
		Tracer:   s,
		Stdout:   io.Discard,
		Builtins: Builtins(),
		MaxDepth: cfg.MaxDepth,
		Logger:   cfg.Logger,
	})
	var out bytes.Buffer
	restore := in.SetOutput(&out)
	defer restore()
	s.Bind(in, out.String)

	err = in.Run(ctx, prog.Module)
	s.Fail(err)
	trace = s.Finish()
	cfg.Logger.Debug().
		Int("records", len(trace)).
		Str("state", s.State().String()).
		Msg("run finished")
	return trace
}
