package interp

import (
	"github.com/phobologic/pytutor/internal/ast"
)

type envKind int

const (
	envModule envKind = iota
	envFunction
	envClass
	envComp
)

// Env is one lexical scope at run time.
type Env struct {
	kind    envKind
	vars    *Namespace
	scope   *ast.Scope
	parent  *Env
	globals *Namespace
}

func (in *Interp) lookup(env *Env, name string) (Value, error) {
	e := env
	for e.kind == envComp {
		if v, ok := e.vars.Get(name); ok {
			return v, nil
		}
		e = e.parent
	}
	switch e.kind {
	case envModule:
		return in.lookupGlobal(e.globals, name)
	case envClass:
		if v, ok := e.vars.Get(name); ok {
			return v, nil
		}
		return in.lookupFree(e.parent, e.globals, name)
	}
	if e.scope.Globals[name] {
		return in.lookupGlobal(e.globals, name)
	}
	if e.scope.Locals[name] {
		if v, ok := e.vars.Get(name); ok {
			return v, nil
		}
		return nil, NewError(UnboundLocalErrorClass, "cannot access local variable '%s' where it is not associated with a value", name)
	}
	return in.lookupFree(e.parent, e.globals, name)
}

// lookupFree resolves a name through enclosing function scopes. Class
// bodies are not visible from nested scopes.
func (in *Interp) lookupFree(e *Env, globals *Namespace, name string) (Value, error) {
	for ; e != nil && e.kind != envModule; e = e.parent {
		if e.kind == envClass {
			continue
		}
		if v, ok := e.vars.Get(name); ok {
			return v, nil
		}
		if e.kind == envFunction && e.scope.Locals[name] {
			return nil, NewError(NameErrorClass, "cannot access free variable '%s' where it is not associated with a value in enclosing scope", name)
		}
	}
	return in.lookupGlobal(globals, name)
}

func (in *Interp) lookupGlobal(globals *Namespace, name string) (Value, error) {
	if v, ok := globals.Get(name); ok {
		return v, nil
	}
	if v, ok := in.builtins.Get(name); ok {
		return v, nil
	}
	return nil, NewError(NameErrorClass, "name '%s' is not defined", name)
}

// owner returns the namespace a plain assignment to name writes to.
func (in *Interp) owner(env *Env, name string) *Namespace {
	switch env.kind {
	case envModule:
		return env.globals
	case envClass, envComp:
		return env.vars
	}
	if env.scope.Globals[name] {
		return env.globals
	}
	if env.scope.Nonlocals[name] {
		for e := env.parent; e != nil && e.kind != envModule; e = e.parent {
			if e.kind == envFunction && (e.scope.Locals[name] || e.vars.Has(name)) {
				return e.vars
			}
		}
	}
	return env.vars
}

func (in *Interp) assign(env *Env, name string, v Value) {
	in.owner(env, name).Set(name, v)
}

// assignWalrus binds an assignment expression target in the nearest
// scope that is not a comprehension.
func (in *Interp) assignWalrus(env *Env, name string, v Value) {
	for env.kind == envComp {
		env = env.parent
	}
	in.assign(env, name, v)
}

func (in *Interp) unbind(env *Env, name string) error {
	if !in.owner(env, name).Delete(name) {
		return NewError(NameErrorClass, "name '%s' is not defined", name)
	}
	return nil
}
