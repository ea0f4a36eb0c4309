package interp

import (
	"fmt"
	"strings"

	"github.com/phobologic/pytutor/internal/ast"
)

// Call invokes fn with positional and keyword arguments.
func (in *Interp) Call(fn Value, args []Value, kw []Kwarg) (Value, error) {
	return in.callValue(fn, args, kw)
}

func (in *Interp) callValue(fn Value, args []Value, kw []Kwarg) (Value, error) {
	switch fn := fn.(type) {
	case *Function:
		return in.callFunction(fn, args, kw)
	case *Builtin:
		return fn.Fn(in, args, kw)
	case *BoundMethod:
		return in.callValue(fn.Fn, append([]Value{fn.Self}, args...), kw)
	case *Class:
		return in.instantiate(fn, args, kw)
	case *Instance:
		if m, _, ok := fn.Class.Lookup("__call__"); ok {
			return in.callValue(m, append([]Value{fn}, args...), kw)
		}
	}
	return nil, NewError(TypeErrorClass, "'%s' object is not callable", TypeName(fn))
}

func (in *Interp) callFunction(fn *Function, args []Value, kw []Kwarg) (Value, error) {
	if len(in.stack) >= in.maxDepth {
		return nil, NewError(RecursionErrorClass, "maximum recursion depth exceeded")
	}
	locals, err := bindArgs(fn, args, kw)
	if err != nil {
		return nil, err
	}
	env := &Env{kind: envFunction, vars: locals, scope: fn.Scope, parent: fn.Closure, globals: in.globals}
	name := fn.Name
	if fn.Lambda {
		name = "<lambda>"
	}
	f := in.newFrame(name, fn.Line, locals, env)
	f.fn = fn
	in.push(f)
	defer in.pop()

	if err := in.emit(EventCall, nil, nil); err != nil {
		return nil, err
	}
	a := &activation{in: in, f: f, env: env}
	var ret Value = None
	if fn.Lambda {
		p := fn.Expr.Position()
		if err := in.markLine(f, p.Line, p.Col); err != nil {
			return nil, err
		}
		v, err := a.eval(fn.Expr)
		if err != nil {
			return nil, in.unwind(f, err)
		}
		ret = v
	} else {
		c, err := a.execBlock(fn.Body)
		if err != nil {
			return nil, in.unwind(f, err)
		}
		if c == ctrlReturn {
			ret = a.retval
		}
	}
	if err := in.emit(EventReturn, ret, nil); err != nil {
		return nil, err
	}
	return ret, nil
}

// bindArgs maps call arguments onto fn's parameters. Locals are created
// in parameter order.
func bindArgs(fn *Function, args []Value, kw []Kwarg) (*Namespace, error) {
	name := fn.Name
	if fn.Lambda {
		name = "<lambda>"
	}
	vals := make([]Value, len(fn.Params))
	set := make([]bool, len(fn.Params))
	varArgs, kwArgs := -1, -1
	positional := 0
	for i, p := range fn.Params {
		switch p.Kind {
		case ast.ParamVarArgs:
			varArgs = i
		case ast.ParamKwArgs:
			kwArgs = i
		case ast.ParamNormal:
			positional++
		}
	}

	next := 0
	for i, p := range fn.Params {
		if p.Kind != ast.ParamNormal || next >= len(args) {
			continue
		}
		vals[i], set[i] = args[next], true
		next++
	}
	if next < len(args) {
		if varArgs < 0 {
			return nil, NewError(TypeErrorClass, "%s() takes %d positional argument%s but %d %s given",
				name, positional, plural(positional), len(args), wasWere(len(args)))
		}
	}
	if varArgs >= 0 {
		vals[varArgs], set[varArgs] = NewTuple(append([]Value(nil), args[next:]...)...), true
	}

	var extra *Dict
	if kwArgs >= 0 {
		extra = NewDict()
		vals[kwArgs], set[kwArgs] = extra, true
	}
	for _, k := range kw {
		idx := -1
		for i, p := range fn.Params {
			if p.Name == k.Name && (p.Kind == ast.ParamNormal || p.Kind == ast.ParamKeywordOnly) {
				idx = i
				break
			}
		}
		if idx < 0 {
			if extra == nil {
				return nil, NewError(TypeErrorClass, "%s() got an unexpected keyword argument '%s'", name, k.Name)
			}
			if err := extra.Set(k.Name, k.Value); err != nil {
				return nil, err
			}
			continue
		}
		if set[idx] {
			return nil, NewError(TypeErrorClass, "%s() got multiple values for argument '%s'", name, k.Name)
		}
		vals[idx], set[idx] = k.Value, true
	}

	var missingPos, missingKw []string
	for i, p := range fn.Params {
		if set[i] {
			continue
		}
		if fn.Defaults != nil && fn.Defaults[i] != nil {
			vals[i], set[i] = fn.Defaults[i], true
			continue
		}
		if p.Kind == ast.ParamKeywordOnly {
			missingKw = append(missingKw, "'"+p.Name+"'")
		} else {
			missingPos = append(missingPos, "'"+p.Name+"'")
		}
	}
	if len(missingPos) > 0 {
		return nil, NewError(TypeErrorClass, "%s() missing %d required positional argument%s: %s",
			name, len(missingPos), plural(len(missingPos)), joinNames(missingPos))
	}
	if len(missingKw) > 0 {
		return nil, NewError(TypeErrorClass, "%s() missing %d required keyword-only argument%s: %s",
			name, len(missingKw), plural(len(missingKw)), joinNames(missingKw))
	}

	locals := NewNamespace()
	for i, p := range fn.Params {
		locals.Set(p.Name, vals[i])
	}
	return locals, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}

func (in *Interp) instantiate(cls *Class, args []Value, kw []Kwarg) (Value, error) {
	if cls.builtin && cls.ctor != nil {
		return cls.ctor(in, cls, args, kw)
	}
	if cls.builtin && !cls.IsException() {
		return nil, NewError(TypeErrorClass, "cannot create '%s' instances", cls.Name)
	}
	inst := NewInstance(cls)
	if cls.IsException() {
		inst.Args = append([]Value(nil), args...)
	}
	init, owner, ok := cls.Lookup("__init__")
	if !ok || (owner == ObjectClass) {
		if len(args) > 0 || len(kw) > 0 {
			return nil, NewError(TypeErrorClass, "%s() takes no arguments", cls.Name)
		}
		return inst, nil
	}
	ret, err := in.callValue(init, append([]Value{inst}, args...), kw)
	if err != nil {
		return nil, err
	}
	if ret != None {
		return nil, NewError(TypeErrorClass, "__init__() should return None, not '%s'", TypeName(ret))
	}
	return inst, nil
}

// GetAttr implements obj.name.
func (in *Interp) GetAttr(obj Value, name string) (Value, error) {
	switch o := obj.(type) {
	case *Instance:
		if v, ok := o.Attrs.Get(name); ok {
			return v, nil
		}
		switch name {
		case "__class__":
			return o.Class, nil
		case "__dict__":
			d := NewDict()
			o.Attrs.Each(func(k string, v Value) { _ = d.Set(k, v) })
			return d, nil
		}
		if v, _, ok := o.Class.Lookup(name); ok {
			return bind(obj, v), nil
		}
		if getattr, _, ok := o.Class.Lookup("__getattr__"); ok {
			return in.callValue(getattr, []Value{obj, name}, nil)
		}
		return nil, NewError(AttributeErrorClass, "'%s' object has no attribute '%s'", o.Class.Name, name)
	case *Class:
		switch name {
		case "__name__", "__qualname__":
			return o.Name, nil
		case "__bases__":
			bases := make([]Value, len(o.Bases))
			for i, b := range o.Bases {
				bases[i] = b
			}
			return NewTuple(bases...), nil
		case "__mro__":
			mro := make([]Value, len(o.MRO))
			for i, b := range o.MRO {
				mro[i] = b
			}
			return NewTuple(mro...), nil
		}
		if v, _, ok := o.Lookup(name); ok {
			return v, nil
		}
		return nil, NewError(AttributeErrorClass, "type object '%s' has no attribute '%s'", o.Name, name)
	case *Super:
		if v, ok := TypeOf(o.Self).lookupAfter(o.Class, name); ok {
			return bind(o.Self, v), nil
		}
		return nil, NewError(AttributeErrorClass, "'super' object has no attribute '%s'", name)
	case *Function:
		switch name {
		case "__name__", "__qualname__":
			if o.Lambda {
				return "<lambda>", nil
			}
			return o.Name, nil
		}
	case *Builtin:
		if name == "__name__" {
			return o.Name, nil
		}
	}
	cls := TypeOf(obj)
	if v, _, ok := cls.Lookup(name); ok {
		return bind(obj, v), nil
	}
	if name == "__class__" {
		return cls, nil
	}
	return nil, NewError(AttributeErrorClass, "'%s' object has no attribute '%s'", cls.Name, name)
}

func bind(self, v Value) Value {
	switch v.(type) {
	case *Function, *Builtin:
		return &BoundMethod{Self: self, Fn: v}
	}
	return v
}

// SetAttr implements obj.name = v.
func (in *Interp) SetAttr(obj Value, name string, v Value) error {
	switch o := obj.(type) {
	case *Instance:
		if setattr, owner, ok := o.Class.Lookup("__setattr__"); ok && !owner.builtin {
			_, err := in.callValue(setattr, []Value{obj, name, v}, nil)
			return err
		}
		o.Attrs.Set(name, v)
		return nil
	case *Class:
		if o.builtin {
			return NewError(TypeErrorClass, "cannot set '%s' attribute of immutable type '%s'", name, o.Name)
		}
		o.Attrs.Set(name, v)
		return nil
	}
	return NewError(AttributeErrorClass, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// DelAttr implements del obj.name.
func (in *Interp) DelAttr(obj Value, name string) error {
	switch o := obj.(type) {
	case *Instance:
		if o.Attrs.Delete(name) {
			return nil
		}
		return NewError(AttributeErrorClass, "'%s' object has no attribute '%s'", o.Class.Name, name)
	case *Class:
		if !o.builtin && o.Attrs.Delete(name) {
			return nil
		}
		return NewError(AttributeErrorClass, "type object '%s' has no attribute '%s'", o.Name, name)
	}
	return NewError(AttributeErrorClass, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// dunder calls the user-defined special method name on v, reporting
// whether one exists. Builtin classes never define user dunders.
func (in *Interp) dunder(v Value, name string, args ...Value) (Value, bool, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return nil, false, nil
	}
	m, owner, ok := inst.Class.Lookup(name)
	if !ok || owner.builtin {
		return nil, false, nil
	}
	ret, err := in.callValue(m, append([]Value{v}, args...), nil)
	return ret, true, err
}

// signature renders a function's parameter list for display.
func (fn *Function) signature() string {
	parts := make([]string, 0, len(fn.Params))
	kwOnlyMarked := false
	for _, p := range fn.Params {
		switch p.Kind {
		case ast.ParamVarArgs:
			parts = append(parts, "*"+p.Name)
			kwOnlyMarked = true
		case ast.ParamKwArgs:
			parts = append(parts, "**"+p.Name)
		case ast.ParamKeywordOnly:
			if !kwOnlyMarked {
				parts = append(parts, "*")
				kwOnlyMarked = true
			}
			parts = append(parts, p.Name)
		default:
			parts = append(parts, p.Name)
		}
	}
	name := fn.Name
	if fn.Lambda {
		name = "<lambda>"
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

// Signature returns "name(params)" for fn.
func (fn *Function) Signature() string { return fn.signature() }
