package interp

import (
	"github.com/phobologic/pytutor/internal/ast"
)

type ctrl int

const (
	ctrlNext ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

// activation is the evaluation state of one scope within a frame.
// Comprehensions share their frame with a child activation.
type activation struct {
	in     *Interp
	f      *Frame
	env    *Env
	retval Value
}

func (a *activation) execBlock(body []ast.Stmt) (ctrl, error) {
	for _, s := range body {
		c, err := a.exec(s)
		if err != nil || c != ctrlNext {
			return c, err
		}
	}
	return ctrlNext, nil
}

func (a *activation) exec(s ast.Stmt) (ctrl, error) {
	p := s.Position()
	if err := a.in.markLine(a.f, p.Line, p.Col); err != nil {
		return ctrlNext, err
	}
	c, err := a.execStmt(s)
	if err != nil {
		return c, a.in.noteException(a.f, err)
	}
	return c, nil
}

func (a *activation) execStmt(s ast.Stmt) (ctrl, error) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		_, err := a.eval(s.X)
		return ctrlNext, err
	case *ast.Assign:
		v, err := a.eval(s.Value)
		if err != nil {
			return ctrlNext, err
		}
		for _, t := range s.Targets {
			if err := a.assignTarget(t, v); err != nil {
				return ctrlNext, err
			}
		}
		return ctrlNext, nil
	case *ast.AugAssign:
		return ctrlNext, a.augAssign(s)
	case *ast.If:
		ok, err := a.truth(s.Cond)
		if err != nil {
			return ctrlNext, err
		}
		if ok {
			return a.execBlock(s.Body)
		}
		return a.execBlock(s.Else)
	case *ast.While:
		return a.execWhile(s)
	case *ast.For:
		return a.execFor(s)
	case *ast.Break:
		return ctrlBreak, nil
	case *ast.Continue:
		return ctrlContinue, nil
	case *ast.Pass, *ast.Global, *ast.Nonlocal:
		return ctrlNext, nil
	case *ast.Return:
		a.retval = None
		if s.Value != nil {
			v, err := a.eval(s.Value)
			if err != nil {
				return ctrlNext, err
			}
			a.retval = v
		}
		return ctrlReturn, nil
	case *ast.FuncDef:
		fn, err := a.makeFunction(s.Name, s.Params, s.Line, s.Scope)
		if err != nil {
			return ctrlNext, err
		}
		fn.Body = s.Body
		a.in.assign(a.env, s.Name, fn)
		return ctrlNext, nil
	case *ast.ClassDef:
		return ctrlNext, a.execClass(s)
	case *ast.Try:
		return a.execTry(s)
	case *ast.Raise:
		return ctrlNext, a.execRaise(s)
	case *ast.Delete:
		for _, t := range s.Targets {
			if err := a.deleteTarget(t); err != nil {
				return ctrlNext, err
			}
		}
		return ctrlNext, nil
	case *ast.Assert:
		ok, err := a.truth(s.Test)
		if err != nil || ok {
			return ctrlNext, err
		}
		inst := NewInstance(AssertionErrorClass)
		if s.Msg != nil {
			msg, err := a.eval(s.Msg)
			if err != nil {
				return ctrlNext, err
			}
			inst.Args = []Value{msg}
		}
		return ctrlNext, &Exception{Value: inst}
	case *ast.Import:
		return ctrlNext, NewError(ImportErrorClass, "import of '%s' is not allowed", s.Module)
	}
	return ctrlNext, NewError(RuntimeErrorClass, "cannot execute %T", s)
}

func (a *activation) truth(e ast.Expr) (bool, error) {
	v, err := a.eval(e)
	if err != nil {
		return false, err
	}
	return a.in.Truthy(v)
}

// backEdge re-arms the line event for a loop header so every iteration
// reports it.
func (a *activation) backEdge(p ast.Pos) error {
	a.f.lastLine = 0
	return a.in.markLine(a.f, p.Line, p.Col)
}

func (a *activation) execWhile(s *ast.While) (ctrl, error) {
	constTrue := false
	if c, ok := s.Cond.(*ast.Const); ok && c.Value == true {
		constTrue = true
	}
	for {
		if !constTrue {
			ok, err := a.truth(s.Cond)
			if err != nil {
				return ctrlNext, err
			}
			if !ok {
				return a.execBlock(s.Else)
			}
		}
		c, err := a.execBlock(s.Body)
		if err != nil || c == ctrlReturn {
			return c, err
		}
		if c == ctrlBreak {
			return ctrlNext, nil
		}
		if constTrue {
			a.f.lastLine = 0
			continue
		}
		if err := a.backEdge(s.Pos); err != nil {
			return ctrlNext, err
		}
	}
}

func (a *activation) execFor(s *ast.For) (ctrl, error) {
	iterable, err := a.eval(s.Iter)
	if err != nil {
		return ctrlNext, err
	}
	it, err := a.in.Iter(iterable)
	if err != nil {
		return ctrlNext, err
	}
	for {
		v, ok, err := it.next()
		if err != nil {
			return ctrlNext, err
		}
		if !ok {
			return a.execBlock(s.Else)
		}
		if err := a.assignTarget(s.Target, v); err != nil {
			return ctrlNext, err
		}
		c, err := a.execBlock(s.Body)
		if err != nil || c == ctrlReturn {
			return c, err
		}
		if c == ctrlBreak {
			return ctrlNext, nil
		}
		if err := a.backEdge(s.Pos); err != nil {
			return ctrlNext, err
		}
	}
}

func (a *activation) execTry(s *ast.Try) (ctrl, error) {
	c, err := a.execBlock(s.Body)
	if err != nil {
		exc, ok := err.(*Exception)
		if !ok {
			return c, err
		}
		for _, h := range s.Handlers {
			if merr := a.in.markLine(a.f, h.Line, h.Col); merr != nil {
				return ctrlNext, merr
			}
			match, merr := a.handlerMatches(h, exc)
			if merr != nil {
				err = merr
				break
			}
			if !match {
				continue
			}
			c, err = a.runHandler(h, exc)
			break
		}
	} else if len(s.Else) > 0 {
		c, err = a.execBlock(s.Else)
	}
	if len(s.Finally) == 0 {
		return c, err
	}
	if err != nil {
		if _, ok := err.(*Exception); !ok {
			return c, err
		}
	}
	saved := a.retval
	fc, ferr := a.execBlock(s.Finally)
	if ferr != nil || fc != ctrlNext {
		return fc, ferr
	}
	a.retval = saved
	return c, err
}

func (a *activation) handlerMatches(h *ast.Handler, exc *Exception) (bool, error) {
	if h.Type == nil {
		return true, nil
	}
	t, err := a.eval(h.Type)
	if err != nil {
		return false, err
	}
	return exceptionMatches(exc.Value.Class, t)
}

func exceptionMatches(cls *Class, t Value) (bool, error) {
	switch t := t.(type) {
	case *Class:
		if !t.IsException() {
			return false, NewError(TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
		}
		return cls.IsSubclass(t), nil
	case *Tuple:
		for _, item := range t.Items {
			ok, err := exceptionMatches(cls, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, NewError(TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
}

func (a *activation) runHandler(h *ast.Handler, exc *Exception) (ctrl, error) {
	if h.Name != "" {
		a.in.assign(a.env, h.Name, exc.Value)
	}
	a.in.handling = append(a.in.handling, exc)
	c, err := a.execBlock(h.Body)
	a.in.handling = a.in.handling[:len(a.in.handling)-1]
	if h.Name != "" {
		a.in.owner(a.env, h.Name).Delete(h.Name)
	}
	return c, err
}

func (a *activation) execRaise(s *ast.Raise) error {
	if s.Exc == nil {
		if len(a.in.handling) == 0 {
			return NewError(RuntimeErrorClass, "No active exception to reraise")
		}
		exc := a.in.handling[len(a.in.handling)-1]
		exc.reported = 0
		return exc
	}
	v, err := a.eval(s.Exc)
	if err != nil {
		return err
	}
	if s.Cause != nil {
		if _, err := a.eval(s.Cause); err != nil {
			return err
		}
	}
	return a.in.raiseValue(v)
}

func (a *activation) makeFunction(name string, params []ast.Param, line int, scope *ast.Scope) (*Function, error) {
	fn := &Function{Name: name, Params: params, Scope: scope, Line: line, Closure: a.closureEnv()}
	for i, p := range params {
		if p.Default == nil {
			continue
		}
		if fn.Defaults == nil {
			fn.Defaults = make([]Value, len(params))
		}
		v, err := a.eval(p.Default)
		if err != nil {
			return nil, err
		}
		fn.Defaults[i] = v
	}
	return fn, nil
}

// closureEnv is the environment a function defined here closes over;
// class bodies are skipped.
func (a *activation) closureEnv() *Env {
	e := a.env
	for e.kind == envClass {
		e = e.parent
	}
	return e
}

func (a *activation) execClass(s *ast.ClassDef) error {
	bases := make([]*Class, 0, len(s.Bases))
	for _, b := range s.Bases {
		v, err := a.eval(b)
		if err != nil {
			return err
		}
		cls, ok := v.(*Class)
		if !ok {
			return NewError(TypeErrorClass, "bases must be types")
		}
		bases = append(bases, cls)
	}

	in := a.in
	if len(in.stack) >= in.maxDepth {
		return NewError(RecursionErrorClass, "maximum recursion depth exceeded")
	}
	ns := NewNamespace()
	ns.Set("__module__", "__main__")
	ns.Set("__qualname__", s.Name)
	env := &Env{kind: envClass, vars: ns, scope: s.Scope, parent: a.env, globals: in.globals}
	a.f.Site = ast.Pos{}
	f := in.newFrame(s.Name, s.Line, ns, env)
	in.push(f)
	err := func() error {
		defer in.pop()
		if err := in.emit(EventCall, nil, nil); err != nil {
			return err
		}
		body := &activation{in: in, f: f, env: env}
		if _, err := body.execBlock(s.Body); err != nil {
			return in.unwind(f, err)
		}
		return in.emit(EventReturn, None, nil)
	}()
	if err != nil {
		return err
	}

	ns.Delete("__qualname__")
	cls, err := newUserClass(s.Name, bases, ns)
	if err != nil {
		return err
	}
	ns.Each(func(_ string, v Value) {
		if fn, ok := v.(*Function); ok && fn.Owner == nil {
			fn.Owner = cls
		}
	})
	in.assign(a.env, s.Name, cls)
	return nil
}

func (a *activation) augAssign(s *ast.AugAssign) error {
	rhs, err := a.eval(s.Value)
	if err != nil {
		return err
	}
	switch t := s.Target.(type) {
	case *ast.Name:
		cur, err := a.in.lookup(a.env, t.ID)
		if err != nil {
			return err
		}
		v, err := a.in.inplace(s.Op, cur, rhs)
		if err != nil {
			return err
		}
		a.in.assign(a.env, t.ID, v)
		return nil
	case *ast.Attribute:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		cur, err := a.in.GetAttr(obj, t.Name)
		if err != nil {
			return err
		}
		v, err := a.in.inplace(s.Op, cur, rhs)
		if err != nil {
			return err
		}
		return a.in.SetAttr(obj, t.Name, v)
	case *ast.Subscript:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		idx, err := a.eval(t.Index)
		if err != nil {
			return err
		}
		cur, err := a.in.GetItem(obj, idx)
		if err != nil {
			return err
		}
		v, err := a.in.inplace(s.Op, cur, rhs)
		if err != nil {
			return err
		}
		return a.in.SetItem(obj, idx, v)
	}
	return NewError(TypeErrorClass, "illegal expression for augmented assignment")
}

func (a *activation) assignTarget(t ast.Expr, v Value) error {
	switch t := t.(type) {
	case *ast.Name:
		a.in.assign(a.env, t.ID, v)
		return nil
	case *ast.Attribute:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		return a.in.SetAttr(obj, t.Name, v)
	case *ast.Subscript:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		idx, err := a.eval(t.Index)
		if err != nil {
			return err
		}
		return a.in.SetItem(obj, idx, v)
	case *ast.TupleExpr:
		return a.unpack(t.Elems, v)
	case *ast.ListExpr:
		return a.unpack(t.Elems, v)
	}
	return NewError(TypeErrorClass, "cannot assign to expression")
}

func (a *activation) unpack(targets []ast.Expr, v Value) error {
	items, err := a.in.ToSlice(v)
	if err != nil {
		return NewError(TypeErrorClass, "cannot unpack non-iterable %s object", TypeName(v))
	}
	star := -1
	for i, t := range targets {
		if _, ok := t.(*ast.Starred); ok {
			if star >= 0 {
				return NewError(TypeErrorClass, "multiple starred expressions in assignment")
			}
			star = i
		}
	}
	if star < 0 {
		if len(items) < len(targets) {
			return NewError(ValueErrorClass, "not enough values to unpack (expected %d, got %d)", len(targets), len(items))
		}
		if len(items) > len(targets) {
			return NewError(ValueErrorClass, "too many values to unpack (expected %d)", len(targets))
		}
		for i, t := range targets {
			if err := a.assignTarget(t, items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	after := len(targets) - star - 1
	if len(items) < len(targets)-1 {
		return NewError(ValueErrorClass, "not enough values to unpack (expected at least %d, got %d)", len(targets)-1, len(items))
	}
	for i := 0; i < star; i++ {
		if err := a.assignTarget(targets[i], items[i]); err != nil {
			return err
		}
	}
	rest := append([]Value(nil), items[star:len(items)-after]...)
	if err := a.assignTarget(targets[star].(*ast.Starred).X, NewList(rest...)); err != nil {
		return err
	}
	for i := 0; i < after; i++ {
		if err := a.assignTarget(targets[star+1+i], items[len(items)-after+i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *activation) deleteTarget(t ast.Expr) error {
	switch t := t.(type) {
	case *ast.Name:
		return a.in.unbind(a.env, t.ID)
	case *ast.Attribute:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		return a.in.DelAttr(obj, t.Name)
	case *ast.Subscript:
		obj, err := a.eval(t.X)
		if err != nil {
			return err
		}
		idx, err := a.eval(t.Index)
		if err != nil {
			return err
		}
		return a.in.DelItem(obj, idx)
	case *ast.TupleExpr:
		for _, e := range t.Elems {
			if err := a.deleteTarget(e); err != nil {
				return err
			}
		}
		return nil
	case *ast.ListExpr:
		for _, e := range t.Elems {
			if err := a.deleteTarget(e); err != nil {
				return err
			}
		}
		return nil
	}
	return NewError(TypeErrorClass, "cannot delete expression")
}
