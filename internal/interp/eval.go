package interp

import (
	"strings"

	"github.com/phobologic/pytutor/internal/ast"
)

// SliceValue is the value of a[lo:hi:step] index expressions.
type SliceValue struct {
	Lo, Hi, Step Value
}

func (a *activation) eval(e ast.Expr) (Value, error) {
	switch e := e.(type) {
	case *ast.Name:
		return a.in.lookup(a.env, e.ID)
	case *ast.Const:
		if e.Value == nil {
			return None, nil
		}
		return e.Value, nil
	case *ast.FString:
		return a.fstring(e)
	case *ast.BinOp:
		l, err := a.eval(e.L)
		if err != nil {
			return nil, err
		}
		r, err := a.eval(e.R)
		if err != nil {
			return nil, err
		}
		return a.in.BinOp(e.Op, l, r)
	case *ast.UnaryOp:
		x, err := a.eval(e.X)
		if err != nil {
			return nil, err
		}
		return a.in.unary(e.Op, x)
	case *ast.BoolOp:
		l, err := a.eval(e.L)
		if err != nil {
			return nil, err
		}
		t, err := a.in.Truthy(l)
		if err != nil {
			return nil, err
		}
		if (e.Op == "and" && !t) || (e.Op == "or" && t) {
			return l, nil
		}
		return a.eval(e.R)
	case *ast.Not:
		t, err := a.truth(e.X)
		if err != nil {
			return nil, err
		}
		return !t, nil
	case *ast.Compare:
		return a.compare(e)
	case *ast.IfExp:
		t, err := a.truth(e.Cond)
		if err != nil {
			return nil, err
		}
		if t {
			return a.eval(e.Then)
		}
		return a.eval(e.Else)
	case *ast.Call:
		return a.call(e)
	case *ast.Attribute:
		x, err := a.eval(e.X)
		if err != nil {
			return nil, err
		}
		return a.in.GetAttr(x, e.Name)
	case *ast.Subscript:
		x, err := a.eval(e.X)
		if err != nil {
			return nil, err
		}
		idx, err := a.eval(e.Index)
		if err != nil {
			return nil, err
		}
		return a.in.GetItem(x, idx)
	case *ast.Slice:
		s := &SliceValue{Lo: None, Hi: None, Step: None}
		for _, part := range []struct {
			expr ast.Expr
			dst  *Value
		}{{e.Lo, &s.Lo}, {e.Hi, &s.Hi}, {e.Step, &s.Step}} {
			if part.expr == nil {
				continue
			}
			v, err := a.eval(part.expr)
			if err != nil {
				return nil, err
			}
			*part.dst = v
		}
		return s, nil
	case *ast.ListExpr:
		items, err := a.evalElems(e.Elems)
		if err != nil {
			return nil, err
		}
		return NewList(items...), nil
	case *ast.TupleExpr:
		items, err := a.evalElems(e.Elems)
		if err != nil {
			return nil, err
		}
		return NewTuple(items...), nil
	case *ast.SetExpr:
		items, err := a.evalElems(e.Elems)
		if err != nil {
			return nil, err
		}
		s := NewSet()
		for _, item := range items {
			if err := s.Add(item); err != nil {
				return nil, err
			}
		}
		return s, nil
	case *ast.DictExpr:
		return a.dict(e)
	case *ast.Comprehension:
		return a.comprehension(e)
	case *ast.Lambda:
		fn, err := a.makeFunction("<lambda>", e.Params, e.Line, e.Scope)
		if err != nil {
			return nil, err
		}
		fn.Lambda = true
		fn.Expr = e.Body
		return fn, nil
	case *ast.NamedExpr:
		v, err := a.eval(e.Value)
		if err != nil {
			return nil, err
		}
		a.in.assignWalrus(a.env, e.Target, v)
		return v, nil
	case *ast.Starred:
		return nil, NewError(TypeErrorClass, "can't use starred expression here")
	}
	return nil, NewError(RuntimeErrorClass, "cannot evaluate %T", e)
}

// evalElems evaluates display elements, expanding *iterable entries.
func (a *activation) evalElems(elems []ast.Expr) ([]Value, error) {
	out := make([]Value, 0, len(elems))
	for _, el := range elems {
		if st, ok := el.(*ast.Starred); ok {
			v, err := a.eval(st.X)
			if err != nil {
				return nil, err
			}
			items, err := a.in.ToSlice(v)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
			continue
		}
		v, err := a.eval(el)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *activation) dict(e *ast.DictExpr) (Value, error) {
	d := NewDict()
	for i, k := range e.Keys {
		v, err := a.eval(e.Values[i])
		if err != nil {
			return nil, err
		}
		if k == nil {
			src, ok := v.(*Dict)
			if !ok {
				return nil, NewError(TypeErrorClass, "'%s' object is not a mapping", TypeName(v))
			}
			var perr error
			src.Items(func(k, v Value) {
				if perr == nil {
					perr = d.Set(k, v)
				}
			})
			if perr != nil {
				return nil, perr
			}
			continue
		}
		key, err := a.eval(k)
		if err != nil {
			return nil, err
		}
		if err := d.Set(key, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (a *activation) compare(e *ast.Compare) (Value, error) {
	left, err := a.eval(e.First)
	if err != nil {
		return nil, err
	}
	for i, op := range e.Ops {
		right, err := a.eval(e.Rest[i])
		if err != nil {
			return nil, err
		}
		ok, err := a.in.Compare(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func (a *activation) fstring(e *ast.FString) (Value, error) {
	var sb strings.Builder
	for _, p := range e.Parts {
		if p.Expr == nil {
			sb.WriteString(p.Lit)
			continue
		}
		v, err := a.eval(p.Expr)
		if err != nil {
			return nil, err
		}
		switch p.Conv {
		case 'r', 'a':
			s, err := a.in.Repr(v)
			if err != nil {
				return nil, err
			}
			v = s
		case 's':
			s, err := a.in.Str(v)
			if err != nil {
				return nil, err
			}
			v = s
		}
		s, err := a.in.Format(v, p.Spec)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (a *activation) call(e *ast.Call) (Value, error) {
	fn, err := a.eval(e.Func)
	if err != nil {
		return nil, err
	}
	var args []Value
	var kw []Kwarg
	for _, arg := range e.Args {
		v, err := a.eval(arg.Value)
		if err != nil {
			return nil, err
		}
		switch {
		case arg.Star:
			items, err := a.in.ToSlice(v)
			if err != nil {
				return nil, NewError(TypeErrorClass, "argument after * must be an iterable, not %s", TypeName(v))
			}
			args = append(args, items...)
		case arg.DoubleStar:
			d, ok := v.(*Dict)
			if !ok {
				return nil, NewError(TypeErrorClass, "argument after ** must be a mapping, not %s", TypeName(v))
			}
			var kerr error
			d.Items(func(k, v Value) {
				name, ok := k.(string)
				if !ok {
					kerr = NewError(TypeErrorClass, "keywords must be strings")
					return
				}
				kw = append(kw, Kwarg{Name: name, Value: v})
			})
			if kerr != nil {
				return nil, kerr
			}
		case arg.Name != "":
			kw = append(kw, Kwarg{Name: arg.Name, Value: v})
		default:
			args = append(args, v)
		}
	}
	a.f.Site = e.Pos
	return a.in.callValue(fn, args, kw)
}

func (a *activation) comprehension(e *ast.Comprehension) (Value, error) {
	env := &Env{kind: envComp, vars: NewNamespace(), parent: a.env, globals: a.env.globals}
	inner := &activation{in: a.in, f: a.f, env: env}

	var list *List
	var set *Set
	var dict *Dict
	switch e.Kind {
	case ast.CompSet:
		set = NewSet()
	case ast.CompDict:
		dict = NewDict()
	default:
		list = NewList()
	}

	var loop func(i int) error
	loop = func(i int) error {
		if i == len(e.Clauses) {
			if e.Kind == ast.CompDict {
				k, err := inner.eval(e.Key)
				if err != nil {
					return err
				}
				v, err := inner.eval(e.Elt)
				if err != nil {
					return err
				}
				return dict.Set(k, v)
			}
			v, err := inner.eval(e.Elt)
			if err != nil {
				return err
			}
			if set != nil {
				return set.Add(v)
			}
			list.Items = append(list.Items, v)
			return nil
		}
		cl := e.Clauses[i]
		// The outermost iterable is evaluated in the enclosing scope.
		src := inner
		if i == 0 {
			src = a
		}
		iterable, err := src.eval(cl.Iter)
		if err != nil {
			return err
		}
		it, err := a.in.Iter(iterable)
		if err != nil {
			return err
		}
		for {
			v, ok, err := it.next()
			if err != nil || !ok {
				return err
			}
			if err := inner.assignTarget(cl.Target, v); err != nil {
				return err
			}
			keep := true
			for _, cond := range cl.Ifs {
				t, err := inner.truth(cond)
				if err != nil {
					return err
				}
				if !t {
					keep = false
					break
				}
			}
			if keep {
				if err := loop(i + 1); err != nil {
					return err
				}
			}
			if err := inner.backEdge(e.Pos); err != nil {
				return err
			}
		}
	}
	if err := loop(0); err != nil {
		return nil, err
	}
	switch {
	case set != nil:
		return set, nil
	case dict != nil:
		return dict, nil
	case e.Kind == ast.CompGen:
		return iterSlice(list.Items), nil
	}
	return list, nil
}
