package parse

import "github.com/phobologic/pytutor/internal/ast"

// analyzeScope decides which names a body binds locally. Nested function and
// class bodies are their own scopes and are not entered; their names are.
func analyzeScope(params []ast.Param, body []ast.Stmt) *ast.Scope {
	s := ast.NewScope()
	for _, p := range params {
		s.Locals[p.Name] = true
	}
	bindStmts(s, body)
	for name := range s.Globals {
		delete(s.Locals, name)
	}
	for name := range s.Nonlocals {
		delete(s.Locals, name)
	}
	return s
}

func analyzeLambda(params []ast.Param, body ast.Expr) *ast.Scope {
	s := ast.NewScope()
	for _, p := range params {
		s.Locals[p.Name] = true
	}
	bindWalrus(s, body)
	return s
}

func bindStmts(s *ast.Scope, body []ast.Stmt) {
	for _, st := range body {
		bindStmt(s, st)
	}
}

func bindStmt(s *ast.Scope, st ast.Stmt) {
	switch st := st.(type) {
	case *ast.ExprStmt:
		bindWalrus(s, st.X)
	case *ast.Assign:
		for _, t := range st.Targets {
			bindTarget(s, t)
		}
		bindWalrus(s, st.Value)
	case *ast.AugAssign:
		bindTarget(s, st.Target)
		bindWalrus(s, st.Value)
	case *ast.If:
		bindWalrus(s, st.Cond)
		bindStmts(s, st.Body)
		bindStmts(s, st.Else)
	case *ast.While:
		bindWalrus(s, st.Cond)
		bindStmts(s, st.Body)
		bindStmts(s, st.Else)
	case *ast.For:
		bindTarget(s, st.Target)
		bindWalrus(s, st.Iter)
		bindStmts(s, st.Body)
		bindStmts(s, st.Else)
	case *ast.FuncDef:
		s.Locals[st.Name] = true
		for _, p := range st.Params {
			bindWalrus(s, p.Default)
		}
	case *ast.ClassDef:
		s.Locals[st.Name] = true
		for _, b := range st.Bases {
			bindWalrus(s, b)
		}
	case *ast.Try:
		bindStmts(s, st.Body)
		for _, h := range st.Handlers {
			if h.Name != "" {
				s.Locals[h.Name] = true
			}
			bindStmts(s, h.Body)
		}
		bindStmts(s, st.Else)
		bindStmts(s, st.Finally)
	case *ast.Return:
		bindWalrus(s, st.Value)
	case *ast.Global:
		for _, n := range st.Names {
			s.Globals[n] = true
		}
	case *ast.Nonlocal:
		for _, n := range st.Names {
			s.Nonlocals[n] = true
		}
	case *ast.Delete:
		for _, t := range st.Targets {
			bindTarget(s, t)
		}
	case *ast.Import:
		if st.Module != "" {
			s.Locals[st.Module] = true
		}
	}
}

func bindTarget(s *ast.Scope, t ast.Expr) {
	switch t := t.(type) {
	case *ast.Name:
		s.Locals[t.ID] = true
	case *ast.TupleExpr:
		for _, e := range t.Elems {
			bindTarget(s, e)
		}
	case *ast.ListExpr:
		for _, e := range t.Elems {
			bindTarget(s, e)
		}
	case *ast.Starred:
		bindTarget(s, t.X)
	case *ast.Attribute:
		bindWalrus(s, t.X)
	case *ast.Subscript:
		bindWalrus(s, t.X)
		bindWalrus(s, t.Index)
	}
}

// bindWalrus records assignment-expression targets. Lambda bodies are
// skipped; comprehensions are entered because := inside them binds in the
// enclosing scope.
func bindWalrus(s *ast.Scope, e ast.Expr) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *ast.NamedExpr:
		s.Locals[e.Target] = true
		bindWalrus(s, e.Value)
	case *ast.BinOp:
		bindWalrus(s, e.L)
		bindWalrus(s, e.R)
	case *ast.BoolOp:
		bindWalrus(s, e.L)
		bindWalrus(s, e.R)
	case *ast.UnaryOp:
		bindWalrus(s, e.X)
	case *ast.Not:
		bindWalrus(s, e.X)
	case *ast.Compare:
		bindWalrus(s, e.First)
		for _, r := range e.Rest {
			bindWalrus(s, r)
		}
	case *ast.IfExp:
		bindWalrus(s, e.Cond)
		bindWalrus(s, e.Then)
		bindWalrus(s, e.Else)
	case *ast.Call:
		bindWalrus(s, e.Func)
		for _, a := range e.Args {
			bindWalrus(s, a.Value)
		}
	case *ast.Attribute:
		bindWalrus(s, e.X)
	case *ast.Subscript:
		bindWalrus(s, e.X)
		bindWalrus(s, e.Index)
	case *ast.ListExpr:
		for _, x := range e.Elems {
			bindWalrus(s, x)
		}
	case *ast.TupleExpr:
		for _, x := range e.Elems {
			bindWalrus(s, x)
		}
	case *ast.SetExpr:
		for _, x := range e.Elems {
			bindWalrus(s, x)
		}
	case *ast.DictExpr:
		for _, x := range e.Keys {
			bindWalrus(s, x)
		}
		for _, x := range e.Values {
			bindWalrus(s, x)
		}
	case *ast.Starred:
		bindWalrus(s, e.X)
	case *ast.FString:
		for _, p := range e.Parts {
			bindWalrus(s, p.Expr)
		}
	case *ast.Comprehension:
		bindWalrus(s, e.Elt)
		bindWalrus(s, e.Key)
		for _, cl := range e.Clauses {
			bindWalrus(s, cl.Iter)
			for _, cond := range cl.Ifs {
				bindWalrus(s, cond)
			}
		}
	}
}
