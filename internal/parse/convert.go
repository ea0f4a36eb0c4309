package parse

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/pytutor/internal/ast"
	"github.com/phobologic/pytutor/internal/lang"
)

// converter turns tree-sitter nodes into ast nodes. The first failure is
// kept in err; later calls keep going but their results are discarded.
type converter struct {
	src []byte
	err *SyntaxError
}

func (c *converter) fail(n *sitter.Node, format string, args ...any) {
	if c.err != nil {
		return
	}
	line, col := point(n.StartPoint())
	c.err = &SyntaxError{Line: line, Offset: col + 1, Msg: fmt.Sprintf(format, args...)}
}

func (c *converter) pos(n *sitter.Node) ast.Pos {
	line, col := point(n.StartPoint())
	endLine, endCol := point(n.EndPoint())
	return ast.Pos{Line: line, Col: col, EndLine: endLine, EndCol: endCol}
}

func (c *converter) text(n *sitter.Node) string {
	return lang.NodeText(n, c.src)
}

// named returns the named children of n, skipping comments.
func (c *converter) named(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// children returns every child of n, named or not, skipping comments.
func (c *converter) children(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func hasToken(children []*sitter.Node, token string) bool {
	for _, ch := range children {
		if !ch.IsNamed() && ch.Type() == token {
			return true
		}
	}
	return false
}

// --- statements ---

func (c *converter) block(n *sitter.Node) []ast.Stmt {
	if n == nil {
		return nil
	}
	var out []ast.Stmt
	for _, child := range c.named(n) {
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) stmt(n *sitter.Node) ast.Stmt {
	p := c.pos(n)
	switch n.Type() {
	case "expression_statement":
		return c.exprStatement(n)
	case "return_statement":
		s := &ast.Return{Pos: p}
		if kids := c.named(n); len(kids) > 0 {
			s.Value = c.expr(kids[0])
		}
		return s
	case "pass_statement":
		return &ast.Pass{Pos: p}
	case "break_statement":
		return &ast.Break{Pos: p}
	case "continue_statement":
		return &ast.Continue{Pos: p}
	case "if_statement":
		return c.ifStatement(n)
	case "while_statement":
		return &ast.While{
			Pos:  p,
			Cond: c.expr(n.ChildByFieldName("condition")),
			Body: c.block(n.ChildByFieldName("body")),
			Else: c.elseBody(n.ChildByFieldName("alternative")),
		}
	case "for_statement":
		if hasToken(c.children(n), "async") {
			c.fail(n, "unsupported syntax: async")
			return nil
		}
		return &ast.For{
			Pos:    p,
			Target: c.target(n.ChildByFieldName("left")),
			Iter:   c.expr(n.ChildByFieldName("right")),
			Body:   c.block(n.ChildByFieldName("body")),
			Else:   c.elseBody(n.ChildByFieldName("alternative")),
		}
	case "function_definition":
		return c.funcDef(n)
	case "class_definition":
		return c.classDef(n)
	case "try_statement":
		return c.tryStatement(n)
	case "raise_statement":
		s := &ast.Raise{Pos: p}
		cause := n.ChildByFieldName("cause")
		for _, kid := range c.named(n) {
			if cause != nil && kid.StartByte() == cause.StartByte() {
				continue
			}
			s.Exc = c.expr(kid)
			break
		}
		if cause != nil {
			s.Cause = c.expr(cause)
		}
		return s
	case "global_statement":
		return &ast.Global{Pos: p, Names: c.identifiers(n)}
	case "nonlocal_statement":
		return &ast.Nonlocal{Pos: p, Names: c.identifiers(n)}
	case "delete_statement":
		s := &ast.Delete{Pos: p}
		for _, kid := range c.named(n) {
			if kid.Type() == "expression_list" {
				for _, t := range c.named(kid) {
					s.Targets = append(s.Targets, c.target(t))
				}
				continue
			}
			s.Targets = append(s.Targets, c.target(kid))
		}
		return s
	case "assert_statement":
		kids := c.named(n)
		s := &ast.Assert{Pos: p}
		if len(kids) > 0 {
			s.Test = c.expr(kids[0])
		}
		if len(kids) > 1 {
			s.Msg = c.expr(kids[1])
		}
		return s
	case "import_statement", "import_from_statement", "future_import_statement":
		s := &ast.Import{Pos: p}
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			s.Module = c.text(mod)
		} else if name := n.ChildByFieldName("name"); name != nil {
			s.Module = c.text(name)
		}
		return s
	default:
		c.fail(n, "unsupported syntax: %s", strings.ReplaceAll(n.Type(), "_", " "))
		return nil
	}
}

func (c *converter) identifiers(n *sitter.Node) []string {
	var names []string
	for _, kid := range c.named(n) {
		names = append(names, c.text(kid))
	}
	return names
}

func (c *converter) exprStatement(n *sitter.Node) ast.Stmt {
	p := c.pos(n)
	kids := c.named(n)
	if len(kids) == 0 {
		return &ast.Pass{Pos: p}
	}
	if len(kids) > 1 {
		elems := make([]ast.Expr, 0, len(kids))
		for _, k := range kids {
			elems = append(elems, c.expr(k))
		}
		return &ast.ExprStmt{Pos: p, X: &ast.TupleExpr{Pos: p, Elems: elems}}
	}
	kid := kids[0]
	switch kid.Type() {
	case "assignment":
		return c.assignment(p, kid)
	case "augmented_assignment":
		op := n.Type()
		if o := kid.ChildByFieldName("operator"); o != nil {
			op = strings.TrimSuffix(o.Type(), "=")
		}
		return &ast.AugAssign{
			Pos:    p,
			Target: c.target(kid.ChildByFieldName("left")),
			Op:     op,
			Value:  c.expr(kid.ChildByFieldName("right")),
		}
	}
	return &ast.ExprStmt{Pos: p, X: c.expr(kid)}
}

func (c *converter) assignment(p ast.Pos, n *sitter.Node) ast.Stmt {
	s := &ast.Assign{Pos: p}
	cur := n
	for {
		s.Targets = append(s.Targets, c.target(cur.ChildByFieldName("left")))
		right := cur.ChildByFieldName("right")
		if right == nil {
			// A bare annotation binds nothing.
			return &ast.Pass{Pos: p}
		}
		if right.Type() == "assignment" {
			cur = right
			continue
		}
		if right.Type() == "augmented_assignment" {
			c.fail(right, "invalid syntax")
			return nil
		}
		s.Value = c.expr(right)
		return s
	}
}

func (c *converter) ifStatement(n *sitter.Node) ast.Stmt {
	s := &ast.If{
		Pos:  c.pos(n),
		Cond: c.expr(n.ChildByFieldName("condition")),
		Body: c.block(n.ChildByFieldName("consequence")),
	}
	var clauses []*sitter.Node
	for _, ch := range c.named(n) {
		if t := ch.Type(); t == "elif_clause" || t == "else_clause" {
			clauses = append(clauses, ch)
		}
	}
	var tail []ast.Stmt
	for i := len(clauses) - 1; i >= 0; i-- {
		cl := clauses[i]
		if cl.Type() == "else_clause" {
			tail = c.elseBody(cl)
			continue
		}
		tail = []ast.Stmt{&ast.If{
			Pos:  c.pos(cl),
			Cond: c.expr(cl.ChildByFieldName("condition")),
			Body: c.block(cl.ChildByFieldName("consequence")),
			Else: tail,
		}}
	}
	s.Else = tail
	return s
}

func (c *converter) elseBody(n *sitter.Node) []ast.Stmt {
	if n == nil {
		return nil
	}
	if body := n.ChildByFieldName("body"); body != nil {
		return c.block(body)
	}
	for _, kid := range c.named(n) {
		if kid.Type() == "block" {
			return c.block(kid)
		}
	}
	return nil
}

func (c *converter) funcDef(n *sitter.Node) ast.Stmt {
	if hasToken(c.children(n), "async") {
		c.fail(n, "unsupported syntax: async")
		return nil
	}
	params := c.params(n.ChildByFieldName("parameters"))
	body := c.block(n.ChildByFieldName("body"))
	return &ast.FuncDef{
		Pos:    c.pos(n),
		Name:   c.text(n.ChildByFieldName("name")),
		Params: params,
		Body:   body,
		Scope:  analyzeScope(params, body),
	}
}

func (c *converter) classDef(n *sitter.Node) ast.Stmt {
	s := &ast.ClassDef{
		Pos:  c.pos(n),
		Name: c.text(n.ChildByFieldName("name")),
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for _, arg := range c.named(supers) {
			if arg.Type() == "keyword_argument" {
				c.fail(arg, "unsupported syntax: class keyword arguments")
				return nil
			}
			s.Bases = append(s.Bases, c.expr(arg))
		}
	}
	s.Body = c.block(n.ChildByFieldName("body"))
	s.Scope = analyzeScope(nil, s.Body)
	return s
}

func (c *converter) tryStatement(n *sitter.Node) ast.Stmt {
	s := &ast.Try{Pos: c.pos(n), Body: c.block(n.ChildByFieldName("body"))}
	for _, ch := range c.named(n) {
		switch ch.Type() {
		case "except_clause":
			s.Handlers = append(s.Handlers, c.handler(ch))
		case "except_group_clause":
			c.fail(ch, "unsupported syntax: except*")
		case "else_clause":
			s.Else = c.elseBody(ch)
		case "finally_clause":
			s.Finally = c.elseBody(ch)
		}
	}
	return s
}

func (c *converter) handler(n *sitter.Node) *ast.Handler {
	h := &ast.Handler{Pos: c.pos(n)}
	var exprs []*sitter.Node
	for _, kid := range c.named(n) {
		if kid.Type() == "block" {
			h.Body = c.block(kid)
			continue
		}
		exprs = append(exprs, kid)
	}
	switch {
	case len(exprs) == 1 && exprs[0].Type() == "as_pattern":
		parts := c.named(exprs[0])
		if len(parts) > 0 {
			h.Type = c.expr(parts[0])
		}
		if alias := exprs[0].ChildByFieldName("alias"); alias != nil {
			h.Name = strings.TrimSpace(c.text(alias))
		} else if len(parts) > 1 {
			h.Name = strings.TrimSpace(c.text(parts[len(parts)-1]))
		}
	case len(exprs) >= 1:
		h.Type = c.expr(exprs[0])
		if len(exprs) > 1 {
			h.Name = c.text(exprs[1])
		}
	}
	return h
}

func (c *converter) params(n *sitter.Node) []ast.Param {
	if n == nil {
		return nil
	}
	var out []ast.Param
	keywordOnly := false
	kind := func() ast.ParamKind {
		if keywordOnly {
			return ast.ParamKeywordOnly
		}
		return ast.ParamNormal
	}
	var add func(p *sitter.Node)
	add = func(p *sitter.Node) {
		switch p.Type() {
		case "identifier":
			out = append(out, ast.Param{Name: c.text(p), Kind: kind()})
		case "default_parameter", "typed_default_parameter":
			out = append(out, ast.Param{
				Name:    c.text(p.ChildByFieldName("name")),
				Default: c.expr(p.ChildByFieldName("value")),
				Kind:    kind(),
			})
		case "typed_parameter":
			if kids := c.named(p); len(kids) > 0 {
				add(kids[0])
			}
		case "list_splat_pattern":
			if kids := c.named(p); len(kids) > 0 {
				out = append(out, ast.Param{Name: c.text(kids[0]), Kind: ast.ParamVarArgs})
			}
			keywordOnly = true
		case "dictionary_splat_pattern":
			if kids := c.named(p); len(kids) > 0 {
				out = append(out, ast.Param{Name: c.text(kids[0]), Kind: ast.ParamKwArgs})
			}
		case "keyword_separator":
			keywordOnly = true
		case "positional_separator":
		default:
			c.fail(p, "unsupported syntax: parameter %s", c.text(p))
		}
	}
	for _, p := range c.named(n) {
		add(p)
	}
	return out
}

// --- targets ---

func (c *converter) target(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	p := c.pos(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &ast.Name{Pos: p, ID: c.text(n)}
	case "attribute", "subscript":
		return c.expr(n)
	case "pattern_list", "tuple_pattern", "expression_list", "tuple":
		return &ast.TupleExpr{Pos: p, Elems: c.targets(n)}
	case "list_pattern", "list":
		return &ast.ListExpr{Pos: p, Elems: c.targets(n)}
	case "list_splat_pattern", "list_splat":
		kids := c.named(n)
		if len(kids) == 0 {
			c.fail(n, "invalid syntax")
			return nil
		}
		return &ast.Starred{Pos: p, X: c.target(kids[0])}
	case "parenthesized_expression":
		kids := c.named(n)
		if len(kids) == 1 {
			return c.target(kids[0])
		}
	}
	c.fail(n, "cannot assign to %s", strings.ReplaceAll(n.Type(), "_", " "))
	return nil
}

func (c *converter) targets(n *sitter.Node) []ast.Expr {
	var out []ast.Expr
	for _, kid := range c.named(n) {
		out = append(out, c.target(kid))
	}
	return out
}

// --- expressions ---

func (c *converter) exprs(nodes []*sitter.Node) []ast.Expr {
	out := make([]ast.Expr, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, c.expr(n))
	}
	return out
}

func (c *converter) expr(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	p := c.pos(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &ast.Name{Pos: p, ID: c.text(n)}
	case "integer":
		return c.integer(n)
	case "float":
		text := strings.ReplaceAll(c.text(n), "_", "")
		if strings.ContainsAny(text, "jJ") {
			c.fail(n, "unsupported syntax: complex numbers")
			return nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			c.fail(n, "invalid float literal %s", text)
			return nil
		}
		return &ast.Const{Pos: p, Value: f}
	case "string":
		return c.stringLit(n)
	case "concatenated_string":
		return c.concatenated(n)
	case "true":
		return &ast.Const{Pos: p, Value: true}
	case "false":
		return &ast.Const{Pos: p, Value: false}
	case "none":
		return &ast.Const{Pos: p, Value: nil}
	case "binary_operator":
		return &ast.BinOp{
			Pos: p,
			Op:  n.ChildByFieldName("operator").Type(),
			L:   c.expr(n.ChildByFieldName("left")),
			R:   c.expr(n.ChildByFieldName("right")),
		}
	case "unary_operator":
		return &ast.UnaryOp{
			Pos: p,
			Op:  n.ChildByFieldName("operator").Type(),
			X:   c.expr(n.ChildByFieldName("argument")),
		}
	case "not_operator":
		return &ast.Not{Pos: p, X: c.expr(n.ChildByFieldName("argument"))}
	case "boolean_operator":
		return &ast.BoolOp{
			Pos: p,
			Op:  n.ChildByFieldName("operator").Type(),
			L:   c.expr(n.ChildByFieldName("left")),
			R:   c.expr(n.ChildByFieldName("right")),
		}
	case "comparison_operator":
		return c.comparison(n)
	case "conditional_expression":
		kids := c.named(n)
		if len(kids) != 3 {
			c.fail(n, "invalid syntax")
			return nil
		}
		return &ast.IfExp{Pos: p, Then: c.expr(kids[0]), Cond: c.expr(kids[1]), Else: c.expr(kids[2])}
	case "call":
		return c.call(n)
	case "attribute":
		return &ast.Attribute{
			Pos:  p,
			X:    c.expr(n.ChildByFieldName("object")),
			Name: c.text(n.ChildByFieldName("attribute")),
		}
	case "subscript":
		kids := c.named(n)
		if len(kids) < 2 {
			c.fail(n, "invalid syntax")
			return nil
		}
		var index ast.Expr
		if len(kids) == 2 {
			index = c.expr(kids[1])
		} else {
			index = &ast.TupleExpr{Pos: c.pos(kids[1]), Elems: c.exprs(kids[1:])}
		}
		return &ast.Subscript{Pos: p, X: c.expr(kids[0]), Index: index}
	case "slice":
		return c.slice(n)
	case "list":
		return &ast.ListExpr{Pos: p, Elems: c.exprs(c.named(n))}
	case "tuple", "expression_list", "pattern_list":
		return &ast.TupleExpr{Pos: p, Elems: c.exprs(c.named(n))}
	case "set":
		return &ast.SetExpr{Pos: p, Elems: c.exprs(c.named(n))}
	case "parenthesized_expression":
		kids := c.named(n)
		if len(kids) != 1 {
			c.fail(n, "invalid syntax")
			return nil
		}
		return c.expr(kids[0])
	case "dictionary":
		d := &ast.DictExpr{Pos: p}
		for _, kid := range c.named(n) {
			switch kid.Type() {
			case "pair":
				d.Keys = append(d.Keys, c.expr(kid.ChildByFieldName("key")))
				d.Values = append(d.Values, c.expr(kid.ChildByFieldName("value")))
			case "dictionary_splat":
				inner := c.named(kid)
				if len(inner) == 0 {
					c.fail(kid, "invalid syntax")
					return nil
				}
				d.Keys = append(d.Keys, nil)
				d.Values = append(d.Values, c.expr(inner[0]))
			default:
				c.fail(kid, "invalid syntax")
				return nil
			}
		}
		return d
	case "list_splat":
		kids := c.named(n)
		if len(kids) == 0 {
			c.fail(n, "invalid syntax")
			return nil
		}
		return &ast.Starred{Pos: p, X: c.expr(kids[0])}
	case "list_comprehension":
		return c.comprehension(n, ast.CompList)
	case "set_comprehension":
		return c.comprehension(n, ast.CompSet)
	case "dictionary_comprehension":
		return c.comprehension(n, ast.CompDict)
	case "generator_expression":
		return c.comprehension(n, ast.CompGen)
	case "lambda":
		params := c.params(n.ChildByFieldName("parameters"))
		body := c.expr(n.ChildByFieldName("body"))
		return &ast.Lambda{Pos: p, Params: params, Body: body, Scope: analyzeLambda(params, body)}
	case "named_expression":
		return &ast.NamedExpr{
			Pos:    p,
			Target: c.text(n.ChildByFieldName("name")),
			Value:  c.expr(n.ChildByFieldName("value")),
		}
	}
	c.fail(n, "unsupported syntax: %s", strings.ReplaceAll(n.Type(), "_", " "))
	return nil
}

func (c *converter) integer(n *sitter.Node) ast.Expr {
	text := strings.ReplaceAll(c.text(n), "_", "")
	if strings.ContainsAny(text, "jJ") {
		c.fail(n, "unsupported syntax: complex numbers")
		return nil
	}
	text = strings.TrimRight(text, "lL")
	lower := strings.ToLower(text)
	if len(lower) > 1 && lower[0] == '0' && !strings.HasPrefix(lower, "0x") &&
		!strings.HasPrefix(lower, "0o") && !strings.HasPrefix(lower, "0b") && strings.Trim(lower, "0") != "" {
		c.fail(n, "leading zeros in decimal integer literals are not permitted")
		return nil
	}
	v, err := strconv.ParseInt(lower, 0, 64)
	if err == nil {
		return &ast.Const{Pos: c.pos(n), Value: v}
	}
	b, ok := new(big.Int).SetString(lower, 0)
	if !ok {
		c.fail(n, "invalid integer literal: %s", text)
		return nil
	}
	return &ast.Const{Pos: c.pos(n), Value: b}
}

func (c *converter) comparison(n *sitter.Node) ast.Expr {
	cmp := &ast.Compare{Pos: c.pos(n)}
	pending := ""
	operands := 0
	for _, ch := range c.children(n) {
		if ch.IsNamed() {
			if pending != "" {
				cmp.Ops = append(cmp.Ops, pending)
				pending = ""
			}
			if operands == 0 {
				cmp.First = c.expr(ch)
			} else {
				cmp.Rest = append(cmp.Rest, c.expr(ch))
			}
			operands++
			continue
		}
		switch tok := ch.Type(); {
		case pending == "not" && tok == "in":
			pending = "not in"
		case pending == "is" && tok == "not":
			pending = "is not"
		default:
			pending = tok
		}
	}
	if len(cmp.Ops) != len(cmp.Rest) || cmp.First == nil {
		c.fail(n, "invalid syntax")
		return nil
	}
	return cmp
}

func (c *converter) call(n *sitter.Node) ast.Expr {
	call := &ast.Call{Pos: c.pos(n), Func: c.expr(n.ChildByFieldName("function"))}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	if args.Type() == "generator_expression" {
		call.Args = []ast.Arg{{Value: c.expr(args)}}
		return call
	}
	for _, a := range c.named(args) {
		switch a.Type() {
		case "keyword_argument":
			call.Args = append(call.Args, ast.Arg{
				Name:  c.text(a.ChildByFieldName("name")),
				Value: c.expr(a.ChildByFieldName("value")),
			})
		case "list_splat":
			if kids := c.named(a); len(kids) > 0 {
				call.Args = append(call.Args, ast.Arg{Value: c.expr(kids[0]), Star: true})
			}
		case "dictionary_splat":
			if kids := c.named(a); len(kids) > 0 {
				call.Args = append(call.Args, ast.Arg{Value: c.expr(kids[0]), DoubleStar: true})
			}
		default:
			call.Args = append(call.Args, ast.Arg{Value: c.expr(a)})
		}
	}
	return call
}

func (c *converter) slice(n *sitter.Node) ast.Expr {
	s := &ast.Slice{Pos: c.pos(n)}
	colons := 0
	for _, ch := range c.children(n) {
		if !ch.IsNamed() {
			if ch.Type() == ":" {
				colons++
			}
			continue
		}
		switch colons {
		case 0:
			s.Lo = c.expr(ch)
		case 1:
			s.Hi = c.expr(ch)
		default:
			s.Step = c.expr(ch)
		}
	}
	return s
}

func (c *converter) comprehension(n *sitter.Node, kind ast.CompKind) ast.Expr {
	comp := &ast.Comprehension{Pos: c.pos(n), Kind: kind}
	body := n.ChildByFieldName("body")
	if body == nil {
		c.fail(n, "invalid syntax")
		return nil
	}
	if kind == ast.CompDict {
		comp.Key = c.expr(body.ChildByFieldName("key"))
		comp.Elt = c.expr(body.ChildByFieldName("value"))
	} else {
		comp.Elt = c.expr(body)
	}
	for _, ch := range c.named(n) {
		switch ch.Type() {
		case "for_in_clause":
			if hasToken(c.children(ch), "async") {
				c.fail(ch, "unsupported syntax: async")
				return nil
			}
			comp.Clauses = append(comp.Clauses, ast.CompClause{
				Target: c.target(ch.ChildByFieldName("left")),
				Iter:   c.expr(ch.ChildByFieldName("right")),
			})
		case "if_clause":
			if len(comp.Clauses) == 0 {
				c.fail(ch, "invalid syntax")
				return nil
			}
			kids := c.named(ch)
			if len(kids) == 0 {
				c.fail(ch, "invalid syntax")
				return nil
			}
			last := &comp.Clauses[len(comp.Clauses)-1]
			last.Ifs = append(last.Ifs, c.expr(kids[0]))
		}
	}
	if len(comp.Clauses) == 0 {
		c.fail(n, "invalid syntax")
		return nil
	}
	return comp
}
