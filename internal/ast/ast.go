// Package ast defines the executable syntax tree the interpreter walks.
//
// Every node records where it came from: 1-based lines and 0-based byte
// columns, the same convention CPython uses for instruction positions.
package ast

// Pos is the source extent of a node.
type Pos struct {
	Line    int
	Col     int
	EndLine int
	EndCol  int
}

// Position returns p; embedding Pos gives every node its Position method.
func (p Pos) Position() Pos { return p }

// Valid reports whether p refers to real source.
func (p Pos) Valid() bool { return p.Line > 0 && p.EndLine >= p.Line }

// Node is implemented by every syntax tree node.
type Node interface {
	Position() Pos
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Scope is the result of static name analysis for one function, class or
// module body.
type Scope struct {
	Locals    map[string]bool
	Globals   map[string]bool
	Nonlocals map[string]bool
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{
		Locals:    map[string]bool{},
		Globals:   map[string]bool{},
		Nonlocals: map[string]bool{},
	}
}

// Module is a parsed program.
type Module struct {
	Body  []Stmt
	Scope *Scope
}

// ParamKind distinguishes the flavours of function parameters.
type ParamKind int

const (
	ParamNormal ParamKind = iota
	ParamVarArgs
	ParamKeywordOnly
	ParamKwArgs
)

// Param is one declared parameter.
type Param struct {
	Name    string
	Default Expr
	Kind    ParamKind
}

// Arg is one call argument.
type Arg struct {
	Name       string // keyword name, "" for positional
	Value      Expr
	Star       bool // *value
	DoubleStar bool // **value
}

// FPart is one piece of an f-string: either literal text or an interpolated
// expression with its optional conversion and format spec.
type FPart struct {
	Lit  string
	Expr Expr
	Conv byte
	Spec string
}

// CompKind names the comprehension flavours.
type CompKind int

const (
	CompList CompKind = iota
	CompSet
	CompDict
	CompGen
)

// CompClause is one `for target in iter if ...` clause.
type CompClause struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

// Handler is one except clause.
type Handler struct {
	Pos
	Type Expr // nil catches everything
	Name string
	Body []Stmt
}

// Statements.
type (
	ExprStmt struct {
		Pos
		X Expr
	}
	Assign struct {
		Pos
		Targets []Expr
		Value   Expr
	}
	AugAssign struct {
		Pos
		Target Expr
		Op     string
		Value  Expr
	}
	If struct {
		Pos
		Cond Expr
		Body []Stmt
		Else []Stmt
	}
	While struct {
		Pos
		Cond Expr
		Body []Stmt
		Else []Stmt
	}
	For struct {
		Pos
		Target Expr
		Iter   Expr
		Body   []Stmt
		Else   []Stmt
	}
	Break    struct{ Pos }
	Continue struct{ Pos }
	Pass     struct{ Pos }
	Return   struct {
		Pos
		Value Expr
	}
	FuncDef struct {
		Pos
		Name   string
		Params []Param
		Body   []Stmt
		Scope  *Scope
	}
	ClassDef struct {
		Pos
		Name  string
		Bases []Expr
		Body  []Stmt
		Scope *Scope
	}
	Try struct {
		Pos
		Body     []Stmt
		Handlers []*Handler
		Else     []Stmt
		Finally  []Stmt
	}
	Raise struct {
		Pos
		Exc   Expr
		Cause Expr
	}
	Global struct {
		Pos
		Names []string
	}
	Nonlocal struct {
		Pos
		Names []string
	}
	Delete struct {
		Pos
		Targets []Expr
	}
	Assert struct {
		Pos
		Test Expr
		Msg  Expr
	}
	Import struct {
		Pos
		Module string
	}
)

// Expressions.
type (
	Name struct {
		Pos
		ID string
	}
	// Const holds an int64, *big.Int, float64, string, bool or nil.
	Const struct {
		Pos
		Value any
	}
	FString struct {
		Pos
		Parts []FPart
	}
	BinOp struct {
		Pos
		Op   string
		L, R Expr
	}
	UnaryOp struct {
		Pos
		Op string
		X  Expr
	}
	BoolOp struct {
		Pos
		Op   string
		L, R Expr
	}
	Not struct {
		Pos
		X Expr
	}
	Compare struct {
		Pos
		First Expr
		Ops   []string
		Rest  []Expr
	}
	IfExp struct {
		Pos
		Cond, Then, Else Expr
	}
	Call struct {
		Pos
		Func Expr
		Args []Arg
	}
	Attribute struct {
		Pos
		X    Expr
		Name string
	}
	Subscript struct {
		Pos
		X     Expr
		Index Expr
	}
	Slice struct {
		Pos
		Lo, Hi, Step Expr
	}
	ListExpr struct {
		Pos
		Elems []Expr
	}
	TupleExpr struct {
		Pos
		Elems []Expr
	}
	SetExpr struct {
		Pos
		Elems []Expr
	}
	// DictExpr keys are nil for **splat entries.
	DictExpr struct {
		Pos
		Keys   []Expr
		Values []Expr
	}
	Starred struct {
		Pos
		X Expr
	}
	Comprehension struct {
		Pos
		Kind    CompKind
		Elt     Expr
		Key     Expr
		Clauses []CompClause
	}
	Lambda struct {
		Pos
		Params []Param
		Body   Expr
		Scope  *Scope
	}
	NamedExpr struct {
		Pos
		Target string
		Value  Expr
	}
)

func (*ExprStmt) stmtNode()  {}
func (*Assign) stmtNode()    {}
func (*AugAssign) stmtNode() {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*For) stmtNode()       {}
func (*Break) stmtNode()     {}
func (*Continue) stmtNode()  {}
func (*Pass) stmtNode()      {}
func (*Return) stmtNode()    {}
func (*FuncDef) stmtNode()   {}
func (*ClassDef) stmtNode()  {}
func (*Try) stmtNode()       {}
func (*Raise) stmtNode()     {}
func (*Global) stmtNode()    {}
func (*Nonlocal) stmtNode()  {}
func (*Delete) stmtNode()    {}
func (*Assert) stmtNode()    {}
func (*Import) stmtNode()    {}

func (*Name) exprNode()          {}
func (*Const) exprNode()         {}
func (*FString) exprNode()       {}
func (*BinOp) exprNode()         {}
func (*UnaryOp) exprNode()       {}
func (*BoolOp) exprNode()        {}
func (*Not) exprNode()           {}
func (*Compare) exprNode()       {}
func (*IfExp) exprNode()         {}
func (*Call) exprNode()          {}
func (*Attribute) exprNode()     {}
func (*Subscript) exprNode()     {}
func (*Slice) exprNode()         {}
func (*ListExpr) exprNode()      {}
func (*TupleExpr) exprNode()     {}
func (*SetExpr) exprNode()       {}
func (*DictExpr) exprNode()      {}
func (*Starred) exprNode()       {}
func (*Comprehension) exprNode() {}
func (*Lambda) exprNode()        {}
func (*NamedExpr) exprNode()     {}
