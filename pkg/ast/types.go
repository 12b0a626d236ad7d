// Package ast defines the program tree consumed by the Quill compiler.
//
// A program is an ordered list of nodes. Statement nodes (let, assignment,
// conditional, loop, block, print, function definition) and expression
// nodes (literals, identifiers, operations) may both appear in statement
// position.
package ast

// ---------------------------------------------------------------------------
// Node interfaces
// ---------------------------------------------------------------------------

// Node is the interface implemented by all tree nodes.
type Node interface {
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// IntLiteral represents an integer literal.
type IntLiteral struct {
	Value int64
}

func (n *IntLiteral) node() {}
func (n *IntLiteral) expr() {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	Value float64
}

func (n *FloatLiteral) node() {}
func (n *FloatLiteral) expr() {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	Value string
}

func (n *StringLiteral) node() {}
func (n *StringLiteral) expr() {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	Value bool
}

func (n *BoolLiteral) node() {}
func (n *BoolLiteral) expr() {}

// NilLiteral represents nil.
type NilLiteral struct{}

func (n *NilLiteral) node() {}
func (n *NilLiteral) expr() {}

// Identifier references a variable by name.
type Identifier struct {
	Name string
}

func (n *Identifier) node() {}
func (n *Identifier) expr() {}

// Binary represents left op right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *Binary) node() {}
func (n *Binary) expr() {}

// Unary represents op operand.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (n *Unary) node() {}
func (n *Unary) expr() {}

// Postfix represents an operation applied after its operand: a call
// f(args...), an index a[i], or exponentiation a ** b (Args holds b).
type Postfix struct {
	Op      PostfixOp
	Operand Expr
	Args    []Expr
}

func (n *Postfix) node() {}
func (n *Postfix) expr() {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Let declares a variable: let name = value.
type Let struct {
	Name  string
	Value Expr
}

func (n *Let) node() {}
func (n *Let) stmt() {}

// Assign stores into an existing variable: name op value, where op is one
// of = += -= *= /=.
type Assign struct {
	Name  string
	Op    AssignOp
	Value Expr
}

func (n *Assign) node() {}
func (n *Assign) stmt() {}

// If is a conditional. Else is nil when there is no else branch.
type If struct {
	Cond Expr
	Then Node
	Else Node
}

func (n *If) node() {}
func (n *If) stmt() {}

// While is a pre-tested loop.
type While struct {
	Cond Expr
	Body Node
}

func (n *While) node() {}
func (n *While) stmt() {}

// Block is a braced statement list that opens a new lexical scope.
type Block struct {
	Body []Node
}

func (n *Block) node() {}
func (n *Block) stmt() {}

// Print appends a value to the program output.
type Print struct {
	Value Expr
}

func (n *Print) node() {}
func (n *Print) stmt() {}

// Function is a named function definition.
type Function struct {
	Name   string
	Params []string
	Body   []Node
}

func (n *Function) node() {}
func (n *Function) stmt() {}
