package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/quill/pkg/ast"
	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/failure"
	"github.com/chazu/quill/pkg/interner"
)

// DefaultMaxLocals is the number of block-scoped locals that may be live
// at once.
const DefaultMaxLocals = 256

// binaryOps lists the instruction sequence for each infix operator. The
// derived comparisons negate their complement.
var binaryOps = map[ast.BinaryOp][]bytecode.Opcode{
	ast.Add:          {bytecode.OpAdd},
	ast.Subtract:     {bytecode.OpSubtract},
	ast.Multiply:     {bytecode.OpMultiply},
	ast.Divide:       {bytecode.OpDivide},
	ast.MatMul:       {bytecode.OpMultiply},
	ast.Equal:        {bytecode.OpEqual},
	ast.NotEqual:     {bytecode.OpEqual, bytecode.OpNot},
	ast.Less:         {bytecode.OpLess},
	ast.LessEqual:    {bytecode.OpGreater, bytecode.OpNot},
	ast.Greater:      {bytecode.OpGreater},
	ast.GreaterEqual: {bytecode.OpLess, bytecode.OpNot},
}

// ---------------------------------------------------------------------------
// Codegen: Compile program trees to bytecode
// ---------------------------------------------------------------------------

// Compiler compiles program trees to bytecode chunks.
type Compiler struct {
	strings   *interner.Interner
	maxLocals int
	log       commonlog.Logger

	// Current compilation context
	chunk  *bytecode.Chunk
	locals []Local
	depth  int
	height int // operand stack height implied by the code emitted so far
	errors []*failure.Error
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithInterner compiles into an existing interner, so that ids agree with
// earlier compilations in the same session.
func WithInterner(in *interner.Interner) Option {
	return func(c *Compiler) {
		c.strings = in
	}
}

// WithMaxLocals overrides DefaultMaxLocals.
func WithMaxLocals(n int) Option {
	return func(c *Compiler) {
		c.maxLocals = n
	}
}

// WithLogger overrides the package logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Compiler) {
		c.log = log
	}
}

// New creates a new compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		maxLocals: DefaultMaxLocals,
		log:       commonlog.GetLogger("quill.compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strings == nil {
		c.strings = interner.New()
	}
	return c
}

// Interner returns the interner the compiler writes names and strings into.
func (c *Compiler) Interner() *interner.Interner {
	return c.strings
}

// Errors returns every error recorded by the last Compile call.
func (c *Compiler) Errors() []*failure.Error {
	return c.errors
}

// errorf records a compilation error.
func (c *Compiler) errorf(code failure.Code, format string, args ...any) {
	c.errors = append(c.errors, failure.Compilef(code, format, args...))
}

// Compile lowers program into a sealed chunk. On failure it returns the
// first compile error; Errors lists all of them.
func (c *Compiler) Compile(program []ast.Node) (*bytecode.Chunk, *interner.Interner, error) {
	c.chunk = bytecode.NewChunk()
	c.locals = nil
	c.depth = 0
	c.height = 0
	c.errors = nil

	c.compileStatements(program)
	c.emit(bytecode.OpReturn)

	if len(c.errors) > 0 {
		c.log.Debugf("compile failed with %d error(s): %v", len(c.errors), c.errors[0])
		return nil, nil, c.errors[0]
	}
	if err := c.chunk.Seal(); err != nil {
		return nil, nil, failure.Wrap(failure.Internal, err, "sealing chunk")
	}

	c.log.Debugf("compiled %d node(s) into %d cells, %d constants", len(program), c.chunk.CodeLen(), c.chunk.ConstantCount())
	return c.chunk, c.strings, nil
}

// Compile is a convenience wrapper around New(opts...).Compile(program).
func Compile(program []ast.Node, opts ...Option) (*bytecode.Chunk, *interner.Interner, error) {
	return New(opts...).Compile(program)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) track(op bytecode.Opcode) {
	c.height += bytecode.GetOpcodeInfo(op).StackEffect()
}

func (c *Compiler) emit(op bytecode.Opcode) {
	c.chunk.Emit(op)
	c.track(op)
}

func (c *Compiler) emitOperand(op bytecode.Opcode, operand bytecode.Value) {
	c.chunk.EmitOperand(op, operand)
	c.track(op)
}

func (c *Compiler) emitJump(op bytecode.Opcode) *bytecode.Patch {
	p := c.chunk.EmitJump(op)
	c.track(op)
	return p
}

func (c *Compiler) emitLoop(start int) {
	c.chunk.EmitLoop(start)
	c.track(bytecode.OpLoop)
}

func (c *Compiler) patchHere(p *bytecode.Patch) {
	if err := p.ResolveHere(); err != nil {
		c.errorf(failure.Internal, "resolving jump at %04X: %v", p.Offset(), err)
	}
}

func (c *Compiler) identifier(name string) bytecode.Value {
	return bytecode.Identifier(c.strings.Intern(name))
}

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

// compileStatements compiles a statement list. Between statements the
// operand stack holds exactly the live locals.
func (c *Compiler) compileStatements(nodes []ast.Node) {
	for _, n := range nodes {
		c.compileNode(n)
		if len(c.errors) == 0 && c.height != len(c.locals) {
			c.errorf(failure.Internal, "operand stack height %d after %T, expected %d", c.height, n, len(c.locals))
		}
	}
}

// compileNode compiles a node in statement position. Expression results
// are discarded.
func (c *Compiler) compileNode(n ast.Node) {
	switch n := n.(type) {
	case ast.Stmt:
		c.compileStmt(n)
	case ast.Expr:
		c.compileExpr(n)
		c.emit(bytecode.OpPop)
	default:
		c.errorf(failure.Malformed, "unknown node type: %T", n)
	}
}

func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.Let:
		c.compileLet(s)
	case *ast.Assign:
		c.compileAssign(s)
	case *ast.If:
		c.compileIf(s)
	case *ast.While:
		c.compileWhile(s)
	case *ast.Block:
		c.beginScope()
		c.compileStatements(s.Body)
		c.endScope()
	case *ast.Print:
		c.compileExpr(s.Value)
		c.emit(bytecode.OpPrint)
	case *ast.Function:
		c.errorf(failure.Unsupported, "function definitions are not supported (fn %s)", s.Name)
	default:
		c.errorf(failure.Malformed, "unknown statement type: %T", stmt)
	}
}

// compileLet defines a global at top level and a local inside a block. The
// initializer is compiled first, so it sees any outer binding of the name.
func (c *Compiler) compileLet(let *ast.Let) {
	c.compileExpr(let.Value)
	if c.depth == 0 {
		c.emitOperand(bytecode.OpDefineGlobal, c.identifier(let.Name))
		return
	}
	c.declareLocal(let.Name)
}

// compileAssign desugars compound assignment to name = name op value.
func (c *Compiler) compileAssign(assign *ast.Assign) {
	value := assign.Value
	if op, ok := assign.Op.Binary(); ok {
		value = &ast.Binary{
			Op:    op,
			Left:  &ast.Identifier{Name: assign.Name},
			Right: assign.Value,
		}
	}
	c.compileExpr(value)

	if slot, ok := c.resolveLocal(assign.Name); ok {
		c.emitOperand(bytecode.OpSetLocal, bytecode.Int(int64(slot)))
	} else {
		c.emitOperand(bytecode.OpSetGlobal, c.identifier(assign.Name))
	}
	c.emit(bytecode.OpPop)
}

// compileIf emits:
//
//	cond; JUMP_IF_FALSE else; POP; then; JUMP end
//	else: POP; [else branch]
//	end:
func (c *Compiler) compileIf(s *ast.If) {
	c.compileExpr(s.Cond)
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.compileBranch(s.Then)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchHere(elseJump)
	c.height++ // the condition is still on the stack along the false edge
	c.emit(bytecode.OpPop)
	if s.Else != nil {
		c.compileBranch(s.Else)
	}
	c.patchHere(endJump)
}

// compileWhile emits:
//
//	start: cond; JUMP_IF_FALSE exit; POP; body; LOOP start
//	exit:  POP
func (c *Compiler) compileWhile(s *ast.While) {
	start := c.chunk.CurrentOffset()
	c.compileExpr(s.Cond)
	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.compileBranch(s.Body)
	c.emitLoop(start)

	c.patchHere(exitJump)
	c.height++ // the condition is still on the stack along the exit edge
	c.emit(bytecode.OpPop)
}

// compileBranch compiles the body of a conditional or loop. A bare let
// would leave a local on only one path, so inside a block it must be
// wrapped in a block of its own.
func (c *Compiler) compileBranch(n ast.Node) {
	if let, ok := n.(*ast.Let); ok && c.depth > 0 {
		c.errorf(failure.Malformed, "local %q declared as a branch body; wrap it in a block", let.Name)
		return
	}
	c.compileNode(n)
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		c.emitOperand(bytecode.OpConstant, bytecode.Int(e.Value))
	case *ast.FloatLiteral:
		c.emitOperand(bytecode.OpConstant, bytecode.Float(e.Value))
	case *ast.StringLiteral:
		c.emitOperand(bytecode.OpConstant, bytecode.String(c.strings.Intern(e.Value)))
	case *ast.BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpTrue)
		} else {
			c.emit(bytecode.OpFalse)
		}
	case *ast.NilLiteral:
		c.emit(bytecode.OpNil)
	case *ast.Identifier:
		c.compileVariable(e.Name)
	case *ast.Binary:
		c.compileBinary(e)
	case *ast.Unary:
		c.compileUnary(e)
	case *ast.Postfix:
		c.compilePostfix(e)
	default:
		c.errorf(failure.Malformed, "unknown expression type: %T", expr)
		c.height++ // keep the one-in/one-out accounting balanced
	}
}

func (c *Compiler) compileVariable(name string) {
	if slot, ok := c.resolveLocal(name); ok {
		c.emitOperand(bytecode.OpGetLocal, bytecode.Int(int64(slot)))
		return
	}
	c.emitOperand(bytecode.OpGetGlobal, c.identifier(name))
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	ops, ok := binaryOps[e.Op]
	if !ok {
		c.errorf(failure.Malformed, "unknown binary operator %v", e.Op)
		c.height++
		return
	}
	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	for _, op := range ops {
		c.emit(op)
	}
}

func (c *Compiler) compileUnary(e *ast.Unary) {
	c.compileExpr(e.Operand)
	switch e.Op {
	case ast.Negate:
		c.emit(bytecode.OpNegate)
	case ast.Not:
		c.emit(bytecode.OpNot)
	default:
		c.errorf(failure.Malformed, "unknown unary operator %v", e.Op)
	}
}

func (c *Compiler) compilePostfix(e *ast.Postfix) {
	switch e.Op {
	case ast.Power:
		if len(e.Args) != 1 {
			c.errorf(failure.Malformed, "** takes exactly one exponent, got %d", len(e.Args))
			c.height++
			return
		}
		c.compileExpr(e.Operand)
		c.compileExpr(e.Args[0])
		c.emit(bytecode.OpPower)
	case ast.Call:
		c.errorf(failure.Unsupported, "function calls are not supported")
		c.height++
	case ast.Index:
		c.errorf(failure.Unsupported, "indexing is not supported")
		c.height++
	default:
		c.errorf(failure.Malformed, "unknown postfix operator %v", e.Op)
		c.height++
	}
}
