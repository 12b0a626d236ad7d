package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/failure"
	"github.com/chazu/quill/pkg/interner"
)

// ---------------------------------------------------------------------------
// VM: The Quill Virtual Machine
// ---------------------------------------------------------------------------

// VM executes one chunk. It owns its operand stack; the global table may
// be shared with later runs through WithGlobals.
type VM struct {
	chunk   *bytecode.Chunk
	strings *interner.Interner
	globals *Globals
	stack   *Stack

	ip      int // next cell to fetch
	start   int // offset of the instruction being executed
	steps   int
	outputs []bytecode.Value

	// Configuration
	capacity  int
	stepLimit int
	trace     bool
	printHook func(bytecode.Value)
	log       commonlog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithStackCapacity sets the operand stack size.
func WithStackCapacity(n int) Option {
	return func(vm *VM) {
		vm.capacity = n
	}
}

// WithGlobals runs against an existing global table.
func WithGlobals(g *Globals) Option {
	return func(vm *VM) {
		vm.globals = g
	}
}

// WithPrintHook calls fn for every printed value as it is produced.
func WithPrintHook(fn func(bytecode.Value)) Option {
	return func(vm *VM) {
		vm.printHook = fn
	}
}

// WithStepLimit aborts the run after n instructions. Zero means no limit.
func WithStepLimit(n int) Option {
	return func(vm *VM) {
		vm.stepLimit = n
	}
}

// WithTrace logs every instruction at debug level.
func WithTrace(trace bool) Option {
	return func(vm *VM) {
		vm.trace = trace
	}
}

// WithLogger overrides the package logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// New creates a VM for chunk. in must be the interner the chunk was
// compiled with.
func New(chunk *bytecode.Chunk, in *interner.Interner, opts ...Option) *VM {
	vm := &VM{
		chunk:    chunk,
		strings:  in,
		capacity: DefaultStackCapacity,
		log:      commonlog.GetLogger("quill.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.strings == nil {
		vm.strings = interner.New()
	}
	if vm.globals == nil {
		vm.globals = NewGlobals()
	}
	vm.stack = NewStack(vm.capacity)
	return vm
}

// Run executes chunk with a fresh VM.
func Run(chunk *bytecode.Chunk, in *interner.Interner, opts ...Option) ([]bytecode.Value, error) {
	return New(chunk, in, opts...).Run()
}

// Globals returns the VM's global table.
func (vm *VM) Globals() *Globals {
	return vm.globals
}

// Steps returns the number of instructions executed by the last run.
func (vm *VM) Steps() int {
	return vm.steps
}

// Run executes the chunk from its first cell and returns the printed
// values. Any failure aborts the run; no partial output is returned.
func (vm *VM) Run() ([]bytecode.Value, error) {
	vm.ip, vm.start, vm.steps = 0, 0, 0
	vm.outputs = nil
	vm.stack.Reset()

	if vm.chunk == nil {
		return nil, failure.Runtimef(failure.InvalidOperand, failure.NoOffset, "no chunk to run")
	}

	if err := vm.run(); err != nil {
		vm.log.Debugf("run failed after %d steps: %v", vm.steps, err)
		return nil, err
	}
	vm.log.Debugf("run finished after %d steps with %d output(s)", vm.steps, len(vm.outputs))
	return vm.outputs, nil
}

// run is the main execution loop.
func (vm *VM) run() error {
	code := vm.chunk.Code
	for vm.ip < len(code) {
		vm.start = vm.ip
		cell := code[vm.ip]
		vm.ip++

		if cell.Kind != bytecode.CellInstruction {
			return vm.fail(failure.InvalidOperand, "expected instruction, found constant reference #%d", cell.Index)
		}
		op := cell.Op

		vm.steps++
		if vm.stepLimit > 0 && vm.steps > vm.stepLimit {
			return vm.fail(failure.StepLimit, "step limit of %d exceeded", vm.stepLimit)
		}
		if vm.trace {
			vm.log.Debugf("%s  sp=%d", vm.chunk.DisassembleInstruction(vm.start, vm.strings), vm.stack.Len())
		}

		var err error
		switch op {
		// ============ Stack Operations ============
		case bytecode.OpPop:
			_, err = vm.pop()

		// ============ Constants ============
		case bytecode.OpConstant:
			var v bytecode.Value
			if v, err = vm.readOperand(op); err == nil {
				err = vm.push(v)
			}

		case bytecode.OpNil:
			err = vm.push(bytecode.Nil())

		case bytecode.OpTrue:
			err = vm.push(bytecode.Bool(true))

		case bytecode.OpFalse:
			err = vm.push(bytecode.Bool(false))

		// ============ Globals ============
		case bytecode.OpDefineGlobal:
			err = vm.defineGlobal()

		case bytecode.OpGetGlobal:
			err = vm.getGlobal()

		case bytecode.OpSetGlobal:
			err = vm.setGlobal()

		// ============ Locals ============
		case bytecode.OpGetLocal:
			err = vm.getLocal()

		case bytecode.OpSetLocal:
			err = vm.setLocal()

		// ============ Arithmetic ============
		case bytecode.OpAdd:
			err = vm.add()

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide, bytecode.OpPower:
			err = vm.arithmetic(op)

		case bytecode.OpNegate:
			err = vm.negate()

		// ============ Comparison and Logic ============
		case bytecode.OpEqual:
			err = vm.equal()

		case bytecode.OpGreater, bytecode.OpLess:
			err = vm.compare(op)

		case bytecode.OpNot:
			err = vm.not()

		// ============ Control Flow ============
		case bytecode.OpJump, bytecode.OpLoop:
			var target int
			if target, err = vm.readJump(op); err == nil {
				vm.ip = target
			}

		case bytecode.OpJumpIfFalse:
			var target int
			if target, err = vm.readJump(op); err == nil {
				var cond bytecode.Value
				if cond, err = vm.peek(); err == nil && cond.IsFalse() {
					vm.ip = target
				}
			}

		// ============ Output ============
		case bytecode.OpPrint:
			var v bytecode.Value
			if v, err = vm.pop(); err == nil {
				vm.outputs = append(vm.outputs, v)
				if vm.printHook != nil {
					vm.printHook(v)
				}
			}

		case bytecode.OpReturn:
			return nil

		default:
			err = vm.fail(failure.InvalidOperand, "unknown opcode 0x%02X", byte(op))
		}

		if err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (vm *VM) defineGlobal() error {
	name, err := vm.readOperand(bytecode.OpDefineGlobal)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.globals.Define(name.Ref, v)
	return nil
}

func (vm *VM) getGlobal() error {
	name, err := vm.readOperand(bytecode.OpGetGlobal)
	if err != nil {
		return err
	}
	v, ok := vm.globals.Get(name.Ref)
	if !ok {
		return vm.fail(failure.UndefinedVariable, "undefined variable '%s'", vm.nameOf(name))
	}
	return vm.push(v)
}

// setGlobal stores the top of stack into an existing global and leaves it
// on the stack. Assigning an undefined global is an error, as reading one is.
func (vm *VM) setGlobal() error {
	name, err := vm.readOperand(bytecode.OpSetGlobal)
	if err != nil {
		return err
	}
	v, err := vm.peek()
	if err != nil {
		return err
	}
	if !vm.globals.Set(name.Ref, v) {
		return vm.fail(failure.UndefinedVariable, "assignment to undefined variable '%s'", vm.nameOf(name))
	}
	return nil
}

func (vm *VM) getLocal() error {
	slot, err := vm.readSlot(bytecode.OpGetLocal)
	if err != nil {
		return err
	}
	v, ok := vm.stack.Get(slot)
	if !ok {
		return vm.deadSlot(slot)
	}
	return vm.push(v)
}

func (vm *VM) setLocal() error {
	slot, err := vm.readSlot(bytecode.OpSetLocal)
	if err != nil {
		return err
	}
	v, err := vm.peek()
	if err != nil {
		return err
	}
	if !vm.stack.Set(slot, v) {
		return vm.deadSlot(slot)
	}
	return nil
}

func (vm *VM) deadSlot(slot int) error {
	return vm.fail(failure.InvalidOperand, "local slot %d is not live (stack height %d)", slot, vm.stack.Len())
}

func (vm *VM) nameOf(name bytecode.Value) string {
	if text, ok := vm.strings.Text(name.Ref); ok {
		return text
	}
	return name.String()
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

// readOperand consumes the constant reference following op and checks that
// it has the kind op expects.
func (vm *VM) readOperand(op bytecode.Opcode) (bytecode.Value, error) {
	code := vm.chunk.Code
	if vm.ip >= len(code) {
		return bytecode.Value{}, vm.fail(failure.InvalidOperand, "%s is missing its operand", op)
	}
	ref := code[vm.ip]
	vm.ip++
	if ref.Kind != bytecode.CellConstant {
		return bytecode.Value{}, vm.fail(failure.InvalidOperand, "%s operand is not a constant reference", op)
	}
	v, ok := vm.chunk.Constant(ref.Index)
	if !ok {
		return bytecode.Value{}, vm.fail(failure.InvalidOperand, "constant #%d out of range (pool has %d)", ref.Index, vm.chunk.ConstantCount())
	}
	if !bytecode.GetOpcodeInfo(op).Operand.Accepts(v.Kind) {
		return bytecode.Value{}, vm.fail(failure.InvalidOperand, "%s cannot take a %s operand", op, v.Kind)
	}
	return v, nil
}

// readSlot decodes a local slot operand. Whether the slot is live is
// checked by the stack access itself.
func (vm *VM) readSlot(op bytecode.Opcode) (int, error) {
	v, err := vm.readOperand(op)
	if err != nil {
		return 0, err
	}
	if v.Int < 0 || v.Int >= int64(vm.stack.Cap()) {
		return 0, vm.fail(failure.InvalidOperand, "local slot %d out of range (capacity %d)", v.Int, vm.stack.Cap())
	}
	return int(v.Int), nil
}

// readJump decodes a jump target. Targets must lie inside the code or at
// its end.
func (vm *VM) readJump(op bytecode.Opcode) (int, error) {
	v, err := vm.readOperand(op)
	if err != nil {
		return 0, err
	}
	if v.Pos < 0 || v.Pos > len(vm.chunk.Code) {
		return 0, vm.fail(failure.InvalidJump, "%s target %04X outside code (length %d)", op, v.Pos, len(vm.chunk.Code))
	}
	return v.Pos, nil
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v bytecode.Value) error {
	if !vm.stack.Push(v) {
		return vm.fail(failure.StackOverflow, "operand stack overflow (capacity %d)", vm.stack.Cap())
	}
	return nil
}

func (vm *VM) pop() (bytecode.Value, error) {
	v, ok := vm.stack.Pop()
	if !ok {
		return v, vm.fail(failure.StackUnderflow, "operand stack underflow")
	}
	return v, nil
}

// pop2 pops the right then the left operand of a binary instruction.
func (vm *VM) pop2() (b, a bytecode.Value, err error) {
	if b, err = vm.pop(); err != nil {
		return
	}
	a, err = vm.pop()
	return
}

func (vm *VM) peek() (bytecode.Value, error) {
	v, ok := vm.stack.Peek(0)
	if !ok {
		return v, vm.fail(failure.StackUnderflow, "operand stack underflow")
	}
	return v, nil
}

// fail builds a runtime error located at the current instruction.
func (vm *VM) fail(code failure.Code, format string, args ...any) error {
	return failure.Runtimef(code, vm.start, format, args...)
}

// String summarizes the VM state for debugging.
func (vm *VM) String() string {
	return fmt.Sprintf("VM{ip=%04X sp=%d globals=%d steps=%d}", vm.ip, vm.stack.Len(), vm.globals.Len(), vm.steps)
}
