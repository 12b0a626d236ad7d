package bytecode

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/quill/pkg/interner"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

var (
	// ErrPatchResolved is returned when a jump patch is resolved twice.
	ErrPatchResolved = errors.New("bytecode: jump patch already resolved")

	// ErrOpenPatches is returned by Seal while jump patches are outstanding.
	ErrOpenPatches = errors.New("bytecode: unresolved jump patches")

	// ErrSealed is returned for writes to a sealed chunk.
	ErrSealed = errors.New("bytecode: chunk is sealed")

	// ErrInvalidChunk wraps every structural problem found by Validate.
	ErrInvalidChunk = errors.New("bytecode: invalid chunk")
)

// CellKind distinguishes instruction cells from constant references.
type CellKind uint8

const (
	CellInstruction CellKind = iota
	CellConstant
)

// Cell is one element of a chunk's code: either an opcode or a reference
// into the constant pool.
type Cell struct {
	Kind  CellKind `cbor:"1,keyasint"`
	Op    Opcode   `cbor:"2,keyasint,omitempty"`
	Index int      `cbor:"3,keyasint,omitempty"`
}

// Instruction creates an instruction cell.
func Instruction(op Opcode) Cell {
	return Cell{Kind: CellInstruction, Op: op}
}

// ConstantRef creates a constant reference cell.
func ConstantRef(index int) Cell {
	return Cell{Kind: CellConstant, Index: index}
}

// String returns a short form of the cell.
func (c Cell) String() string {
	if c.Kind == CellConstant {
		return fmt.Sprintf("#%d", c.Index)
	}
	return c.Op.String()
}

// constKey identifies a constant for de-duplication. Floats are keyed by
// their bit pattern so that 0.0 and -0.0 stay distinct.
type constKey struct {
	kind Kind
	bits uint64
	ref  interner.ID
}

func keyOf(v Value) constKey {
	k := constKey{kind: v.Kind, ref: v.Ref}
	switch v.Kind {
	case KindBoolean:
		if v.Bool {
			k.bits = 1
		}
	case KindInteger:
		k.bits = uint64(v.Int)
	case KindFloat:
		k.bits = math.Float64bits(v.Float)
	}
	return k
}

// Chunk is a compiled program: a flat sequence of cells plus the constant
// pool they reference. A chunk is mutable while the compiler emits into it
// and read-only once sealed.
type Chunk struct {
	Version   uint16
	Code      []Cell
	Constants []Value

	constIndex map[constKey]int
	open       int   // jump patches not yet resolved
	sealed     bool  // no further writes allowed
	err        error // first write attempted after sealing
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version:    BytecodeVersion,
		Code:       make([]Cell, 0, 64),
		Constants:  make([]Value, 0, 16),
		constIndex: make(map[constKey]int),
	}
}

func (c *Chunk) writable() bool {
	if c.sealed {
		if c.err == nil {
			c.err = ErrSealed
		}
		return false
	}
	return true
}

// AddConstant adds a value to the pool and returns its index.
// Identical values share an index; jump offsets never do, because each one
// is rewritten independently when its patch is resolved.
func (c *Chunk) AddConstant(v Value) int {
	if !c.writable() {
		return -1
	}
	if v.Kind != KindJumpOffset {
		key := keyOf(v)
		if idx, ok := c.constIndex[key]; ok {
			return idx
		}
		idx := len(c.Constants)
		c.Constants = append(c.Constants, v)
		c.constIndex[key] = idx
		return idx
	}
	idx := len(c.Constants)
	c.Constants = append(c.Constants, v)
	return idx
}

// Constant returns the pool entry at index.
func (c *Chunk) Constant(index int) (Value, bool) {
	if index < 0 || index >= len(c.Constants) {
		return Value{}, false
	}
	return c.Constants[index], true
}

// Emit appends an instruction cell and returns its offset.
func (c *Chunk) Emit(op Opcode) int {
	if !c.writable() {
		return -1
	}
	offset := len(c.Code)
	c.Code = append(c.Code, Instruction(op))
	return offset
}

// EmitOperand appends an instruction followed by a reference to operand,
// and returns the instruction's offset.
func (c *Chunk) EmitOperand(op Opcode, operand Value) int {
	offset := c.Emit(op)
	if offset < 0 {
		return offset
	}
	c.Code = append(c.Code, ConstantRef(c.AddConstant(operand)))
	return offset
}

// EmitJump appends a forward jump with a placeholder target. The returned
// patch must be resolved exactly once before the chunk is sealed.
func (c *Chunk) EmitJump(op Opcode) *Patch {
	offset := c.EmitOperand(op, JumpOffset(-1))
	if offset < 0 {
		return &Patch{chunk: c, offset: -1, resolved: true}
	}
	c.open++
	return &Patch{
		chunk:  c,
		offset: offset,
		index:  c.Code[offset+1].Index,
	}
}

// EmitLoop appends a backward jump to loopStart.
func (c *Chunk) EmitLoop(loopStart int) int {
	return c.EmitOperand(OpLoop, JumpOffset(loopStart))
}

// CurrentOffset returns the offset the next emitted cell will occupy.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the number of cells.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// OpenPatches returns the number of unresolved jump patches.
func (c *Chunk) OpenPatches() int {
	return c.open
}

// Sealed reports whether the chunk has been sealed.
func (c *Chunk) Sealed() bool {
	return c.sealed
}

// Seal ends the mutation window. It fails if jump patches are outstanding,
// if a write was attempted after sealing, or if the chunk does not validate.
func (c *Chunk) Seal() error {
	if c.err != nil {
		return c.err
	}
	if c.sealed {
		return nil
	}
	if c.open > 0 {
		return fmt.Errorf("%w: %d outstanding", ErrOpenPatches, c.open)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.sealed = true
	return nil
}

// Validate checks the structural invariants of the chunk: every cell at an
// instruction position holds a known opcode, every operand cell is a
// constant reference of the kind its opcode expects, and every jump lands
// on an instruction inside the code.
func (c *Chunk) Validate() error {
	starts := make(map[int]bool, len(c.Code))
	var jumps []int // offsets of jump instructions

	for offset := 0; offset < len(c.Code); {
		cell := c.Code[offset]
		if cell.Kind != CellInstruction {
			return fmt.Errorf("%w: cell %04X: expected instruction, found constant reference", ErrInvalidChunk, offset)
		}
		if !cell.Op.IsValid() {
			return fmt.Errorf("%w: cell %04X: unknown opcode 0x%02X", ErrInvalidChunk, offset, byte(cell.Op))
		}
		starts[offset] = true

		info := GetOpcodeInfo(cell.Op)
		if info.Operand != OperandNone {
			if offset+1 >= len(c.Code) {
				return fmt.Errorf("%w: cell %04X: %s is missing its operand", ErrInvalidChunk, offset, cell.Op)
			}
			ref := c.Code[offset+1]
			if ref.Kind != CellConstant {
				return fmt.Errorf("%w: cell %04X: %s operand is not a constant reference", ErrInvalidChunk, offset, cell.Op)
			}
			v, ok := c.Constant(ref.Index)
			if !ok {
				return fmt.Errorf("%w: cell %04X: constant index %d out of range (pool has %d)", ErrInvalidChunk, offset, ref.Index, len(c.Constants))
			}
			if !info.Operand.Accepts(v.Kind) {
				return fmt.Errorf("%w: cell %04X: %s operand has kind %s", ErrInvalidChunk, offset, cell.Op, v.Kind)
			}
			if cell.Op.IsJump() {
				jumps = append(jumps, offset)
			}
		}
		offset += 1 + info.OperandLen()
	}

	for _, offset := range jumps {
		target := c.Constants[c.Code[offset+1].Index].Pos
		if !starts[target] {
			return fmt.Errorf("%w: cell %04X: %s target %04X is not an instruction", ErrInvalidChunk, offset, c.Code[offset].Op, target)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Patch: pending jump target
// ---------------------------------------------------------------------------

// Patch is the handle for a forward jump whose target is not yet known.
type Patch struct {
	chunk    *Chunk
	offset   int // offset of the jump instruction
	index    int // constant pool slot holding the target
	resolved bool
}

// Offset returns the offset of the jump instruction.
func (p *Patch) Offset() int {
	return p.offset
}

// Resolve sets the jump target to an absolute cell offset.
func (p *Patch) Resolve(target int) error {
	if p.resolved {
		return ErrPatchResolved
	}
	c := p.chunk
	if c.sealed {
		return ErrSealed
	}
	if target < 0 || target > len(c.Code) {
		return fmt.Errorf("%w: jump target %04X outside code (length %d)", ErrInvalidChunk, target, len(c.Code))
	}
	c.Constants[p.index] = JumpOffset(target)
	p.resolved = true
	c.open--
	return nil
}

// ResolveHere points the jump at the next cell to be emitted.
func (p *Patch) ResolveHere() error {
	return p.Resolve(len(p.chunk.Code))
}
