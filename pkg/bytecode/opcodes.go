package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpPop Opcode = 0x00 // Pop and discard top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConstant Opcode = 0x10 // Push constant: OpConstant <ref>
	OpNil      Opcode = 0x11 // Push nil
	OpTrue     Opcode = 0x12 // Push true
	OpFalse    Opcode = 0x13 // Push false

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpDefineGlobal Opcode = 0x20 // Pop and bind global: OpDefineGlobal <ident ref>
	OpGetGlobal    Opcode = 0x21 // Push global: OpGetGlobal <ident ref>
	OpSetGlobal    Opcode = 0x22 // Store TOS into existing global (TOS stays): OpSetGlobal <ident ref>
	OpGetLocal     Opcode = 0x28 // Push copy of stack slot: OpGetLocal <slot ref>
	OpSetLocal     Opcode = 0x29 // Store TOS into stack slot (TOS stays): OpSetLocal <slot ref>

	// ========================================================================
	// Arithmetic (0x30-0x3F)
	// ========================================================================

	OpAdd      Opcode = 0x30 // Pop two, push sum or string concatenation
	OpSubtract Opcode = 0x31 // Pop two, push difference (a - b where b is TOS)
	OpMultiply Opcode = 0x32 // Pop two, push product
	OpDivide   Opcode = 0x33 // Pop two, push quotient
	OpPower    Opcode = 0x34 // Pop two, push a raised to b
	OpNegate   Opcode = 0x35 // Negate top of stack

	// ========================================================================
	// Comparison and logic (0x40-0x4F)
	// ========================================================================

	OpEqual   Opcode = 0x40 // Pop two, push a == b
	OpGreater Opcode = 0x41 // Pop two, push a > b
	OpLess    Opcode = 0x42 // Pop two, push a < b
	OpNot     Opcode = 0x43 // Invert boolean on top of stack

	// ========================================================================
	// Control flow (0x50-0x5F)
	// ========================================================================

	OpJump        Opcode = 0x50 // Unconditional forward jump: OpJump <offset ref>
	OpJumpIfFalse Opcode = 0x51 // Jump if TOS is false, without popping: OpJumpIfFalse <offset ref>
	OpLoop        Opcode = 0x52 // Unconditional backward jump: OpLoop <offset ref>

	// ========================================================================
	// Output (0x60-0x6F)
	// ========================================================================

	OpPrint Opcode = 0x60 // Pop and append to program output

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Halt and yield program output
)

// OperandKind describes the constant an instruction's operand cell must
// refer to.
type OperandKind uint8

const (
	OperandNone       OperandKind = iota // no operand cell
	OperandValue                         // any program value
	OperandIdentifier                    // KindIdentifier
	OperandSlot                          // KindInteger holding a stack slot
	OperandJump                          // KindJumpOffset
)

// Accepts reports whether a constant of kind k is a valid operand.
func (ok OperandKind) Accepts(k Kind) bool {
	switch ok {
	case OperandValue:
		return k == KindNil || k == KindBoolean || k == KindInteger || k == KindFloat || k == KindString
	case OperandIdentifier:
		return k == KindIdentifier
	case OperandSlot:
		return k == KindInteger
	case OperandJump:
		return k == KindJumpOffset
	}
	return false
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack
	StackPush int         // How many values pushed to stack
	Operand   OperandKind // Kind of the single operand cell, if any
}

// OperandLen returns the number of operand cells following the opcode.
func (info OpcodeInfo) OperandLen() int {
	if info.Operand == OperandNone {
		return 0
	}
	return 1
}

// StackEffect returns the net change in stack height.
func (info OpcodeInfo) StackEffect() int {
	return info.StackPush - info.StackPop
}

// opcodeInfoTable maps opcodes to their metadata.
// Peeking instructions are recorded as pop-one/push-one.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpPop: {"POP", 1, 0, OperandNone},

	// Constants
	OpConstant: {"CONSTANT", 0, 1, OperandValue},
	OpNil:      {"NIL", 0, 1, OperandNone},
	OpTrue:     {"TRUE", 0, 1, OperandNone},
	OpFalse:    {"FALSE", 0, 1, OperandNone},

	// Variables
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, 0, OperandIdentifier},
	OpGetGlobal:    {"GET_GLOBAL", 0, 1, OperandIdentifier},
	OpSetGlobal:    {"SET_GLOBAL", 1, 1, OperandIdentifier},
	OpGetLocal:     {"GET_LOCAL", 0, 1, OperandSlot},
	OpSetLocal:     {"SET_LOCAL", 1, 1, OperandSlot},

	// Arithmetic
	OpAdd:      {"ADD", 2, 1, OperandNone},
	OpSubtract: {"SUBTRACT", 2, 1, OperandNone},
	OpMultiply: {"MULTIPLY", 2, 1, OperandNone},
	OpDivide:   {"DIVIDE", 2, 1, OperandNone},
	OpPower:    {"POWER", 2, 1, OperandNone},
	OpNegate:   {"NEGATE", 1, 1, OperandNone},

	// Comparison and logic
	OpEqual:   {"EQUAL", 2, 1, OperandNone},
	OpGreater: {"GREATER", 2, 1, OperandNone},
	OpLess:    {"LESS", 2, 1, OperandNone},
	OpNot:     {"NOT", 1, 1, OperandNone},

	// Control flow
	OpJump:        {"JUMP", 0, 0, OperandJump},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1, 1, OperandJump},
	OpLoop:        {"LOOP", 0, 0, OperandJump},

	// Output
	OpPrint: {"PRINT", 1, 0, OperandNone},

	// Return
	OpReturn: {"RETURN", 0, 0, OperandNone},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand cells for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpLoop
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
