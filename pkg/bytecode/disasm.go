package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/quill/pkg/interner"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
// Interned strings and identifiers are resolved through in when it is
// non-nil. Disassembly never modifies the chunk.
func (c *Chunk) Disassemble(in *interner.Interner) string {
	return c.DisassembleWithName("", in)
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
func (c *Chunk) DisassembleWithName(name string, in *interner.Interner) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Quill Bytecode v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Cells: %d, Constants: %d\n", len(c.Code), len(c.Constants)))
	sb.WriteString("\n")

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %-11s %s\n", i, v.Kind, displayConstant(v, in)))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	for _, line := range c.DisassembleToLines(in) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// DisassembleToLines returns the code listing as a slice of lines.
func (c *Chunk) DisassembleToLines(in *interner.Interner) []string {
	var lines []string
	offset := 0
	for offset < len(c.Code) {
		line, n := c.disassembleInstruction(offset, in)
		lines = append(lines, fmt.Sprintf("%04X  %s", offset, line))
		offset += n
	}
	return lines
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Chunk) DisassembleInstruction(offset int, in *interner.Interner) string {
	line, _ := c.disassembleInstruction(offset, in)
	return line
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the number of cells consumed.
func (c *Chunk) disassembleInstruction(offset int, in *interner.Interner) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	cell := c.Code[offset]
	if cell.Kind == CellConstant {
		return fmt.Sprintf("<stray constant ref #%d>", cell.Index), 1
	}

	info := GetOpcodeInfo(cell.Op)
	if info.Operand == OperandNone {
		return info.Name, 1
	}
	if offset+1 >= len(c.Code) || c.Code[offset+1].Kind != CellConstant {
		return fmt.Sprintf("%-16s <missing operand>", info.Name), 1
	}

	idx := c.Code[offset+1].Index
	v, ok := c.Constant(idx)
	if !ok {
		return fmt.Sprintf("%-16s #%-4d ; <bad constant>", info.Name, idx), 2
	}

	var comment string
	switch info.Operand {
	case OperandJump:
		comment = fmt.Sprintf("-> %04X", v.Pos)
	case OperandSlot:
		comment = "slot " + strconv.FormatInt(v.Int, 10)
	default:
		comment = displayConstant(v, in)
	}
	return fmt.Sprintf("%-16s #%-4d ; %s", info.Name, idx, comment), 2
}

// InstructionCount returns the number of instructions in the chunk.
func (c *Chunk) InstructionCount() int {
	count := 0
	for _, cell := range c.Code {
		if cell.Kind == CellInstruction {
			count++
		}
	}
	return count
}

// displayConstant renders a constant for listings: strings quoted and
// truncated, identifiers bare.
func displayConstant(v Value, in *interner.Interner) string {
	switch v.Kind {
	case KindString:
		s := v.Format(in)
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return strconv.Quote(s)
	case KindIdentifier:
		return v.Format(in)
	case KindJumpOffset:
		return fmt.Sprintf("-> %04X", v.Pos)
	default:
		return v.String()
	}
}
