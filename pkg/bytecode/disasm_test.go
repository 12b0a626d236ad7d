package bytecode

import (
	"strings"
	"testing"

	"github.com/chazu/quill/pkg/interner"
)

func TestDisassembleEmpty(t *testing.T) {
	c := NewChunk()

	output := c.Disassemble(nil)

	if !strings.Contains(output, "Quill Bytecode v1") {
		t.Error("Disassembly missing header")
	}
	if strings.Contains(output, "Constants:") {
		t.Error("Empty chunk should have no constants section")
	}
}

func TestDisassembleProgram(t *testing.T) {
	in := interner.New()
	a := in.Intern("a")
	greeting := in.Intern("hi there")

	c := NewChunk()
	c.EmitOperand(OpConstant, Int(3))
	c.EmitOperand(OpDefineGlobal, Identifier(a))
	c.EmitOperand(OpConstant, String(greeting))
	c.Emit(OpPrint)
	c.Emit(OpReturn)

	output := c.DisassembleWithName("main", in)

	for _, want := range []string{
		"; === main ===",
		"0000  CONSTANT",
		"; 3",
		"0002  DEFINE_GLOBAL",
		"; a",
		`"hi there"`,
		"0006  PRINT",
		"0007  RETURN",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleJumps(t *testing.T) {
	c := NewChunk()
	c.Emit(OpFalse)
	patch := c.EmitJump(OpJumpIfFalse)
	c.EmitOperand(OpGetLocal, Int(0))
	if err := patch.ResolveHere(); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	c.Emit(OpReturn)

	lines := c.DisassembleToLines(nil)
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[1], "JUMP_IF_FALSE") || !strings.Contains(lines[1], "-> 0005") {
		t.Errorf("Unexpected jump line: %q", lines[1])
	}
	if !strings.Contains(lines[2], "slot 0") {
		t.Errorf("Unexpected local line: %q", lines[2])
	}
}

func TestDisassembleDoesNotMutate(t *testing.T) {
	c := NewChunk()
	c.EmitOperand(OpConstant, Float(1.5))
	c.Emit(OpReturn)

	before := len(c.Code)
	c.Disassemble(nil)
	c.DisassembleInstruction(0, nil)
	if len(c.Code) != before || c.ConstantCount() != 1 {
		t.Error("Disassembly modified the chunk")
	}
}

func TestDisassembleMalformed(t *testing.T) {
	c := NewChunk()
	c.Code = append(c.Code, ConstantRef(9), Instruction(OpConstant))

	lines := c.DisassembleToLines(nil)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "stray constant ref") {
		t.Errorf("Unexpected line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "missing operand") {
		t.Errorf("Unexpected line: %q", lines[1])
	}
}

func TestInstructionCount(t *testing.T) {
	c := NewChunk()
	c.EmitOperand(OpConstant, Int(1))
	c.Emit(OpPrint)
	c.Emit(OpReturn)

	if got := c.InstructionCount(); got != 3 {
		t.Errorf("InstructionCount() = %d, want 3", got)
	}
}
