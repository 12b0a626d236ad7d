package compiler

import (
	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/failure"
)

// Local is a block-scoped variable known at compile time. Its runtime slot
// is its position in the compiler's locals list.
type Local struct {
	Name  string
	Depth int
}

func (c *Compiler) beginScope() {
	c.depth++
}

// endScope closes the innermost scope and emits one POP per local that
// goes out of scope, innermost first.
func (c *Compiler) endScope() {
	c.depth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.depth {
		c.emit(bytecode.OpPop)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// declareLocal binds name to the value just pushed by its initializer.
func (c *Compiler) declareLocal(name string) {
	if len(c.locals) >= c.maxLocals {
		c.errorf(failure.TooManyLocals, "too many local variables (limit %d) declaring %q", c.maxLocals, name)
		return
	}
	slot := len(c.locals)
	if len(c.errors) == 0 && c.height != slot+1 {
		c.errorf(failure.Internal, "operand stack height %d does not match slot %d of local %q", c.height, slot, name)
		return
	}
	c.locals = append(c.locals, Local{Name: name, Depth: c.depth})
}

// resolveLocal finds the innermost local named name.
func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			return i, true
		}
	}
	return -1, false
}
