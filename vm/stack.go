package vm

import "github.com/chazu/quill/pkg/bytecode"

// DefaultStackCapacity is the operand stack size used when none is given.
const DefaultStackCapacity = 256

// Stack is a fixed-capacity operand stack. Locals live in its lowest slots,
// in declaration order.
type Stack struct {
	values []bytecode.Value
	sp     int // next free slot
}

// NewStack creates a stack that holds at most capacity values.
func NewStack(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultStackCapacity
	}
	return &Stack{values: make([]bytecode.Value, capacity)}
}

// Push appends v. It reports false when the stack is full.
func (s *Stack) Push(v bytecode.Value) bool {
	if s.sp >= len(s.values) {
		return false
	}
	s.values[s.sp] = v
	s.sp++
	return true
}

// Pop removes and returns the top value. It reports false when empty.
func (s *Stack) Pop() (bytecode.Value, bool) {
	if s.sp == 0 {
		return bytecode.Value{}, false
	}
	s.sp--
	v := s.values[s.sp]
	s.values[s.sp] = bytecode.Value{}
	return v, true
}

// Peek returns the value distance slots below the top without removing it.
func (s *Stack) Peek(distance int) (bytecode.Value, bool) {
	i := s.sp - 1 - distance
	if distance < 0 || i < 0 {
		return bytecode.Value{}, false
	}
	return s.values[i], true
}

// Get returns the value in slot, counting from the bottom.
func (s *Stack) Get(slot int) (bytecode.Value, bool) {
	if slot < 0 || slot >= s.sp {
		return bytecode.Value{}, false
	}
	return s.values[slot], true
}

// Set overwrites the value in slot, counting from the bottom.
func (s *Stack) Set(slot int, v bytecode.Value) bool {
	if slot < 0 || slot >= s.sp {
		return false
	}
	s.values[slot] = v
	return true
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return s.sp }

// Cap returns the stack capacity.
func (s *Stack) Cap() int { return len(s.values) }

// Values returns a copy of the live values, bottom first.
func (s *Stack) Values() []bytecode.Value {
	out := make([]bytecode.Value, s.sp)
	copy(out, s.values[:s.sp])
	return out
}

// Reset empties the stack.
func (s *Stack) Reset() {
	for i := 0; i < s.sp; i++ {
		s.values[i] = bytecode.Value{}
	}
	s.sp = 0
}
