package vm

import (
	"math"

	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/failure"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// add handles ADD. When the top of stack is a string both operands must be
// strings and the result is their interned concatenation.
func (vm *VM) add() error {
	top, ok := vm.stack.Peek(0)
	if !ok || top.Kind != bytecode.KindString {
		return vm.arithmetic(bytecode.OpAdd)
	}
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	if a.Kind != bytecode.KindString {
		return vm.mismatch(bytecode.OpAdd, a, b)
	}
	left, err := vm.strings.MustText(a.Ref)
	if err != nil {
		return vm.fail(failure.InvalidOperand, "%v", err)
	}
	right, err := vm.strings.MustText(b.Ref)
	if err != nil {
		return vm.fail(failure.InvalidOperand, "%v", err)
	}
	return vm.push(bytecode.String(vm.strings.Intern(left + right)))
}

// arithmetic pops two numbers and pushes the result of op. Two integers
// give an integer that wraps on overflow; any float operand promotes both.
func (vm *VM) arithmetic(op bytecode.Opcode) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	if !a.IsNumber() || !b.IsNumber() {
		return vm.mismatch(op, a, b)
	}

	if a.Kind == bytecode.KindInteger && b.Kind == bytecode.KindInteger {
		x, y := a.Int, b.Int
		switch op {
		case bytecode.OpAdd:
			return vm.push(bytecode.Int(x + y))
		case bytecode.OpSubtract:
			return vm.push(bytecode.Int(x - y))
		case bytecode.OpMultiply:
			return vm.push(bytecode.Int(x * y))
		case bytecode.OpDivide:
			if y == 0 {
				return vm.fail(failure.DivisionByZero, "integer division by zero")
			}
			return vm.push(bytecode.Int(x / y))
		case bytecode.OpPower:
			if y >= 0 {
				return vm.push(bytecode.Int(intPow(x, y)))
			}
		}
	}

	x, y := a.AsFloat(), b.AsFloat()
	switch op {
	case bytecode.OpAdd:
		return vm.push(bytecode.Float(x + y))
	case bytecode.OpSubtract:
		return vm.push(bytecode.Float(x - y))
	case bytecode.OpMultiply:
		return vm.push(bytecode.Float(x * y))
	case bytecode.OpDivide:
		return vm.push(bytecode.Float(x / y))
	case bytecode.OpPower:
		return vm.push(bytecode.Float(math.Pow(x, y)))
	}
	return vm.fail(failure.InvalidOperand, "%s is not an arithmetic instruction", op)
}

// intPow computes base**exp for exp >= 0 by repeated squaring.
func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func (vm *VM) negate() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	switch v.Kind {
	case bytecode.KindInteger:
		return vm.push(bytecode.Int(-v.Int))
	case bytecode.KindFloat:
		return vm.push(bytecode.Float(-v.Float))
	}
	return vm.fail(failure.TypeMismatch, "operand of NEGATE must be a number, got %s", v.Kind)
}

// ---------------------------------------------------------------------------
// Comparison and logic
// ---------------------------------------------------------------------------

func (vm *VM) equal() error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.push(bytecode.Bool(bytecode.Equal(a, b)))
}

// compare handles GREATER and LESS, which are defined on numbers only.
func (vm *VM) compare(op bytecode.Opcode) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	if !a.IsNumber() || !b.IsNumber() {
		return vm.mismatch(op, a, b)
	}

	var greater, less bool
	if a.Kind == bytecode.KindInteger && b.Kind == bytecode.KindInteger {
		greater, less = a.Int > b.Int, a.Int < b.Int
	} else {
		x, y := a.AsFloat(), b.AsFloat()
		greater, less = x > y, x < y
	}
	if op == bytecode.OpGreater {
		return vm.push(bytecode.Bool(greater))
	}
	return vm.push(bytecode.Bool(less))
}

func (vm *VM) not() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Kind != bytecode.KindBoolean {
		return vm.fail(failure.TypeMismatch, "operand of NOT must be a boolean, got %s", v.Kind)
	}
	return vm.push(bytecode.Bool(!v.Bool))
}

func (vm *VM) mismatch(op bytecode.Opcode, a, b bytecode.Value) error {
	return vm.fail(failure.TypeMismatch, "unsupported operand types for %s: %s and %s", op, a.Kind, b.Kind)
}
