package ast

import "fmt"

// BinaryOp is the closed set of infix operators.
type BinaryOp uint8

const (
	Add BinaryOp = iota + 1
	Subtract
	Multiply
	Divide
	MatMul // @
	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

var binaryOpSymbols = map[BinaryOp]string{
	Add:          "+",
	Subtract:     "-",
	Multiply:     "*",
	Divide:       "/",
	MatMul:       "@",
	Equal:        "==",
	NotEqual:     "!=",
	Less:         "<",
	LessEqual:    "<=",
	Greater:      ">",
	GreaterEqual: ">=",
}

// String returns the operator symbol.
func (op BinaryOp) String() string {
	if s, ok := binaryOpSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", op)
}

// ParseBinaryOp maps a symbol to its operator.
func ParseBinaryOp(symbol string) (BinaryOp, bool) {
	for op, s := range binaryOpSymbols {
		if s == symbol {
			return op, true
		}
	}
	return 0, false
}

// UnaryOp is the closed set of prefix operators.
type UnaryOp uint8

const (
	Negate UnaryOp = iota + 1
	Not
)

// String returns the operator symbol.
func (op UnaryOp) String() string {
	switch op {
	case Negate:
		return "-"
	case Not:
		return "!"
	}
	return fmt.Sprintf("UnaryOp(%d)", op)
}

// ParseUnaryOp maps a symbol to its operator.
func ParseUnaryOp(symbol string) (UnaryOp, bool) {
	switch symbol {
	case "-":
		return Negate, true
	case "!":
		return Not, true
	}
	return 0, false
}

// PostfixOp is the closed set of postfix operators.
type PostfixOp uint8

const (
	Call PostfixOp = iota + 1
	Index
	Power // **
)

// String returns the operator name.
func (op PostfixOp) String() string {
	switch op {
	case Call:
		return "call"
	case Index:
		return "index"
	case Power:
		return "**"
	}
	return fmt.Sprintf("PostfixOp(%d)", op)
}

// ParsePostfixOp maps a name to its operator.
func ParsePostfixOp(name string) (PostfixOp, bool) {
	switch name {
	case "call":
		return Call, true
	case "index":
		return Index, true
	case "**":
		return Power, true
	}
	return 0, false
}

// AssignOp is the closed set of assignment operators.
type AssignOp uint8

const (
	AssignSet AssignOp = iota // =
	AssignAdd                 // +=
	AssignSubtract            // -=
	AssignMultiply            // *=
	AssignDivide              // /=
)

var assignOpSymbols = [...]string{
	AssignSet:      "=",
	AssignAdd:      "+=",
	AssignSubtract: "-=",
	AssignMultiply: "*=",
	AssignDivide:   "/=",
}

// String returns the operator symbol.
func (op AssignOp) String() string {
	if int(op) < len(assignOpSymbols) {
		return assignOpSymbols[op]
	}
	return fmt.Sprintf("AssignOp(%d)", op)
}

// Binary returns the arithmetic operator a compound assignment applies.
// The second result is false for plain assignment.
func (op AssignOp) Binary() (BinaryOp, bool) {
	switch op {
	case AssignAdd:
		return Add, true
	case AssignSubtract:
		return Subtract, true
	case AssignMultiply:
		return Multiply, true
	case AssignDivide:
		return Divide, true
	}
	return 0, false
}

// ParseAssignOp maps a symbol to its operator.
func ParseAssignOp(symbol string) (AssignOp, bool) {
	for i, s := range assignOpSymbols {
		if s == symbol {
			return AssignOp(i), true
		}
	}
	return 0, false
}
