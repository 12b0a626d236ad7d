package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/quill/pkg/interner"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindString
	KindIdentifier // compiler-only: the name operand of a global op
	KindJumpOffset // compiler-only: the target operand of a jump
)

var kindNames = [...]string{
	KindNil:        "nil",
	KindBoolean:    "boolean",
	KindInteger:    "integer",
	KindFloat:      "float",
	KindString:     "string",
	KindIdentifier: "identifier",
	KindJumpOffset: "jump offset",
}

// String returns the type name used in error messages.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged runtime value. Only the field matching Kind is
// meaningful; the others stay zero so that Values compare with ==.
// Build Values with the constructors below rather than by hand.
type Value struct {
	Kind  Kind        `cbor:"1,keyasint"`
	Bool  bool        `cbor:"2,keyasint,omitempty"`
	Int   int64       `cbor:"3,keyasint,omitempty"`
	Float float64     `cbor:"4,keyasint"`
	Ref   interner.ID `cbor:"5,keyasint,omitempty"` // KindString, KindIdentifier
	Pos   int         `cbor:"6,keyasint,omitempty"` // KindJumpOffset
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Nil returns the nil value.
func Nil() Value { return Value{Kind: KindNil} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// Int wraps a 64-bit integer.
func Int(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String wraps an interned string id.
func String(id interner.ID) Value { return Value{Kind: KindString, Ref: id} }

// Identifier wraps an interned identifier name.
func Identifier(id interner.ID) Value { return Value{Kind: KindIdentifier, Ref: id} }

// JumpOffset wraps an absolute cell position.
func JumpOffset(pos int) Value { return Value{Kind: KindJumpOffset, Pos: pos} }

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

// IsNil reports whether v is nil.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// IsNumber reports whether v is an integer or a float.
func (v Value) IsNumber() bool { return v.Kind == KindInteger || v.Kind == KindFloat }

// IsFalse reports whether v is exactly the boolean false.
func (v Value) IsFalse() bool { return v.Kind == KindBoolean && !v.Bool }

// IsCompilerOnly reports whether v is a tag that only appears as an
// instruction operand and never as a program value.
func (v Value) IsCompilerOnly() bool {
	return v.Kind == KindIdentifier || v.Kind == KindJumpOffset
}

// AsFloat widens a numeric value to float64.
func (v Value) AsFloat() float64 {
	if v.Kind == KindInteger {
		return float64(v.Int)
	}
	return v.Float
}

// ---------------------------------------------------------------------------
// Equality and display
// ---------------------------------------------------------------------------

// Equal compares two values by tag. Numbers compare by value across
// integer and float, strings by interned id, booleans by value. Nil only
// equals nil, and values of different non-numeric tags are never equal.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.Kind == KindInteger && b.Kind == KindInteger {
			return a.Int == b.Int
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBoolean:
		return a.Bool == b.Bool
	case KindString, KindIdentifier:
		return a.Ref == b.Ref
	case KindJumpOffset:
		return a.Pos == b.Pos
	}
	return false
}

// String renders v without resolving interned ids.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return fmt.Sprintf("string#%d", v.Ref)
	case KindIdentifier:
		return fmt.Sprintf("ident#%d", v.Ref)
	case KindJumpOffset:
		return fmt.Sprintf("->%04X", v.Pos)
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// Format renders v for program output, resolving strings and identifiers
// through in.
func (v Value) Format(in *interner.Interner) string {
	switch v.Kind {
	case KindString, KindIdentifier:
		if in != nil {
			if text, ok := in.Text(v.Ref); ok {
				return text
			}
		}
	}
	return v.String()
}

// formatFloat keeps a fractional part on integral floats so that 3.0 and 3
// remain distinguishable in output.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
