package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/quill/pkg/failure"
)

// Program trees are exchanged as tagged objects, one per node:
//
//	{"type": "let", "name": "a", "value": {"type": "int", "value": 3}}
//
// A document is either a list of nodes or {"type": "program", "body": [...]}.
// JSON and YAML documents share the same shape.

// Parse reads a JSON program tree.
func Parse(r io.Reader) ([]Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, failure.Wrap(failure.Malformed, err, "decoding JSON program")
	}
	return build(doc)
}

// ParseBytes reads a JSON program tree from memory.
func ParseBytes(data []byte) ([]Node, error) {
	return Parse(bytes.NewReader(data))
}

// ParseYAML reads a YAML program tree.
func ParseYAML(r io.Reader) ([]Node, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, failure.Wrap(failure.Malformed, err, "decoding YAML program")
	}
	return build(doc)
}

// ParseFile reads a program tree, choosing the format by extension:
// .yaml and .yml are YAML, anything else is JSON.
func ParseFile(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return Parse(f)
	}
}

// ---------------------------------------------------------------------------
// Tree construction
// ---------------------------------------------------------------------------

func build(doc any) ([]Node, error) {
	switch d := doc.(type) {
	case []any:
		return nodeList(d, "program")
	case map[string]any:
		if d["type"] != "program" {
			return nil, malformed("program", "expected a node list or a program object")
		}
		return nodeListField(d, "body", "program")
	default:
		return nil, malformed("program", "expected a node list or a program object")
	}
}

func malformed(at, format string, args ...any) error {
	return failure.Compilef(failure.Malformed, "%s: %s", at, fmt.Sprintf(format, args...))
}

func nodeList(items []any, at string) ([]Node, error) {
	nodes := make([]Node, 0, len(items))
	for i, item := range items {
		n, err := buildNode(item, fmt.Sprintf("%s[%d]", at, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func nodeListField(obj map[string]any, key, at string) ([]Node, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, malformed(at+"."+key, "expected a list")
	}
	return nodeList(items, at+"."+key)
}

func stringField(obj map[string]any, key, at string) (string, error) {
	s, ok := obj[key].(string)
	if !ok {
		return "", malformed(at+"."+key, "expected a string")
	}
	return s, nil
}

func nodeField(obj map[string]any, key, at string) (Node, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, malformed(at+"."+key, "missing node")
	}
	return buildNode(raw, at+"."+key)
}

func optionalNodeField(obj map[string]any, key, at string) (Node, error) {
	if raw, ok := obj[key]; !ok || raw == nil {
		return nil, nil
	}
	return nodeField(obj, key, at)
}

func exprField(obj map[string]any, key, at string) (Expr, error) {
	n, err := nodeField(obj, key, at)
	if err != nil {
		return nil, err
	}
	e, ok := n.(Expr)
	if !ok {
		return nil, malformed(at+"."+key, "expected an expression, found %T", n)
	}
	return e, nil
}

func exprListField(obj map[string]any, key, at string) ([]Expr, error) {
	nodes, err := nodeListField(obj, key, at)
	if err != nil {
		return nil, err
	}
	exprs := make([]Expr, 0, len(nodes))
	for i, n := range nodes {
		e, ok := n.(Expr)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s.%s[%d]", at, key, i), "expected an expression, found %T", n)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func buildNode(raw any, at string) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed(at, "expected an object")
	}
	typ, err := stringField(obj, "type", at)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "int":
		i, err := intValue(obj["value"], at+".value")
		if err != nil {
			return nil, err
		}
		return &IntLiteral{Value: i}, nil

	case "float":
		f, err := floatValue(obj["value"], at+".value")
		if err != nil {
			return nil, err
		}
		return &FloatLiteral{Value: f}, nil

	case "string":
		s, err := stringField(obj, "value", at)
		if err != nil {
			return nil, err
		}
		return &StringLiteral{Value: s}, nil

	case "bool":
		b, ok := obj["value"].(bool)
		if !ok {
			return nil, malformed(at+".value", "expected a boolean")
		}
		return &BoolLiteral{Value: b}, nil

	case "nil":
		return &NilLiteral{}, nil

	case "ident":
		name, err := stringField(obj, "name", at)
		if err != nil {
			return nil, err
		}
		return &Identifier{Name: name}, nil

	case "binary":
		sym, err := stringField(obj, "op", at)
		if err != nil {
			return nil, err
		}
		op, ok := ParseBinaryOp(sym)
		if !ok {
			return nil, malformed(at+".op", "unknown binary operator %q", sym)
		}
		left, err := exprField(obj, "left", at)
		if err != nil {
			return nil, err
		}
		right, err := exprField(obj, "right", at)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil

	case "unary":
		sym, err := stringField(obj, "op", at)
		if err != nil {
			return nil, err
		}
		op, ok := ParseUnaryOp(sym)
		if !ok {
			return nil, malformed(at+".op", "unknown unary operator %q", sym)
		}
		operand, err := exprField(obj, "operand", at)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand}, nil

	case "postfix":
		sym, err := stringField(obj, "op", at)
		if err != nil {
			return nil, err
		}
		op, ok := ParsePostfixOp(sym)
		if !ok {
			return nil, malformed(at+".op", "unknown postfix operator %q", sym)
		}
		operand, err := exprField(obj, "operand", at)
		if err != nil {
			return nil, err
		}
		args, err := exprListField(obj, "args", at)
		if err != nil {
			return nil, err
		}
		return &Postfix{Op: op, Operand: operand, Args: args}, nil

	case "let":
		name, err := stringField(obj, "name", at)
		if err != nil {
			return nil, err
		}
		value, err := exprField(obj, "value", at)
		if err != nil {
			return nil, err
		}
		return &Let{Name: name, Value: value}, nil

	case "assign":
		name, err := stringField(obj, "name", at)
		if err != nil {
			return nil, err
		}
		op := AssignSet
		if _, present := obj["op"]; present {
			sym, err := stringField(obj, "op", at)
			if err != nil {
				return nil, err
			}
			if op, ok = ParseAssignOp(sym); !ok {
				return nil, malformed(at+".op", "unknown assignment operator %q", sym)
			}
		}
		value, err := exprField(obj, "value", at)
		if err != nil {
			return nil, err
		}
		return &Assign{Name: name, Op: op, Value: value}, nil

	case "if":
		cond, err := exprField(obj, "cond", at)
		if err != nil {
			return nil, err
		}
		then, err := nodeField(obj, "then", at)
		if err != nil {
			return nil, err
		}
		els, err := optionalNodeField(obj, "else", at)
		if err != nil {
			return nil, err
		}
		return &If{Cond: cond, Then: then, Else: els}, nil

	case "while":
		cond, err := exprField(obj, "cond", at)
		if err != nil {
			return nil, err
		}
		body, err := nodeField(obj, "body", at)
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil

	case "block":
		body, err := nodeListField(obj, "body", at)
		if err != nil {
			return nil, err
		}
		return &Block{Body: body}, nil

	case "print":
		value, err := exprField(obj, "value", at)
		if err != nil {
			return nil, err
		}
		return &Print{Value: value}, nil

	case "fn":
		name, err := stringField(obj, "name", at)
		if err != nil {
			return nil, err
		}
		var params []string
		if raw, ok := obj["params"].([]any); ok {
			for i, p := range raw {
				s, ok := p.(string)
				if !ok {
					return nil, malformed(fmt.Sprintf("%s.params[%d]", at, i), "expected a string")
				}
				params = append(params, s)
			}
		}
		body, err := nodeListField(obj, "body", at)
		if err != nil {
			return nil, err
		}
		return &Function{Name: name, Params: params, Body: body}, nil

	default:
		return nil, malformed(at+".type", "unknown node type %q", typ)
	}
}

// intValue accepts the integer forms produced by the JSON and YAML decoders.
func intValue(raw any, at string) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, malformed(at, "expected an integer, found %s", v)
		}
		return i, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, malformed(at, "integer %d overflows int64", v)
		}
		return int64(v), nil
	}
	return 0, malformed(at, "expected an integer")
}

// floatValue accepts any numeric form.
func floatValue(raw any, at string) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, malformed(at, "expected a number, found %s", v)
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, malformed(at, "expected a number")
}
