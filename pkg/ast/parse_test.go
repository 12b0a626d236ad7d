package ast

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/quill/pkg/failure"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantLen   int
		wantError bool
	}{
		{
			name:    "node list",
			json:    `[{"type": "print", "value": {"type": "int", "value": 1}}]`,
			wantLen: 1,
		},
		{
			name:    "program object",
			json:    `{"type": "program", "body": [{"type": "nil"}, {"type": "bool", "value": true}]}`,
			wantLen: 2,
		},
		{
			name:    "empty program",
			json:    `[]`,
			wantLen: 0,
		},
		{
			name:      "invalid json",
			json:      `[{"type": "print", value: 1}]`,
			wantError: true,
		},
		{
			name:      "empty input",
			json:      ``,
			wantError: true,
		},
		{
			name:      "scalar document",
			json:      `42`,
			wantError: true,
		},
		{
			name:      "unknown node type",
			json:      `[{"type": "goto"}]`,
			wantError: true,
		},
		{
			name:      "float in int literal",
			json:      `[{"type": "int", "value": 1.5}]`,
			wantError: true,
		},
		{
			name:      "statement where expression expected",
			json:      `[{"type": "print", "value": {"type": "block", "body": []}}]`,
			wantError: true,
		},
		{
			name:      "unknown operator",
			json:      `[{"type": "binary", "op": "%", "left": {"type": "int", "value": 1}, "right": {"type": "int", "value": 2}}]`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Parse(strings.NewReader(tt.json))
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if err != nil {
				if failure.CodeOf(err) != failure.Malformed {
					t.Errorf("Parse() error code = %q, want %q", failure.CodeOf(err), failure.Malformed)
				}
				return
			}
			if len(nodes) != tt.wantLen {
				t.Errorf("Parse() returned %d nodes, want %d", len(nodes), tt.wantLen)
			}
		})
	}
}

func TestParseNodeShapes(t *testing.T) {
	src := `[
		{"type": "let", "name": "a", "value": {"type": "int", "value": 3}},
		{"type": "assign", "name": "a", "op": "+=", "value": {"type": "float", "value": 4}},
		{"type": "if",
		 "cond": {"type": "binary", "op": "<=", "left": {"type": "ident", "name": "a"}, "right": {"type": "int", "value": 10}},
		 "then": {"type": "block", "body": [{"type": "print", "value": {"type": "string", "value": "small"}}]}},
		{"type": "while",
		 "cond": {"type": "unary", "op": "!", "operand": {"type": "bool", "value": false}},
		 "body": {"type": "block", "body": []}},
		{"type": "postfix", "op": "**", "operand": {"type": "int", "value": 2}, "args": [{"type": "int", "value": 8}]},
		{"type": "fn", "name": "f", "params": ["x", "y"], "body": []}
	]`

	nodes, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if len(nodes) != 6 {
		t.Fatalf("Expected 6 nodes, got %d", len(nodes))
	}

	let, ok := nodes[0].(*Let)
	if !ok || let.Name != "a" {
		t.Fatalf("node 0 = %#v, want Let a", nodes[0])
	}
	if lit, ok := let.Value.(*IntLiteral); !ok || lit.Value != 3 {
		t.Errorf("let value = %#v, want IntLiteral 3", let.Value)
	}

	assign, ok := nodes[1].(*Assign)
	if !ok || assign.Op != AssignAdd {
		t.Fatalf("node 1 = %#v, want Assign +=", nodes[1])
	}
	if lit, ok := assign.Value.(*FloatLiteral); !ok || lit.Value != 4 {
		t.Errorf("assign value = %#v, want FloatLiteral 4", assign.Value)
	}

	cond, ok := nodes[2].(*If)
	if !ok {
		t.Fatalf("node 2 = %#v, want If", nodes[2])
	}
	if cond.Else != nil {
		t.Error("If without else should have nil Else")
	}
	if bin, ok := cond.Cond.(*Binary); !ok || bin.Op != LessEqual {
		t.Errorf("if cond = %#v, want Binary <=", cond.Cond)
	}

	loop, ok := nodes[3].(*While)
	if !ok {
		t.Fatalf("node 3 = %#v, want While", nodes[3])
	}
	if un, ok := loop.Cond.(*Unary); !ok || un.Op != Not {
		t.Errorf("while cond = %#v, want Unary !", loop.Cond)
	}

	pow, ok := nodes[4].(*Postfix)
	if !ok || pow.Op != Power || len(pow.Args) != 1 {
		t.Errorf("node 4 = %#v, want Postfix ** with one arg", nodes[4])
	}

	fn, ok := nodes[5].(*Function)
	if !ok || fn.Name != "f" || len(fn.Params) != 2 {
		t.Errorf("node 5 = %#v, want Function f(x, y)", nodes[5])
	}
}

func TestParseAssignDefaultsToSet(t *testing.T) {
	nodes, err := ParseBytes([]byte(`[{"type": "assign", "name": "x", "value": {"type": "nil"}}]`))
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if a := nodes[0].(*Assign); a.Op != AssignSet {
		t.Errorf("Op = %v, want =", a.Op)
	}
}

func TestParseYAML(t *testing.T) {
	src := `
- type: let
  name: greeting
  value: {type: string, value: hello}
- type: print
  value:
    type: binary
    op: "*"
    left: {type: int, value: 6}
    right: {type: float, value: 7}
`
	nodes, err := ParseYAML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(nodes))
	}
	p := nodes[1].(*Print)
	bin := p.Value.(*Binary)
	if r, ok := bin.Right.(*FloatLiteral); !ok || r.Value != 7 {
		t.Errorf("right = %#v, want FloatLiteral 7", bin.Right)
	}
	if l, ok := bin.Left.(*IntLiteral); !ok || l.Value != 6 {
		t.Errorf("left = %#v, want IntLiteral 6", bin.Left)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "main.json")
	yamlPath := filepath.Join(dir, "main.yml")

	if err := os.WriteFile(jsonPath, []byte(`[{"type": "nil"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("- type: nil\n- type: nil\n"), 0644); err != nil {
		t.Fatal(err)
	}

	nodes, err := ParseFile(jsonPath)
	if err != nil || len(nodes) != 1 {
		t.Errorf("ParseFile(json) = %d nodes, %v", len(nodes), err)
	}
	nodes, err = ParseFile(yamlPath)
	if err != nil || len(nodes) != 2 {
		t.Errorf("ParseFile(yaml) = %d nodes, %v", len(nodes), err)
	}
	if _, err := ParseFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("ParseFile should fail for a missing file")
	}
}
