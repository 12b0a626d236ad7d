package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Evaluate: happy paths
// ---------------------------------------------------------------------------

func TestEvaluate_Arithmetic(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(printNode(binaryNode("+", intNode(3), intNode(4)))),
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Fatalf("Evaluate was not successful: %s", resp.Msg.ErrorMessage)
	}
	if len(resp.Msg.Outputs) != 1 || resp.Msg.Outputs[0].Text != "7" {
		t.Errorf("Outputs = %+v, want [7]", resp.Msg.Outputs)
	}
	if resp.Msg.Outputs[0].Kind != "integer" {
		t.Errorf("Outputs[0].Kind = %q, want %q", resp.Msg.Outputs[0].Kind, "integer")
	}
	if resp.Msg.Fingerprint == "" {
		t.Error("Evaluate should return a fingerprint")
	}
	if resp.Msg.Steps == 0 {
		t.Error("Evaluate should report executed steps")
	}
	if resp.Msg.RunID != "" {
		t.Errorf("RunID = %q without a journal, want empty", resp.Msg.RunID)
	}
}

func TestEvaluate_MultipleOutputs(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(
			letNode("greeting", stringNode("hi ")),
			printNode(binaryNode("+", identNode("greeting"), stringNode("there"))),
			printNode(binaryNode("<", intNode(1), intNode(2))),
		),
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	got := strings.Join(outputTexts(resp.Msg.Outputs), "|")
	if got != "hi there|true" {
		t.Errorf("outputs = %q, want %q", got, "hi there|true")
	}
}

func TestEvaluate_YAMLSource(t *testing.T) {
	svc := newTestEvalService()

	src := `
- type: let
  name: n
  value: {type: int, value: 6}
- type: print
  value:
    type: binary
    op: "*"
    left: {type: ident, name: n}
    right: {type: int, value: 7}
`
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: ProgramSource{YAML: src},
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Fatalf("Evaluate was not successful: %s", resp.Msg.ErrorMessage)
	}
	if got := outputTexts(resp.Msg.Outputs); len(got) != 1 || got[0] != "42" {
		t.Errorf("outputs = %v, want [42]", got)
	}
}

func TestEvaluate_EmptySessionIsThrowaway(t *testing.T) {
	svc := newTestEvalService()

	if _, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(letNode("leak", intNode(1))),
	})); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(printNode(identNode("leak"))),
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Error("a global from an earlier session-less run should not be visible")
	}
	if resp.Msg.ErrorCode != "undefined_variable" {
		t.Errorf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "undefined_variable")
	}
}

// ---------------------------------------------------------------------------
// Evaluate: failures reported in the response
// ---------------------------------------------------------------------------

func TestEvaluate_RuntimeError(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(
			printNode(intNode(1)),
			printNode(binaryNode("/", intNode(1), intNode(0))),
		),
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("division by zero should fail")
	}
	if resp.Msg.ErrorKind != "runtime error" {
		t.Errorf("ErrorKind = %q, want %q", resp.Msg.ErrorKind, "runtime error")
	}
	if resp.Msg.ErrorCode != "division_by_zero" {
		t.Errorf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "division_by_zero")
	}
	if len(resp.Msg.Outputs) != 0 {
		t.Errorf("Outputs = %v, want none for a failed run", resp.Msg.Outputs)
	}
}

func TestEvaluate_CompileError(t *testing.T) {
	svc := newTestEvalService()

	call := node{"type": "postfix", "op": "call", "operand": identNode("f"), "args": []node{}}
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(printNode(call)),
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("a call expression should not compile")
	}
	if resp.Msg.ErrorKind != "compile error" {
		t.Errorf("ErrorKind = %q, want %q", resp.Msg.ErrorKind, "compile error")
	}
	if resp.Msg.ErrorCode != "unsupported" {
		t.Errorf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "unsupported")
	}
	if resp.Msg.Fingerprint != "" {
		t.Errorf("Fingerprint = %q, want empty after a compile error", resp.Msg.Fingerprint)
	}
}

// ---------------------------------------------------------------------------
// Evaluate: request errors
// ---------------------------------------------------------------------------

func TestEvaluate_MissingProgram(t *testing.T) {
	svc := newTestEvalService()

	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{}))
	if err == nil {
		t.Fatal("Evaluate with no program should fail")
	}
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
	if !errors.Is(err, ErrNoProgram) {
		t.Errorf("err = %v, want ErrNoProgram", err)
	}
}

func TestEvaluate_BothSources(t *testing.T) {
	svc := newTestEvalService()

	src := program(printNode(intNode(1)))
	src.YAML = "- {type: print, value: {type: int, value: 1}}"
	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{ProgramSource: src}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}

func TestEvaluate_MalformedTree(t *testing.T) {
	svc := newTestEvalService()

	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		ProgramSource: ProgramSource{Program: []byte(`[{"type": "bogus"}]`)},
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}

func TestEvaluate_UnknownSession(t *testing.T) {
	svc := newTestEvalService()

	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		SessionID:     "no-such-session",
		ProgramSource: program(printNode(intNode(1))),
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeNotFound)
	}
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestCompile_Listing(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Compile(bg(), connectReq(&CompileRequest{
		ProgramSource: program(printNode(binaryNode("+", intNode(1), intNode(2)))),
	}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Fatalf("Compile was not successful: %s", resp.Msg.ErrorMessage)
	}
	if resp.Msg.Constants != 2 {
		t.Errorf("Constants = %d, want 2", resp.Msg.Constants)
	}
	if len(resp.Msg.Listing) == 0 {
		t.Fatal("Compile should return a listing")
	}
	if !strings.Contains(strings.Join(resp.Msg.Listing, "\n"), "ADD") {
		t.Errorf("listing should contain ADD:\n%s", strings.Join(resp.Msg.Listing, "\n"))
	}

	chunk, in, err := bytecode.Decode(resp.Msg.Encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if chunk.CodeLen() != resp.Msg.Cells {
		t.Errorf("decoded cells = %d, want %d", chunk.CodeLen(), resp.Msg.Cells)
	}
	fp, err := bytecode.FingerprintHex(chunk, in)
	if err != nil {
		t.Fatalf("FingerprintHex: %v", err)
	}
	if fp != resp.Msg.Fingerprint {
		t.Errorf("decoded fingerprint = %s, want %s", fp, resp.Msg.Fingerprint)
	}
}

func TestCompile_MatchesEvaluateFingerprint(t *testing.T) {
	svc := newTestEvalService()
	src := program(letNode("a", intNode(2)), printNode(identNode("a")))

	compiled, err := svc.Compile(bg(), connectReq(&CompileRequest{ProgramSource: src}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	evaluated, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{ProgramSource: src}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if compiled.Msg.Fingerprint != evaluated.Msg.Fingerprint {
		t.Errorf("fingerprints differ: compile %s, evaluate %s", compiled.Msg.Fingerprint, evaluated.Msg.Fingerprint)
	}
}

func TestCompile_Error(t *testing.T) {
	svc := newTestEvalService()

	index := node{"type": "postfix", "op": "index", "operand": identNode("xs"), "args": []node{intNode(0)}}
	resp, err := svc.Compile(bg(), connectReq(&CompileRequest{
		ProgramSource: program(printNode(index)),
	}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("an index expression should not compile")
	}
	if resp.Msg.ErrorCode != "unsupported" {
		t.Errorf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "unsupported")
	}
	if resp.Msg.Encoded != nil {
		t.Error("a failed compile should not return an encoding")
	}
}

// ---------------------------------------------------------------------------
// Over HTTP
// ---------------------------------------------------------------------------

func TestEvaluate_OverConnect(t *testing.T) {
	ts := newTestServer(t)
	client := newClient[EvaluateRequest, EvaluateResponse](ts, EvaluateProcedure)

	resp, err := client.CallUnary(bg(), connectReq(&EvaluateRequest{
		ProgramSource: program(printNode(binaryNode("-", intNode(10), intNode(4)))),
	}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if got := outputTexts(resp.Msg.Outputs); len(got) != 1 || got[0] != "6" {
		t.Errorf("outputs = %v, want [6]", got)
	}

	_, err = client.CallUnary(bg(), connectReq(&EvaluateRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInvalidArgument)
	}
}

func TestEvaluate_StepLimit(t *testing.T) {
	ts := newTestServer(t, WithStepLimit(50))
	client := newClient[EvaluateRequest, EvaluateResponse](ts, EvaluateProcedure)

	loop := node{"type": "while", "cond": node{"type": "bool", "value": true}, "body": node{"type": "block"}}
	resp, err := client.CallUnary(bg(), connectReq(&EvaluateRequest{ProgramSource: program(loop)}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("an endless loop should hit the step limit")
	}
	if resp.Msg.ErrorCode != "step_limit" {
		t.Errorf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "step_limit")
	}
}

func endlessLoop() ProgramSource {
	return program(node{"type": "while", "cond": node{"type": "bool", "value": true}, "body": node{"type": "block"}})
}

// An endless loop under the default configuration must not hold the
// worker: it stops at DefaultStepLimit and later requests are served.
func TestEvaluate_DefaultStepLimitFreesWorker(t *testing.T) {
	tests := []struct {
		name string
		opts []ServerOption
	}{
		{"defaults", nil},
		{"unlimited vm option", []ServerOption{WithVMOptions(vm.WithStepLimit(0))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.opts...)
			client := newClient[EvaluateRequest, EvaluateResponse](ts, EvaluateProcedure)

			ctx, cancel := context.WithTimeout(bg(), 30*time.Second)
			defer cancel()
			resp, err := client.CallUnary(ctx, connectReq(&EvaluateRequest{ProgramSource: endlessLoop()}))
			if err != nil {
				t.Fatalf("loop request: %v", err)
			}
			if resp.Msg.ErrorCode != "step_limit" {
				t.Fatalf("ErrorCode = %q, want %q", resp.Msg.ErrorCode, "step_limit")
			}
			if resp.Msg.Steps != DefaultStepLimit+1 {
				t.Errorf("Steps = %d, want %d", resp.Msg.Steps, DefaultStepLimit+1)
			}

			ctx, cancel = context.WithTimeout(bg(), 5*time.Second)
			defer cancel()
			resp, err = client.CallUnary(ctx, connectReq(&EvaluateRequest{ProgramSource: program(printNode(intNode(1)))}))
			if err != nil {
				t.Fatalf("follow-up request: %v", err)
			}
			if got := outputTexts(resp.Msg.Outputs); len(got) != 1 || got[0] != "1" {
				t.Errorf("outputs = %v, want [1]", got)
			}
		})
	}
}
