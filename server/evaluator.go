package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/journal"
	"github.com/chazu/quill/pkg/ast"
	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/failure"
	"github.com/chazu/quill/pkg/interner"
	"github.com/chazu/quill/vm"
)

// ErrNoProgram is returned when a request carries no program tree.
var ErrNoProgram = errors.New("a program (JSON) or yaml source is required")

// Evaluator compiles and runs programs inside sessions on the worker.
type Evaluator struct {
	worker       *Worker
	sessions     *SessionStore
	journal      *journal.Journal
	compilerOpts []compiler.Option
	vmOpts       []vm.Option
}

// decodeProgram reads the program tree of a request.
func decodeProgram(src ProgramSource) ([]ast.Node, error) {
	hasJSON := len(bytes.TrimSpace(src.Program)) > 0
	hasYAML := strings.TrimSpace(src.YAML) != ""
	switch {
	case hasJSON && hasYAML:
		return nil, errors.New("program and yaml are mutually exclusive")
	case hasJSON:
		return ast.ParseBytes(src.Program)
	case hasYAML:
		return ast.ParseYAML(strings.NewReader(src.YAML))
	}
	return nil, ErrNoProgram
}

func view(v bytecode.Value, in *interner.Interner) ValueView {
	return ValueView{Kind: v.Kind.String(), Text: v.Format(in)}
}

func texts(views []ValueView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Text
	}
	return out
}

// describeError fills the error fields shared by responses.
func describeError(err error) (kind, code, message string, offset int) {
	message = err.Error()
	if fe, ok := failure.As(err); ok {
		kind, code = fe.Kind.String(), string(fe.Code)
		if fe.Offset != failure.NoOffset {
			offset = fe.Offset
		}
	}
	return
}

func (e *Evaluator) compile(session *Session, program []ast.Node) (*bytecode.Chunk, *interner.Interner, error) {
	opts := append([]compiler.Option{}, e.compilerOpts...)
	opts = append(opts, compiler.WithInterner(session.Interner))
	return compiler.Compile(program, opts...)
}

// Evaluate runs program in the session named by sessionID and records the
// run in the journal. onPrint, if set, sees each printed value as it is
// produced; it is called on the worker goroutine.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID, source string, program []ast.Node, onPrint func(ValueView)) (*EvaluateResponse, error) {
	session, err := e.sessions.Resolve(sessionID)
	if err != nil {
		return nil, err
	}
	entry := journal.NewEntry(source, sessionID)

	value, err := e.worker.Do(ctx, func() any {
		return e.run(session, program, onPrint)
	})
	if err != nil {
		return nil, err
	}
	res := value.(*EvaluateResponse)

	if e.journal != nil {
		entry.Fingerprint = res.Fingerprint
		var runErr error
		if !res.Success {
			runErr = errors.New(res.ErrorMessage)
		}
		entry.Finish(texts(res.Outputs), res.Steps, runErr)
		entry.ErrorKind, entry.ErrorCode = res.ErrorKind, res.ErrorCode
		if err := e.journal.Record(ctx, entry); err != nil {
			log.Warningf("recording run %s: %v", entry.ID, err)
		} else {
			res.RunID = entry.ID
		}
	}
	return res, nil
}

// run compiles and executes on the worker goroutine.
func (e *Evaluator) run(session *Session, program []ast.Node, onPrint func(ValueView)) *EvaluateResponse {
	res := &EvaluateResponse{Outputs: []ValueView{}}
	session.runs++

	chunk, in, err := e.compile(session, program)
	if err != nil {
		res.ErrorKind, res.ErrorCode, res.ErrorMessage, res.Offset = describeError(err)
		return res
	}
	if fp, err := bytecode.FingerprintHex(chunk, in); err == nil {
		res.Fingerprint = fp
	} else {
		log.Warningf("fingerprinting program: %v", err)
	}

	opts := append([]vm.Option{}, e.vmOpts...)
	opts = append(opts, vm.WithGlobals(session.Globals))
	if onPrint != nil {
		opts = append(opts, vm.WithPrintHook(func(v bytecode.Value) {
			onPrint(view(v, in))
		}))
	}

	machine := vm.New(chunk, in, opts...)
	outputs, err := machine.Run()
	res.Steps = machine.Steps()
	if err != nil {
		res.ErrorKind, res.ErrorCode, res.ErrorMessage, res.Offset = describeError(err)
		return res
	}

	res.Success = true
	for _, v := range outputs {
		res.Outputs = append(res.Outputs, view(v, in))
	}
	return res
}

// Compile compiles program in the session named by sessionID without
// running it.
func (e *Evaluator) Compile(ctx context.Context, sessionID string, program []ast.Node) (*CompileResponse, error) {
	session, err := e.sessions.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	value, err := e.worker.Do(ctx, func() any {
		res := &CompileResponse{}
		chunk, in, err := e.compile(session, program)
		if err != nil {
			res.ErrorKind, res.ErrorCode, res.ErrorMessage, _ = describeError(err)
			return res
		}
		encoded, err := bytecode.Encode(chunk, in)
		if err != nil {
			res.ErrorKind, res.ErrorCode, res.ErrorMessage, _ = describeError(fmt.Errorf("encoding chunk: %w", err))
			return res
		}
		fp, err := bytecode.FingerprintHex(chunk, in)
		if err != nil {
			res.ErrorMessage = fmt.Sprintf("fingerprinting chunk: %v", err)
			return res
		}

		res.Success = true
		res.Fingerprint = fp
		res.Cells = chunk.CodeLen()
		res.Constants = chunk.ConstantCount()
		res.Listing = chunk.DisassembleToLines(in)
		res.Encoded = encoded
		return res
	})
	if err != nil {
		return nil, err
	}
	return value.(*CompileResponse), nil
}

// Globals lists the globals of a session, sorted by name.
func (e *Evaluator) Globals(ctx context.Context, sessionID string) ([]Binding, error) {
	session, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	value, err := e.worker.Do(ctx, func() any {
		names := session.Globals.Names(session.Interner)
		bindings := make([]Binding, 0, len(names))
		for _, name := range names {
			id, _ := session.Interner.Lookup(name)
			v, _ := session.Globals.Get(id)
			bindings = append(bindings, Binding{Name: name, Value: view(v, session.Interner)})
		}
		return bindings
	})
	if err != nil {
		return nil, err
	}
	return value.([]Binding), nil
}

// Sessions summarizes all live sessions.
func (e *Evaluator) Sessions(ctx context.Context) ([]SessionInfo, error) {
	value, err := e.worker.Do(ctx, func() any {
		list := e.sessions.List()
		infos := make([]SessionInfo, len(list))
		for i, s := range list {
			infos[i] = SessionInfo{SessionID: s.ID, Name: s.Name, Runs: s.Runs(), Globals: s.Globals.Len()}
		}
		return infos
	})
	if err != nil {
		return nil, err
	}
	return value.([]SessionInfo), nil
}
