package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/journal"
	"github.com/chazu/quill/manifest"
	"github.com/chazu/quill/pkg/ast"
	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/interner"
	"github.com/chazu/quill/vm"
)

type runOptions struct {
	disasm      bool
	fingerprint bool
	journal     bool
}

// runFile compiles and runs the program at path, writing each printed value
// to out as it is produced. With opts.journal the run is recorded whether
// it fails to compile, fails at runtime or succeeds.
func runFile(ctx context.Context, path string, m *manifest.Manifest, opts runOptions, out io.Writer) error {
	if opts.fingerprint {
		return printFingerprint(path, m, out)
	}

	var j *journal.Journal
	if opts.journal {
		var err error
		if j, err = journal.Open(m.JournalPath()); err != nil {
			return err
		}
		defer commonlog.CallAndLogError(j.Close, "closing journal", log)
	}

	entry := journal.NewEntry(journal.SourceCLI, "")
	outputs, steps, runErr := execute(path, m, opts.disasm, entry, out)

	if j != nil {
		entry.Finish(outputs, steps, runErr)
		if err := j.Record(ctx, entry); err != nil {
			return errors.Join(runErr, err)
		}
		log.Infof("recorded run %s", entry.ID)
	}
	return runErr
}

// compileFile parses and compiles the program at path.
func compileFile(path string, m *manifest.Manifest) (*bytecode.Chunk, *interner.Interner, string, error) {
	program, err := ast.ParseFile(path)
	if err != nil {
		return nil, nil, "", err
	}
	chunk, in, err := compiler.Compile(program, m.CompilerOptions()...)
	if err != nil {
		return nil, nil, "", err
	}
	fp, err := bytecode.FingerprintHex(chunk, in)
	if err != nil {
		return nil, nil, "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	log.Infof("compiled %s: %d cells, %d constants, fingerprint %s", path, chunk.CodeLen(), chunk.ConstantCount(), fp)
	return chunk, in, fp, nil
}

func printFingerprint(path string, m *manifest.Manifest, out io.Writer) error {
	_, _, fp, err := compileFile(path, m)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, fp)
	return nil
}

// execute compiles and runs one program, filling in the entry's
// fingerprint. It returns the printed values as text.
func execute(path string, m *manifest.Manifest, disasm bool, entry *journal.Entry, out io.Writer) ([]string, int, error) {
	chunk, in, fp, err := compileFile(path, m)
	if err != nil {
		return nil, 0, err
	}
	entry.Fingerprint = fp

	if disasm {
		fmt.Fprint(out, chunk.DisassembleWithName(path, in))
		fmt.Fprintln(out)
	}

	vmOpts := append(m.VMOptions(), vm.WithPrintHook(func(v bytecode.Value) {
		fmt.Fprintln(out, v.Format(in))
	}))
	machine := vm.New(chunk, in, vmOpts...)
	outputs, err := machine.Run()

	texts := make([]string, len(outputs))
	for i, v := range outputs {
		texts[i] = v.Format(in)
	}
	return texts, machine.Steps(), err
}

// printHistory writes the most recent journal entries to out, newest first.
func printHistory(ctx context.Context, m *manifest.Manifest, limit int, out io.Writer) error {
	j, err := journal.Open(m.JournalPath())
	if err != nil {
		return err
	}
	defer commonlog.CallAndLogError(j.Close, "closing journal", log)

	entries, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := "ok"
		if e.Failed() {
			status = e.ErrorCode
			if status == "" {
				status = "error"
			}
		}
		fmt.Fprintf(out, "%s  %s  %-7s  %-12s  %s  %d output(s)\n",
			e.Started.Format(time.DateTime), e.ID, e.Source, status, shortFingerprint(e.Fingerprint), len(e.Outputs))
	}
	return nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
