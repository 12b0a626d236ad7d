// Quill CLI - compiles and runs program trees, or serves them over HTTP
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/quill/journal"
	"github.com/chazu/quill/manifest"
	"github.com/chazu/quill/server"
)

var log = commonlog.GetLogger("quill.cli")

func main() {
	configDir := flag.String("config", "", "Directory holding quill.toml (default: search upward from the working directory)")
	disasm := flag.Bool("disasm", false, "Print the bytecode listing before running")
	fingerprint := flag.Bool("fingerprint", false, "Print the program fingerprint and exit")
	trace := flag.Bool("trace", false, "Log every executed instruction")
	verbose := flag.Int("v", -1, "Log verbosity (0 notice, 1 info, 2 debug; default from quill.toml)")
	record := flag.Bool("journal", false, "Record the run in the journal")
	history := flag.Int("history", 0, "Print the N most recent journal entries and exit")
	serveMode := flag.Bool("serve", false, "Start the evaluation server (Connect HTTP/JSON + WebSocket)")
	addr := flag.String("addr", "", "Server address (used with -serve; default from quill.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quill [options] [program.json|program.yaml]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a program tree to bytecode and runs it, printing each value it prints.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quill prog.json              # Run a program\n")
		fmt.Fprintf(os.Stderr, "  quill -disasm prog.yaml      # Show the listing, then run\n")
		fmt.Fprintf(os.Stderr, "  quill -journal prog.json     # Run and record it\n")
		fmt.Fprintf(os.Stderr, "  quill -history 10            # Show recent runs\n")
		fmt.Fprintf(os.Stderr, "  quill -serve -addr :7433     # Start the evaluation server\n")
	}
	flag.Parse()

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	verbosity := m.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	if *trace {
		m.VM.Trace = true
		if verbosity < 2 {
			verbosity = 2
		}
	}
	commonlog.Configure(verbosity, m.LogPath())

	ctx := context.Background()

	if *history > 0 {
		if err := printHistory(ctx, m, *history, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *serveMode {
		if *addr != "" {
			m.Server.Addr = *addr
		}
		if err := serve(m); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path := m.EntryPath()
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}
	if path == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := runOptions{
		disasm:      *disasm,
		fingerprint: *fingerprint,
		journal:     *record || m.Journal.Enabled,
	}
	if err := runFile(ctx, path, m, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest reads quill.toml from dir, or searches upward from the
// working directory when dir is empty. Without a manifest the defaults apply.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

// serve runs the evaluation server until it fails.
func serve(m *manifest.Manifest) error {
	opts := []server.ServerOption{
		server.WithCompilerOptions(m.CompilerOptions()...),
		server.WithVMOptions(m.VMOptions()...),
		server.WithStepLimit(m.ServerStepLimit()),
		server.WithTokenSecret(m.Server.TokenSecret),
	}

	if m.Journal.Enabled {
		j, err := journal.Open(m.JournalPath())
		if err != nil {
			return err
		}
		defer commonlog.CallAndLogError(j.Close, "closing journal", log)
		opts = append(opts, server.WithJournal(j))
	}

	srv := server.New(opts...)
	defer srv.Stop()
	return srv.ListenAndServe(m.Server.Addr)
}
