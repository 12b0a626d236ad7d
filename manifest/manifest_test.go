package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[source]
entry = "programs/main.json"

[compiler]
max-locals = 64

[vm]
stack-capacity = 128
step-limit = 10000
trace = true

[journal]
enabled = true
path = "runs.db"

[server]
addr = ":9000"
token-secret = "s3cret"
step-limit = 500

[log]
verbosity = 2
file = "quill.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Compiler.MaxLocals != 64 {
		t.Errorf("max-locals = %d, want 64", m.Compiler.MaxLocals)
	}
	if m.VM.StackCapacity != 128 || m.VM.StepLimit != 10000 || !m.VM.Trace {
		t.Errorf("vm = %+v", m.VM)
	}
	if !m.Journal.Enabled {
		t.Error("journal enabled = false, want true")
	}
	if got, want := m.JournalPath(), filepath.Join(m.Dir, "runs.db"); got != want {
		t.Errorf("journal path = %q, want %q", got, want)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "programs", "main.json"); got != want {
		t.Errorf("entry path = %q, want %q", got, want)
	}
	if m.Server.Addr != ":9000" || m.Server.TokenSecret != "s3cret" {
		t.Errorf("server = %+v", m.Server)
	}
	if m.ServerStepLimit() != 500 {
		t.Errorf("server step limit = %d, want 500", m.ServerStepLimit())
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "quill.log") {
		t.Errorf("log path = %v", p)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Compiler.MaxLocals != compiler.DefaultMaxLocals {
		t.Errorf("max-locals = %d, want %d", m.Compiler.MaxLocals, compiler.DefaultMaxLocals)
	}
	if m.VM.StackCapacity != vm.DefaultStackCapacity {
		t.Errorf("stack-capacity = %d, want %d", m.VM.StackCapacity, vm.DefaultStackCapacity)
	}
	if m.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}
	if m.Server.Addr != DefaultServerAddr {
		t.Errorf("addr = %q, want %q", m.Server.Addr, DefaultServerAddr)
	}
	if m.EntryPath() != "" {
		t.Errorf("entry path = %q, want empty", m.EntryPath())
	}
	if m.LogPath() != nil {
		t.Error("log path should be nil by default")
	}
	if m.ServerStepLimit() != DefaultServerStepLimit {
		t.Errorf("server step limit = %d, want %d", m.ServerStepLimit(), DefaultServerStepLimit)
	}
	if m.VM.StepLimit != 0 {
		t.Errorf("vm step limit = %d, want 0 (unlimited for the CLI)", m.VM.StepLimit)
	}
}

func TestServerStepLimitFallsBackToVM(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[vm]\nstep-limit = 2500\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.ServerStepLimit() != 2500 {
		t.Errorf("server step limit = %d, want 2500", m.ServerStepLimit())
	}
	if d := Default(); d.ServerStepLimit() != DefaultServerStepLimit {
		t.Errorf("default server step limit = %d, want %d", d.ServerStepLimit(), DefaultServerStepLimit)
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if err := m.Validate(); err != nil {
		t.Fatalf("default manifest is invalid: %v", err)
	}
	if len(m.CompilerOptions()) != 1 || len(m.VMOptions()) != 3 {
		t.Error("unexpected option counts")
	}
	if m.JournalPath() != DefaultJournalPath {
		t.Errorf("journal path = %q, want %q", m.JournalPath(), DefaultJournalPath)
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"negative capacity", "[vm]\nstack-capacity = -1\n", "stack-capacity"},
		{"capacity below locals", "[vm]\nstack-capacity = 8\n", "smaller than"},
		{"negative step limit", "[vm]\nstep-limit = -5\n", "step-limit"},
		{"negative locals", "[compiler]\nmax-locals = -2\n", "max-locals"},
		{"syntax", "[project\n", "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing quill.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"walker\"\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "walker" {
		t.Errorf("project name = %q, want walker", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest")
	}
}
