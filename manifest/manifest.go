// Package manifest handles quill.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/vm"
)

// FileName is the name of the project configuration file.
const FileName = "quill.toml"

// Defaults applied after decoding.
const (
	DefaultJournalPath = ".quill/journal.db"
	DefaultServerAddr  = "127.0.0.1:7433"

	// DefaultServerStepLimit bounds service runs when neither [server] nor
	// [vm] sets a step limit.
	DefaultServerStepLimit = 1_000_000
)

// Manifest represents a quill.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`
	VM       VMConfig       `toml:"vm"`
	Journal  JournalConfig  `toml:"journal"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the quill.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source names the program tree run when no file is given on the command line.
type Source struct {
	Entry string `toml:"entry"`
}

// CompilerConfig configures compilation.
type CompilerConfig struct {
	MaxLocals int `toml:"max-locals"`
}

// VMConfig configures execution.
type VMConfig struct {
	StackCapacity int  `toml:"stack-capacity"`
	StepLimit     int  `toml:"step-limit"`
	Trace         bool `toml:"trace"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig configures the evaluation service.
type ServerConfig struct {
	Addr string `toml:"addr"`
	// TokenSecret enables signed session tokens when non-empty.
	TokenSecret string `toml:"token-secret"`
	// StepLimit bounds every evaluation run by the service. Zero falls back
	// to [vm] step-limit, then to DefaultServerStepLimit.
	StepLimit int `toml:"step-limit"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no quill.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a quill.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a quill.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Compiler.MaxLocals == 0 {
		m.Compiler.MaxLocals = compiler.DefaultMaxLocals
	}
	if m.VM.StackCapacity == 0 {
		m.VM.StackCapacity = vm.DefaultStackCapacity
	}
	if m.Journal.Path == "" {
		m.Journal.Path = DefaultJournalPath
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultServerAddr
	}
	if m.Server.StepLimit == 0 {
		m.Server.StepLimit = m.VM.StepLimit
		if m.Server.StepLimit == 0 {
			m.Server.StepLimit = DefaultServerStepLimit
		}
	}
}

// Validate rejects settings the compiler or VM cannot honor.
func (m *Manifest) Validate() error {
	if m.Compiler.MaxLocals < 1 {
		return fmt.Errorf("compiler.max-locals must be positive, got %d", m.Compiler.MaxLocals)
	}
	if m.VM.StackCapacity < 1 {
		return fmt.Errorf("vm.stack-capacity must be positive, got %d", m.VM.StackCapacity)
	}
	if m.VM.StackCapacity < m.Compiler.MaxLocals {
		return fmt.Errorf("vm.stack-capacity (%d) is smaller than compiler.max-locals (%d)", m.VM.StackCapacity, m.Compiler.MaxLocals)
	}
	if m.VM.StepLimit < 0 {
		return fmt.Errorf("vm.step-limit must not be negative, got %d", m.VM.StepLimit)
	}
	if m.Server.StepLimit < 0 {
		return fmt.Errorf("server.step-limit must not be negative, got %d", m.Server.StepLimit)
	}
	return nil
}

// resolve makes path absolute relative to the manifest directory.
func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// EntryPath returns the absolute path of the entry program, or "" if none
// is configured.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// JournalPath returns the absolute path of the journal database.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Journal.Path)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}

// CompilerOptions translates the [compiler] section.
func (m *Manifest) CompilerOptions() []compiler.Option {
	return []compiler.Option{compiler.WithMaxLocals(m.Compiler.MaxLocals)}
}

// VMOptions translates the [vm] section.
func (m *Manifest) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithStackCapacity(m.VM.StackCapacity),
		vm.WithStepLimit(m.VM.StepLimit),
		vm.WithTrace(m.VM.Trace),
	}
}

// ServerStepLimit returns the step limit applied to service evaluations.
func (m *Manifest) ServerStepLimit() int {
	if m.Server.StepLimit > 0 {
		return m.Server.StepLimit
	}
	if m.VM.StepLimit > 0 {
		return m.VM.StepLimit
	}
	return DefaultServerStepLimit
}
