package vm

import (
	"sort"

	"github.com/chazu/quill/pkg/bytecode"
	"github.com/chazu/quill/pkg/interner"
)

// Globals maps interned names to values. A table outlives a single run so
// that successive programs in one session see each other's definitions.
// It is not safe for concurrent use.
type Globals struct {
	values map[interner.ID]bytecode.Value
}

// NewGlobals creates an empty global table.
func NewGlobals() *Globals {
	return &Globals{values: make(map[interner.ID]bytecode.Value)}
}

// Define binds name to v, replacing any existing binding.
func (g *Globals) Define(name interner.ID, v bytecode.Value) {
	g.values[name] = v
}

// Get returns the value bound to name.
func (g *Globals) Get(name interner.ID) (bytecode.Value, bool) {
	v, ok := g.values[name]
	return v, ok
}

// Set overwrites an existing binding. It reports false, leaving the table
// unchanged, when name is not defined.
func (g *Globals) Set(name interner.ID, v bytecode.Value) bool {
	if _, ok := g.values[name]; !ok {
		return false
	}
	g.values[name] = v
	return true
}

// Len returns the number of bindings.
func (g *Globals) Len() int {
	return len(g.values)
}

// Names returns the bound names resolved through in, sorted.
func (g *Globals) Names(in *interner.Interner) []string {
	names := make([]string, 0, len(g.values))
	for id := range g.values {
		if text, ok := in.Text(id); ok {
			names = append(names, text)
		}
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the table.
func (g *Globals) Snapshot() map[interner.ID]bytecode.Value {
	out := make(map[interner.ID]bytecode.Value, len(g.values))
	for id, v := range g.values {
		out[id] = v
	}
	return out
}
