// Package interner maps strings to small dense integer ids.
//
// An Interner is append-only: once a string has been given an id, that id
// never changes and is never reused. Identifier names and string literals
// share one id space for the lifetime of a compile+run session.
package interner

import (
	"fmt"
	"sync"
)

// ID identifies an interned string. IDs start at 0 and are dense.
type ID uint32

// Interner is a bijection between strings and IDs.
type Interner struct {
	mu     sync.RWMutex
	byText map[string]ID // text -> ID
	byID   []string      // ID -> text
}

// New creates an empty interner.
func New() *Interner {
	return &Interner{
		byText: make(map[string]ID),
		byID:   make([]string, 0, 64),
	}
}

// Intern returns the ID for text, assigning the next ID if text is new.
func (in *Interner) Intern(text string) ID {
	// Fast path: read-only lookup
	in.mu.RLock()
	if id, ok := in.byText[text]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := in.byText[text]; ok {
		return id
	}

	id := ID(len(in.byID))
	in.byText[text] = id
	in.byID = append(in.byID, text)
	return id
}

// Lookup returns the ID for text without interning it.
func (in *Interner) Lookup(text string) (ID, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.byText[text]
	return id, ok
}

// Text returns the string for id, or false if id was never issued.
func (in *Interner) Text(id ID) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if int(id) >= len(in.byID) {
		return "", false
	}
	return in.byID[id], true
}

// MustText is like Text but reports an unknown id as an error.
func (in *Interner) MustText(id ID) (string, error) {
	text, ok := in.Text(id)
	if !ok {
		return "", fmt.Errorf("interner: unknown id %d (have %d)", id, in.Len())
	}
	return text, nil
}

// Len returns the number of interned strings.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}

// All returns every interned string in ID order.
func (in *Interner) All() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	result := make([]string, len(in.byID))
	copy(result, in.byID)
	return result
}

// FromStrings rebuilds an interner whose IDs match the order of texts.
// Duplicate entries are rejected since they would break the bijection.
func FromStrings(texts []string) (*Interner, error) {
	in := New()
	for i, text := range texts {
		if id := in.Intern(text); int(id) != i {
			return nil, fmt.Errorf("interner: duplicate entry %q at %d (first seen at %d)", text, i, id)
		}
	}
	return in, nil
}
