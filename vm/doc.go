// Package vm implements the Quill virtual machine.
//
// This package contains:
//   - A fixed-capacity operand stack with checked push and pop
//   - The global variable table shared across runs of a session
//   - Typed arithmetic with integer/float promotion
//   - The fetch-decode-execute loop over a bytecode.Chunk
//
// Every failure is returned as a *failure.Error of kind Runtime carrying
// the offset of the instruction that failed. The VM never panics on a
// malformed chunk.
package vm
