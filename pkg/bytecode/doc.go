// Package bytecode defines the compiled form of a Quill program: the
// runtime Value model, the opcode set, and the Chunk that holds code and
// constants.
//
// # Cells
//
// A chunk's code is a flat sequence of cells. Each cell is either an
// instruction or a reference into the chunk's constant pool. An instruction
// with an operand is immediately followed by exactly one constant
// reference:
//
//	CONSTANT      #n   the value to push
//	*_GLOBAL      #n   an identifier naming the global
//	*_LOCAL       #n   an integer naming the stack slot
//	JUMP*/LOOP    #n   a jump offset holding an absolute cell position
//
// # Backpatching
//
// Forward jumps are emitted before their target is known. EmitJump returns
// a Patch that must be resolved exactly once; Seal refuses to close a chunk
// while any patch is open. After Seal the chunk is read-only and can be
// executed, disassembled, encoded or fingerprinted.
//
// # Encoding
//
// Encode produces canonical CBOR of a chunk plus its interner, so the same
// program always yields the same bytes and the same Fingerprint. The
// encoding exists for in-memory transport to service clients.
package bytecode
