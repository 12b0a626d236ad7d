package bytecode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/quill/pkg/interner"
)

// cborEncMode uses canonical mode so that equal programs encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireProgram is the encoded form of a chunk together with the strings its
// constants refer to.
type wireProgram struct {
	Version   uint16   `cbor:"1,keyasint"`
	Code      []Cell   `cbor:"2,keyasint"`
	Constants []Value  `cbor:"3,keyasint"`
	Strings   []string `cbor:"4,keyasint"`
}

// Encode serializes a chunk and its interner to canonical CBOR.
func Encode(c *Chunk, in *interner.Interner) ([]byte, error) {
	if c.open > 0 {
		return nil, fmt.Errorf("bytecode: encode: %w: %d outstanding", ErrOpenPatches, c.open)
	}
	w := wireProgram{
		Version:   c.Version,
		Code:      c.Code,
		Constants: c.Constants,
	}
	if in != nil {
		w.Strings = in.All()
	}
	data, err := cborEncMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("bytecode: encode: %w", err)
	}
	return data, nil
}

// Decode rebuilds a sealed chunk and its interner from Encode output.
func Decode(data []byte) (*Chunk, *interner.Interner, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, nil, fmt.Errorf("bytecode: decode: %w", err)
	}
	if w.Version != BytecodeVersion {
		return nil, nil, fmt.Errorf("bytecode: decode: unsupported version %d (expected %d)", w.Version, BytecodeVersion)
	}

	in, err := interner.FromStrings(w.Strings)
	if err != nil {
		return nil, nil, fmt.Errorf("bytecode: decode: %w", err)
	}

	c := NewChunk()
	c.Code = append(c.Code, w.Code...)
	for _, v := range w.Constants {
		if v.Kind != KindJumpOffset {
			if _, dup := c.constIndex[keyOf(v)]; !dup {
				c.constIndex[keyOf(v)] = len(c.Constants)
			}
		}
		c.Constants = append(c.Constants, v)
	}
	if err := c.Seal(); err != nil {
		return nil, nil, fmt.Errorf("bytecode: decode: %w", err)
	}
	return c, in, nil
}

// Fingerprint returns the SHA-256 of the canonical encoding. Compiling the
// same tree twice yields the same fingerprint.
func Fingerprint(c *Chunk, in *interner.Interner) ([32]byte, error) {
	data, err := Encode(c, in)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// FingerprintHex is Fingerprint rendered as lowercase hex.
func FingerprintHex(c *Chunk, in *interner.Interner) (string, error) {
	sum, err := Fingerprint(c, in)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}
