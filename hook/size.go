package hook

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// PatchSize returns the number of bytes a detour at the start of code must
// relocate: the smallest count of whole instructions covering at least
// minFootprint bytes. mode is the x86 decode mode (32 or 64). The caller
// supplies enough bytes to cover the footprint plus one maximal instruction;
// running out of bytes or hitting an undecodable stream is an error, since
// guessing an instruction boundary would corrupt the target.
func PatchSize(code []byte, mode int, minFootprint int) (int, error) {
	if minFootprint <= 0 {
		return 0, fmt.Errorf("invalid minimum footprint %d", minFootprint)
	}

	size := 0
	for size < minFootprint {
		if size >= len(code) {
			return 0, fmt.Errorf("ran out of code after %d of %d bytes", size, minFootprint)
		}
		inst, err := x86asm.Decode(code[size:], mode)
		if err != nil {
			return 0, fmt.Errorf("undecodable instruction at offset %d: %w", size, err)
		}
		size += inst.Len
	}
	return size, nil
}
