// Package memutil provides validated reads and diagnostic dumps of the
// current process's memory. Every raw access is preceded by a region-map
// check; an address the map does not cover yields an error instead of a
// fault.
package memutil

import (
	"encoding/hex"
	"fmt"
	"unsafe"

	"byteweaver/native"
)

const pointerSize = unsafe.Sizeof(uintptr(0))

// ReadBytes returns a copy of [addr, addr+size) after validating the range.
func ReadBytes(mem native.Memory, addr, size uintptr) ([]byte, error) {
	if addr == 0 || size == 0 {
		return nil, fmt.Errorf("%w: %#x+%#x", native.ErrAddressNotMapped, addr, size)
	}
	if !native.RangeValid(mem, addr, size) {
		return nil, fmt.Errorf("%w: %#x+%#x", native.ErrAddressNotMapped, addr, size)
	}
	out := make([]byte, size)
	copy(out, native.SliceAt(addr, size))
	return out, nil
}

// ReadPointer reads a pointer-sized value at addr.
func ReadPointer(mem native.Memory, addr uintptr) (uintptr, error) {
	data, err := ReadBytes(mem, addr, pointerSize)
	if err != nil {
		return 0, err
	}
	return *(*uintptr)(unsafe.Pointer(&data[0])), nil
}

// ReadCString reads a NUL-terminated string of at most maxLength bytes. The
// readable prefix is scanned page by page so a string running off the end of
// a mapping returns what was readable instead of faulting.
func ReadCString(mem native.Memory, addr, maxLength uintptr) (string, error) {
	if addr == 0 || maxLength == 0 {
		return "", fmt.Errorf("%w: %#x", native.ErrAddressNotMapped, addr)
	}

	var out []byte
	cursor := addr
	end := addr + maxLength
	for cursor < end {
		region, err := mem.Query(cursor)
		if err != nil || !region.Committed || !region.Prot.CanRead() {
			if len(out) > 0 {
				return string(out), nil
			}
			return "", fmt.Errorf("%w: %#x", native.ErrAddressNotMapped, cursor)
		}

		chunkEnd := region.End()
		if chunkEnd > end {
			chunkEnd = end
		}
		chunk := native.SliceAt(cursor, chunkEnd-cursor)
		for _, b := range chunk {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
		cursor = chunkEnd
	}
	return string(out), nil
}

// BytesToHex renders data as a contiguous lowercase hex string.
func BytesToHex(data []byte) string {
	return hex.EncodeToString(data)
}
