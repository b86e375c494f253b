package native

import "unsafe"

// SliceAt views [addr, addr+size) as a byte slice. The address comes from a
// region map, a resolved symbol, or a signature hit rather than a Go
// allocation, so it carries no pointer provenance and the checkptr
// instrumentation must not inspect the conversion. Callers validate the range
// with RangeValid before touching the slice.
//
//go:nocheckptr
func SliceAt(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
