package scan

import (
	"errors"
	"fmt"

	"byteweaver/logging"
	"byteweaver/native"
)

// ErrNotFound is returned when no occurrence of a signature exists in the
// searched range, or when the range became unreadable mid-scan.
var ErrNotFound = errors.New("signature not found")

// scanChunkSize is how much raw memory is validated and searched at a time.
// Region validity is re-checked per chunk so a mapping disappearing during a
// long scan aborts the scan instead of faulting.
const scanChunkSize = 64 * 1024

// Result describes a successful module search or export lookup.
type Result struct {
	ModuleBase uintptr
	Address    uintptr
	Offset     uintptr
}

// FindInBuffer performs a brute-force wildcard-aware search over data and
// returns the offset of the (skip+1)-th occurrence, 0-indexed by skip.
func FindInBuffer(data []byte, pattern Pattern, skip int) (int, bool) {
	if !pattern.IsValid() || len(data) < pattern.Len() {
		return 0, false
	}
	found := 0
	limit := len(data) - pattern.Len()
	for i := 0; i <= limit; i++ {
		if !pattern.MatchesAt(data, i) {
			continue
		}
		if found < skip {
			found++
			continue
		}
		return i, true
	}
	return 0, false
}

// Scanner resolves modules through the bounds oracle and searches raw memory
// in the current process. A nil Memory disables per-chunk range validation,
// which is only sane when the caller knows the range cannot be unmapped.
type Scanner struct {
	oracle native.ModuleOracle
	mem    native.Memory
}

// NewScanner returns a Scanner backed by the given oracle and protection
// querier.
func NewScanner(oracle native.ModuleOracle, mem native.Memory) *Scanner {
	return &Scanner{oracle: oracle, mem: mem}
}

// FindSignature scans [base, base+length) for the pattern, skipping the first
// skip matches. The scan walks the range in chunks, re-validating each chunk
// against the live region map; a chunk that is no longer readable ends the
// scan with ErrNotFound.
func (s *Scanner) FindSignature(base, length uintptr, pattern Pattern, skip int) (uintptr, error) {
	if !pattern.IsValid() {
		return 0, fmt.Errorf("%w: invalid pattern", ErrBadPattern)
	}
	patternLen := uintptr(pattern.Len())
	if base == 0 || length < patternLen {
		return 0, ErrNotFound
	}

	remainingSkips := skip
	cursor := base
	end := base + length
	for cursor < end {
		chunk := uintptr(scanChunkSize)
		if cursor+chunk > end {
			chunk = end - cursor
		}
		if chunk < patternLen {
			break
		}

		if s.mem != nil && !native.RangeValid(s.mem, cursor, chunk) {
			logging.Warnf("[scan] range %#x+%#x became unreadable, aborting scan", cursor, chunk)
			return 0, ErrNotFound
		}

		data := native.SliceAt(cursor, chunk)
		searchFrom := 0
		for {
			offset, ok := FindInBuffer(data[searchFrom:], pattern, 0)
			if !ok {
				break
			}
			hit := searchFrom + offset
			if remainingSkips > 0 {
				remainingSkips--
				searchFrom = hit + 1
				continue
			}
			return cursor + uintptr(hit), nil
		}

		// Overlap by patternLen-1 so matches straddling a chunk
		// boundary are still seen by the next iteration.
		cursor += chunk - (patternLen - 1)
	}
	return 0, ErrNotFound
}

// ModuleSearch scans an entire loaded module image for the pattern and
// returns the module base, the hit address, and the hit's offset from base.
func (s *Scanner) ModuleSearch(module, symbol string, pattern Pattern, skip int) (Result, error) {
	mod, err := s.oracle.Module(module)
	if err != nil {
		logging.Errorf("[scan] module %s not loaded for symbol %s: %v", module, symbol, err)
		return Result{}, err
	}

	address, err := s.FindSignature(mod.Base, mod.Size(), pattern, skip)
	if err != nil {
		logging.Warnf("[scan] no match for %s in module %s (pattern %s)", symbol, module, pattern)
		return Result{}, err
	}

	result := Result{ModuleBase: mod.Base, Address: address, Offset: address - mod.Base}
	logging.Debugf("[scan] %s found in %s: base=%#x address=%#x offset=%#x",
		symbol, module, result.ModuleBase, result.Address, result.Offset)
	return result, nil
}

// ModuleSearchSignature is ModuleSearch with a textual signature.
func (s *Scanner) ModuleSearchSignature(module, symbol, signature string, skip int) (Result, error) {
	pattern, err := ParsePattern(signature)
	if err != nil {
		return Result{}, err
	}
	return s.ModuleSearch(module, symbol, pattern, skip)
}

// LookupExport resolves symbol in the module's export table.
func (s *Scanner) LookupExport(module, symbol string) (Result, error) {
	mod, err := s.oracle.Module(module)
	if err != nil {
		logging.Errorf("[scan] module %s not loaded for export %s: %v", module, symbol, err)
		return Result{}, err
	}

	address, err := s.oracle.Export(module, symbol)
	if err != nil {
		logging.Errorf("[scan] export %s not found in module %s: %v", symbol, module, err)
		return Result{}, err
	}

	return Result{ModuleBase: mod.Base, Address: address, Offset: address - mod.Base}, nil
}

// ModuleBase resolves just the load base of a module.
func (s *Scanner) ModuleBase(module string) (uintptr, error) {
	mod, err := s.oracle.Module(module)
	if err != nil {
		return 0, err
	}
	return mod.Base, nil
}
