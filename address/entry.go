// Package address resolves symbolic addresses through an ordered strategy
// chain (export lookup, signature scan, module-base arithmetic), caches the
// results, and keeps them in a thread-safe database that can re-verify itself
// after a target module is rebuilt or relocated.
package address

import (
	"errors"
	"fmt"

	"byteweaver/logging"
	"byteweaver/scan"
)

// ErrUnresolved is returned when every applicable strategy failed to produce
// an address for an entry.
var ErrUnresolved = errors.New("address unresolved")

// Resolver is the lookup capability an Entry resolves through. *scan.Scanner
// satisfies it; tests substitute counting fakes.
type Resolver interface {
	ModuleSearch(module, symbol string, pattern scan.Pattern, skip int) (scan.Result, error)
	LookupExport(module, symbol string) (scan.Result, error)
	ModuleBase(module string) (uintptr, error)
}

// Entry is one named symbol and the data needed to locate it. Identity
// (symbol and module name) is immutable; strategy data and the cached
// addresses change only through Set calls and Update.
//
// Resolution precedence is fixed: export lookup when the entry is flagged as
// an export, else signature scan when a pattern is set, else module base plus
// known offset, else module-name resolution plus known offset. A failing
// strategy never falls through to another within one call.
type Entry struct {
	symbolName string
	moduleName string

	knownOffset uintptr
	pattern     *scan.Pattern
	patternText string
	isExport    bool

	moduleAddress uintptr
	targetAddress uintptr
}

// NewEntry builds an entry that resolves through the module's export table,
// the default strategy when no other data is supplied.
func NewEntry(symbolName, moduleName string) *Entry {
	return &Entry{symbolName: symbolName, moduleName: moduleName, isExport: true}
}

// WithKnownAddress builds an entry whose target is already known.
func WithKnownAddress(symbolName, moduleName string, address uintptr) *Entry {
	e := &Entry{symbolName: symbolName, moduleName: moduleName}
	e.SetKnownAddress(address)
	return e
}

// WithKnownOffset builds an entry that resolves as module base + offset.
func WithKnownOffset(symbolName, moduleName string, offset uintptr) *Entry {
	e := &Entry{symbolName: symbolName, moduleName: moduleName}
	e.SetKnownOffset(offset)
	return e
}

// WithScanPattern builds an entry that resolves by signature scan. The
// signature is parsed here; a malformed signature is a construction error.
func WithScanPattern(symbolName, moduleName, signature string) (*Entry, error) {
	e := &Entry{symbolName: symbolName, moduleName: moduleName}
	if err := e.SetScanPattern(signature); err != nil {
		return nil, err
	}
	return e, nil
}

// Symbol returns the entry's symbol name.
func (e *Entry) Symbol() string { return e.symbolName }

// Module returns the entry's module name.
func (e *Entry) Module() string { return e.moduleName }

// ModuleBase returns the cached module load base, 0 when unresolved.
func (e *Entry) ModuleBase() uintptr { return e.moduleAddress }

// Target returns the cached target address, 0 when unresolved.
func (e *Entry) Target() uintptr { return e.targetAddress }

// KnownOffset returns the offset from module base, 0 when unset.
func (e *Entry) KnownOffset() uintptr { return e.knownOffset }

// IsExport reports whether the entry resolves through the export table.
func (e *Entry) IsExport() bool { return e.isExport }

// PatternText returns the textual signature, empty when no pattern is set.
func (e *Entry) PatternText() string { return e.patternText }

// SetModuleBase caches the module load base.
func (e *Entry) SetModuleBase(base uintptr) { e.moduleAddress = base }

// SetKnownAddress caches the resolved target address.
func (e *Entry) SetKnownAddress(target uintptr) { e.targetAddress = target }

// SetKnownOffset sets the offset-from-base strategy data.
func (e *Entry) SetKnownOffset(offset uintptr) { e.knownOffset = offset }

// SetScanPattern sets the signature-scan strategy data.
func (e *Entry) SetScanPattern(signature string) error {
	pattern, err := scan.ParsePattern(signature)
	if err != nil {
		return err
	}
	e.pattern = &pattern
	e.patternText = signature
	return nil
}

// Update resolves the entry via the strategy precedence and caches module
// base, target address, and derived offset, so later calls can short-circuit
// to pure arithmetic.
func (e *Entry) Update(r Resolver) (uintptr, error) {
	switch {
	case e.isExport:
		result, err := r.LookupExport(e.moduleName, e.symbolName)
		if err != nil {
			logging.Errorf("[address] failed to look up export %s in %s: %v", e.symbolName, e.moduleName, err)
			return 0, fmt.Errorf("%w: export %s in %s: %w", ErrUnresolved, e.symbolName, e.moduleName, err)
		}
		e.cacheResult(result)
		return e.targetAddress, nil

	case e.pattern != nil:
		result, err := r.ModuleSearch(e.moduleName, e.symbolName, *e.pattern, 0)
		if err != nil {
			logging.Errorf("[address] pattern scan failed for %s in %s: %v", e.symbolName, e.moduleName, err)
			return 0, fmt.Errorf("%w: pattern scan %s in %s: %w", ErrUnresolved, e.symbolName, e.moduleName, err)
		}
		e.cacheResult(result)
		return e.targetAddress, nil

	case e.moduleAddress > 0 && e.knownOffset > 0:
		e.targetAddress = e.moduleAddress + e.knownOffset
		return e.targetAddress, nil

	case e.moduleName != "" && e.knownOffset > 0:
		base, err := r.ModuleBase(e.moduleName)
		if err != nil {
			logging.Errorf("[address] module %s not loaded for %s: %v", e.moduleName, e.symbolName, err)
			return 0, fmt.Errorf("%w: module %s: %w", ErrUnresolved, e.moduleName, err)
		}
		e.moduleAddress = base
		e.targetAddress = base + e.knownOffset
		return e.targetAddress, nil
	}

	logging.Errorf("[address] no strategy can resolve %s in %s", e.symbolName, e.moduleName)
	return 0, fmt.Errorf("%w: %s in %s", ErrUnresolved, e.symbolName, e.moduleName)
}

// Address returns the cached target, performing base+offset arithmetic or a
// full Update when the cache is cold.
func (e *Entry) Address(r Resolver) (uintptr, error) {
	if e.targetAddress > 0 {
		return e.targetAddress, nil
	}
	if e.moduleAddress > 0 && e.knownOffset > 0 {
		e.targetAddress = e.moduleAddress + e.knownOffset
		return e.targetAddress, nil
	}
	return e.Update(r)
}

// AddressReadOnly resolves without mutating the cache, for use while only a
// shared lock over the owning database is held. Repeated calls against a
// non-updated entry re-pay the lookup cost every time.
func (e *Entry) AddressReadOnly(r Resolver) (uintptr, error) {
	if e.targetAddress > 0 {
		return e.targetAddress, nil
	}
	if e.moduleAddress > 0 && e.knownOffset > 0 {
		return e.moduleAddress + e.knownOffset, nil
	}

	switch {
	case e.isExport:
		result, err := r.LookupExport(e.moduleName, e.symbolName)
		if err != nil {
			logging.Errorf("[address] failed to look up export %s in %s: %v", e.symbolName, e.moduleName, err)
			return 0, fmt.Errorf("%w: export %s in %s: %w", ErrUnresolved, e.symbolName, e.moduleName, err)
		}
		logging.Warnf("[address] read-only access against non-updated entry %s; consider Update", e.symbolName)
		return result.Address, nil

	case e.pattern != nil:
		result, err := r.ModuleSearch(e.moduleName, e.symbolName, *e.pattern, 0)
		if err != nil {
			logging.Errorf("[address] pattern scan failed for %s in %s: %v", e.symbolName, e.moduleName, err)
			return 0, fmt.Errorf("%w: pattern scan %s in %s: %w", ErrUnresolved, e.symbolName, e.moduleName, err)
		}
		logging.Warnf("[address] read-only access against non-updated entry %s; consider Update", e.symbolName)
		return result.Address, nil

	case e.moduleName != "" && e.knownOffset > 0:
		base, err := r.ModuleBase(e.moduleName)
		if err != nil {
			logging.Errorf("[address] module %s not loaded for %s: %v", e.moduleName, e.symbolName, err)
			return 0, fmt.Errorf("%w: module %s: %w", ErrUnresolved, e.moduleName, err)
		}
		return base + e.knownOffset, nil
	}

	return 0, fmt.Errorf("%w: %s in %s", ErrUnresolved, e.symbolName, e.moduleName)
}

// Verify re-derives the address without touching the cache and reports
// whether it still matches. A mismatch means the module was rebuilt,
// relocated, or updated since the entry was resolved.
func (e *Entry) Verify(r Resolver) bool {
	if e.moduleAddress > 0 && e.knownOffset > 0 && !e.isExport && e.pattern == nil {
		return true
	}

	var fresh uintptr
	switch {
	case e.isExport:
		result, err := r.LookupExport(e.moduleName, e.symbolName)
		if err != nil {
			logging.Errorf("[address] verify: export %s in %s not found: %v", e.symbolName, e.moduleName, err)
			return false
		}
		fresh = result.Address

	case e.pattern != nil:
		result, err := r.ModuleSearch(e.moduleName, e.symbolName, *e.pattern, 0)
		if err != nil {
			logging.Errorf("[address] verify: pattern for %s in %s not found: %v", e.symbolName, e.moduleName, err)
			return false
		}
		fresh = result.Address
	}

	if fresh != 0 {
		return fresh == e.targetAddress
	}
	return e.targetAddress != 0
}

// Dump logs the entry's resolution state.
func (e *Entry) Dump() {
	logging.Debugf("[address] --- %s ---", e.symbolName)
	logging.Debugf("[address]  module  : %s", e.moduleName)
	logging.Debugf("[address]  base    : %#x", e.moduleAddress)
	logging.Debugf("[address]  offset  : %#x", e.knownOffset)
	logging.Debugf("[address]  target  : %#x", e.targetAddress)
	if e.patternText != "" {
		logging.Debugf("[address]  pattern : %s", e.patternText)
	}
}

func (e *Entry) cacheResult(result scan.Result) {
	e.moduleAddress = result.ModuleBase
	e.targetAddress = result.Address
	e.knownOffset = result.Offset
}
