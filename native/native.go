// Package native defines the platform capabilities the core library consumes:
// page-protection control, instruction-cache maintenance, and the module-bounds
// oracle. Platform implementations live in native_windows and native_linux;
// tests substitute fakes.
package native

import "errors"

var (
	// ErrModuleNotLoaded is returned when a module-bounds or export lookup
	// names a module that is not mapped into the process.
	ErrModuleNotLoaded = errors.New("module not loaded")

	// ErrExportNotFound is returned when a module is loaded but does not
	// export the requested symbol.
	ErrExportNotFound = errors.New("export not found")

	// ErrAddressNotMapped is returned when an address falls outside every
	// committed region of the address space.
	ErrAddressNotMapped = errors.New("address not mapped")
)

// Protection is a platform-neutral page protection bitmask.
type Protection uint8

const (
	ProtNone  Protection = 0
	ProtRead  Protection = 1 << 0
	ProtWrite Protection = 1 << 1
	ProtExec  Protection = 1 << 2

	// ProtRWX is what a patch needs while it copies bytes over code.
	ProtRWX = ProtRead | ProtWrite | ProtExec
)

// CanRead reports whether the protection allows reads.
func (p Protection) CanRead() bool { return p&ProtRead != 0 }

// CanWrite reports whether the protection allows writes.
func (p Protection) CanWrite() bool { return p&ProtWrite != 0 }

// CanExecute reports whether the protection allows execution.
func (p Protection) CanExecute() bool { return p&ProtExec != 0 }

// String renders the protection in /proc/<pid>/maps style ("rwx", "r-x", ...).
func (p Protection) String() string {
	b := []byte("---")
	if p.CanRead() {
		b[0] = 'r'
	}
	if p.CanWrite() {
		b[1] = 'w'
	}
	if p.CanExecute() {
		b[2] = 'x'
	}
	return string(b)
}

// Region describes one contiguous run of pages sharing a protection state.
type Region struct {
	Base      uintptr
	Size      uintptr
	Prot      Protection
	Committed bool
}

// End returns the first address past the region.
func (r Region) End() uintptr { return r.Base + r.Size }

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uintptr) bool { return addr >= r.Base && addr < r.End() }

// Memory is the protection-control and cache-maintenance surface the core
// needs to rewrite pages in the current process.
type Memory interface {
	// Protect sets the protection of [addr, addr+size) and returns the
	// previous protection of the first affected page.
	Protect(addr, size uintptr, prot Protection) (Protection, error)

	// Query describes the region containing addr.
	Query(addr uintptr) (Region, error)

	// FlushICache tells the CPU that code in [addr, addr+size) changed.
	FlushICache(addr, size uintptr) error
}

// Module describes one loaded image.
type Module struct {
	Name string
	Base uintptr
	End  uintptr
	Path string
}

// Size returns the extent of the mapped image in bytes.
func (m Module) Size() uintptr { return m.End - m.Base }

// ModuleOracle resolves loaded-module bounds and exported symbols. An empty
// module name means the main executable image.
type ModuleOracle interface {
	// Module resolves a module by name.
	Module(name string) (Module, error)

	// ModuleAt resolves the module containing addr.
	ModuleAt(addr uintptr) (Module, error)

	// Export resolves a named export within a loaded module.
	Export(module, symbol string) (uintptr, error)
}

// RangeValid walks the regions spanning [addr, addr+size) and reports whether
// the whole range is committed and readable. This is the upfront check the
// library performs before every raw copy, standing in for hardware-fault
// trapping which Go cannot do.
func RangeValid(mem Memory, addr, size uintptr) bool {
	if mem == nil || addr == 0 || size == 0 {
		return false
	}
	cursor := addr
	end := addr + size
	for cursor < end {
		region, err := mem.Query(cursor)
		if err != nil {
			return false
		}
		if !region.Committed || !region.Prot.CanRead() || !region.Contains(cursor) {
			return false
		}
		cursor = region.End()
	}
	return true
}
