//go:build linux

// Package native_linux implements the native collaborator interfaces on
// Linux: mprotect for page protection, /proc/self/maps for region and module
// bounds, and ELF dynamic symbols for export lookup. x86 keeps instruction
// caches coherent with data writes, so the icache flush is a no-op.
package native_linux

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"byteweaver/native"
)

type mapsEntry struct {
	start uintptr
	end   uintptr
	perms string
	path  string
}

func (e mapsEntry) prot() native.Protection {
	var p native.Protection
	if len(e.perms) > 0 && e.perms[0] == 'r' {
		p |= native.ProtRead
	}
	if len(e.perms) > 1 && e.perms[1] == 'w' {
		p |= native.ProtWrite
	}
	if len(e.perms) > 2 && e.perms[2] == 'x' {
		p |= native.ProtExec
	}
	return p
}

// readMaps parses /proc/self/maps. The map is re-read on every query; the
// library's callers mutate protections, so cached entries would go stale.
func readMaps() ([]mapsEntry, error) {
	file, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []mapsEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil {
			continue
		}

		entry := mapsEntry{
			start: uintptr(start),
			end:   uintptr(end),
			perms: fields[1],
		}
		if len(fields) >= 6 {
			entry.path = fields[5]
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func pageAlign(addr, size uintptr) (uintptr, uintptr) {
	pageSize := uintptr(os.Getpagesize())
	alignedAddr := addr &^ (pageSize - 1)
	alignedSize := (addr + size + pageSize - 1) &^ (pageSize - 1)
	return alignedAddr, alignedSize - alignedAddr
}

func protToUnix(prot native.Protection) int {
	p := unix.PROT_NONE
	if prot.CanRead() {
		p |= unix.PROT_READ
	}
	if prot.CanWrite() {
		p |= unix.PROT_WRITE
	}
	if prot.CanExecute() {
		p |= unix.PROT_EXEC
	}
	return p
}

// LinuxMemory implements native.Memory for the current process.
type LinuxMemory struct{}

// NewMemory returns the protection-control implementation.
func NewMemory() native.Memory {
	return &LinuxMemory{}
}

func (m *LinuxMemory) Protect(addr, size uintptr, prot native.Protection) (native.Protection, error) {
	old, err := m.Query(addr)
	if err != nil {
		return native.ProtNone, err
	}

	alignedAddr, alignedSize := pageAlign(addr, size)
	pages := native.SliceAt(alignedAddr, alignedSize)
	if err := unix.Mprotect(pages, protToUnix(prot)); err != nil {
		return native.ProtNone, fmt.Errorf("mprotect(%#x, %#x): %w", alignedAddr, alignedSize, err)
	}
	return old.Prot, nil
}

func (m *LinuxMemory) Query(addr uintptr) (native.Region, error) {
	entries, err := readMaps()
	if err != nil {
		return native.Region{}, err
	}
	for _, entry := range entries {
		if addr >= entry.start && addr < entry.end {
			return native.Region{
				Base:      entry.start,
				Size:      entry.end - entry.start,
				Prot:      entry.prot(),
				Committed: true,
			}, nil
		}
	}
	return native.Region{}, fmt.Errorf("%w: %#x", native.ErrAddressNotMapped, addr)
}

func (m *LinuxMemory) FlushICache(addr, size uintptr) error {
	// Coherent on x86; self-modifying code only needs the write itself.
	return nil
}

// LinuxOracle implements native.ModuleOracle over /proc/self/maps and the
// mapped files' ELF dynamic symbol tables.
type LinuxOracle struct{}

// NewOracle returns the module-bounds implementation.
func NewOracle() native.ModuleOracle {
	return &LinuxOracle{}
}

// moduleSpan collapses all mappings of one file into a single [base, end).
func moduleSpan(entries []mapsEntry, match func(mapsEntry) bool) (native.Module, bool) {
	var mod native.Module
	found := false
	for _, entry := range entries {
		if entry.path == "" || !match(entry) {
			continue
		}
		if !found {
			mod = native.Module{
				Name: filepath.Base(entry.path),
				Base: entry.start,
				End:  entry.end,
				Path: entry.path,
			}
			found = true
			continue
		}
		if entry.path != mod.Path {
			continue
		}
		if entry.start < mod.Base {
			mod.Base = entry.start
		}
		if entry.end > mod.End {
			mod.End = entry.end
		}
	}
	return mod, found
}

func (o *LinuxOracle) Module(name string) (native.Module, error) {
	entries, err := readMaps()
	if err != nil {
		return native.Module{}, err
	}

	if name == "" {
		exe, err := os.Executable()
		if err != nil {
			return native.Module{}, err
		}
		name = filepath.Base(exe)
	}

	mod, ok := moduleSpan(entries, func(e mapsEntry) bool {
		return filepath.Base(e.path) == name
	})
	if !ok {
		return native.Module{}, fmt.Errorf("%w: %s", native.ErrModuleNotLoaded, name)
	}
	return mod, nil
}

func (o *LinuxOracle) ModuleAt(addr uintptr) (native.Module, error) {
	entries, err := readMaps()
	if err != nil {
		return native.Module{}, err
	}

	var path string
	for _, entry := range entries {
		if addr >= entry.start && addr < entry.end {
			path = entry.path
			break
		}
	}
	if path == "" {
		return native.Module{}, fmt.Errorf("%w: address %#x", native.ErrAddressNotMapped, addr)
	}

	mod, ok := moduleSpan(entries, func(e mapsEntry) bool { return e.path == path })
	if !ok {
		return native.Module{}, fmt.Errorf("%w: address %#x", native.ErrAddressNotMapped, addr)
	}
	return mod, nil
}

func (o *LinuxOracle) Export(module, symbol string) (uintptr, error) {
	mod, err := o.Module(module)
	if err != nil {
		return 0, err
	}

	file, err := elf.Open(mod.Path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", mod.Path, err)
	}
	defer file.Close()

	symbols, err := file.DynamicSymbols()
	if err != nil {
		return 0, fmt.Errorf("dynamic symbols of %s: %w", mod.Path, err)
	}

	for _, sym := range symbols {
		if sym.Name != symbol || sym.Value == 0 {
			continue
		}
		// Position-independent images need the load base added;
		// fixed-address executables already carry absolute values.
		if file.Type == elf.ET_DYN {
			return mod.Base + uintptr(sym.Value), nil
		}
		return uintptr(sym.Value), nil
	}
	return 0, fmt.Errorf("%w: %s in %s", native.ErrExportNotFound, symbol, module)
}
