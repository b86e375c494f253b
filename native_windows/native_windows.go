//go:build windows

// Package native_windows implements the native collaborator interfaces on
// Windows: VirtualProtect/VirtualQuery for page protection, kernel32's
// FlushInstructionCache, and module resolution through the loader plus psapi.
package native_windows

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"byteweaver/native"
)

var (
	modkernel32               = syscall.NewLazyDLL("kernel32.dll")
	modntdll                  = syscall.NewLazyDLL("ntdll.dll")
	procFlushInstructionCache = modkernel32.NewProc("FlushInstructionCache")
	procK32GetModuleInfo      = modkernel32.NewProc("K32GetModuleInformation")
	procRtlPcToFileHeader     = modntdll.NewProc("RtlPcToFileHeader")
)

const (
	memCommit = 0x1000

	pageNoAccess         = 0x01
	pageReadOnly         = 0x02
	pageReadWrite        = 0x04
	pageWriteCopy        = 0x08
	pageExecute          = 0x10
	pageExecuteRead      = 0x20
	pageExecuteReadWrite = 0x40
	pageExecuteWriteCopy = 0x80
)

type moduleInfo struct {
	BaseOfDll   uintptr
	SizeOfImage uint32
	EntryPoint  uintptr
}

func protToPage(prot native.Protection) uint32 {
	switch {
	case prot.CanExecute() && prot.CanWrite():
		return pageExecuteReadWrite
	case prot.CanExecute() && prot.CanRead():
		return pageExecuteRead
	case prot.CanExecute():
		return pageExecute
	case prot.CanWrite():
		return pageReadWrite
	case prot.CanRead():
		return pageReadOnly
	default:
		return pageNoAccess
	}
}

func pageToProt(page uint32) native.Protection {
	switch page {
	case pageReadOnly:
		return native.ProtRead
	case pageReadWrite, pageWriteCopy:
		return native.ProtRead | native.ProtWrite
	case pageExecute:
		return native.ProtExec
	case pageExecuteRead:
		return native.ProtRead | native.ProtExec
	case pageExecuteReadWrite, pageExecuteWriteCopy:
		return native.ProtRWX
	default:
		return native.ProtNone
	}
}

// WindowsMemory implements native.Memory for the current process.
type WindowsMemory struct{}

// NewMemory returns the protection-control implementation.
func NewMemory() native.Memory {
	return &WindowsMemory{}
}

func (m *WindowsMemory) Protect(addr, size uintptr, prot native.Protection) (native.Protection, error) {
	var oldPage uint32
	if err := windows.VirtualProtect(addr, size, protToPage(prot), &oldPage); err != nil {
		return native.ProtNone, fmt.Errorf("VirtualProtect(%#x, %#x): %w", addr, size, err)
	}
	return pageToProt(oldPage), nil
}

func (m *WindowsMemory) Query(addr uintptr) (native.Region, error) {
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
		return native.Region{}, fmt.Errorf("VirtualQuery(%#x): %w", addr, err)
	}
	return native.Region{
		Base:      mbi.BaseAddress,
		Size:      mbi.RegionSize,
		Prot:      pageToProt(mbi.Protect),
		Committed: mbi.State == memCommit,
	}, nil
}

func (m *WindowsMemory) FlushICache(addr, size uintptr) error {
	ret, _, err := procFlushInstructionCache.Call(
		uintptr(windows.CurrentProcess()),
		addr,
		size,
	)
	if ret == 0 {
		return fmt.Errorf("FlushInstructionCache(%#x, %#x): %v", addr, size, err)
	}
	return nil
}

// WindowsOracle implements native.ModuleOracle via the loader and psapi.
type WindowsOracle struct{}

// NewOracle returns the module-bounds implementation.
func NewOracle() native.ModuleOracle {
	return &WindowsOracle{}
}

func moduleFromHandle(handle windows.Handle) (native.Module, error) {
	var info moduleInfo
	ret, _, err := procK32GetModuleInfo.Call(
		uintptr(windows.CurrentProcess()),
		uintptr(handle),
		uintptr(unsafe.Pointer(&info)),
		unsafe.Sizeof(info),
	)
	if ret == 0 {
		return native.Module{}, fmt.Errorf("K32GetModuleInformation: %v", err)
	}

	var pathBuf [windows.MAX_PATH]uint16
	n, err := windows.GetModuleFileName(handle, &pathBuf[0], uint32(len(pathBuf)))
	path := ""
	if err == nil && n > 0 {
		path = windows.UTF16ToString(pathBuf[:n])
	}

	return native.Module{
		Name: strings.ToLower(filepath.Base(path)),
		Base: info.BaseOfDll,
		End:  info.BaseOfDll + uintptr(info.SizeOfImage),
		Path: path,
	}, nil
}

func (o *WindowsOracle) Module(name string) (native.Module, error) {
	var namePtr *uint16
	if name != "" {
		converted, err := windows.UTF16PtrFromString(name)
		if err != nil {
			return native.Module{}, err
		}
		namePtr = converted
	}

	var handle windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, namePtr, &handle); err != nil {
		return native.Module{}, fmt.Errorf("%w: %s: %v", native.ErrModuleNotLoaded, name, err)
	}
	return moduleFromHandle(handle)
}

func (o *WindowsOracle) ModuleAt(addr uintptr) (native.Module, error) {
	var base uintptr
	ret, _, _ := procRtlPcToFileHeader.Call(addr, uintptr(unsafe.Pointer(&base)))
	if ret == 0 || base == 0 {
		return native.Module{}, fmt.Errorf("%w: address %#x", native.ErrAddressNotMapped, addr)
	}
	return moduleFromHandle(windows.Handle(base))
}

func (o *WindowsOracle) Export(module, symbol string) (uintptr, error) {
	var namePtr *uint16
	if module != "" {
		converted, err := windows.UTF16PtrFromString(module)
		if err != nil {
			return 0, err
		}
		namePtr = converted
	}

	var handle windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, namePtr, &handle); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", native.ErrModuleNotLoaded, module, err)
	}

	addr, err := windows.GetProcAddress(handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s in %s: %v", native.ErrExportNotFound, symbol, module, err)
	}
	return addr, nil
}
